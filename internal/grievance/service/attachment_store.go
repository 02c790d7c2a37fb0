package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"safevoice/internal/common/storage"
	"safevoice/internal/grievance/model"
	pkgerrors "safevoice/pkg/errors"
	"safevoice/pkg/utils/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxAttachmentBytes is the aggregate ceiling for one submission.
	MaxAttachmentBytes int64 = 1 << 20

	defaultAttachmentKeyPrefix = "issues"
	defaultUploadConcurrency   = 4
	defaultStoreOpTimeout      = 30 * time.Second
	defaultDeleteMaxElapsed    = 20 * time.Second
)

// AttachmentStoreOptions configures the evidence blob adapter.
type AttachmentStoreOptions struct {
	Bucket            string
	KeyPrefix         string
	PublicBaseURL     string
	MaxTotalBytes     int64
	UploadConcurrency int
	OpTimeout         time.Duration
	DeleteMaxElapsed  time.Duration
}

// AttachmentStore uploads and releases evidence objects in the blob store.
type AttachmentStore struct {
	storage storage.ObjectStorage
	opts    AttachmentStoreOptions
}

func NewAttachmentStore(obj storage.ObjectStorage, opts AttachmentStoreOptions) *AttachmentStore {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultAttachmentKeyPrefix
	}
	opts.KeyPrefix = strings.Trim(opts.KeyPrefix, "/")
	if opts.MaxTotalBytes <= 0 {
		opts.MaxTotalBytes = MaxAttachmentBytes
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = defaultUploadConcurrency
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultStoreOpTimeout
	}
	if opts.DeleteMaxElapsed <= 0 {
		opts.DeleteMaxElapsed = defaultDeleteMaxElapsed
	}
	return &AttachmentStore{storage: obj, opts: opts}
}

// Bucket returns the bucket evidence is written to.
func (s *AttachmentStore) Bucket() string {
	return s.opts.Bucket
}

// IssuePrefix returns the object prefix holding every attachment of an issue.
func (s *AttachmentStore) IssuePrefix(issueID int64) string {
	return issueObjectPrefix(s.opts.KeyPrefix, issueID)
}

func issueObjectPrefix(keyPrefix string, issueID int64) string {
	if keyPrefix == "" {
		keyPrefix = defaultAttachmentKeyPrefix
	}
	return fmt.Sprintf("%s/%d/", keyPrefix, issueID)
}

// PreparedUpload is an upload that passed size and type checks.
type PreparedUpload struct {
	model.AttachmentUpload
	contentType string
	extension   string
}

// Prepare enforces the aggregate size ceiling and the allowed content types.
// It touches no external state, so a rejected submission uploads nothing.
func (s *AttachmentStore) Prepare(uploads []model.AttachmentUpload) ([]PreparedUpload, error) {
	var total int64
	for _, u := range uploads {
		total += u.Size()
	}
	if total > s.opts.MaxTotalBytes {
		return nil, pkgerrors.New(pkgerrors.AttachmentSizeExceeded).
			WithDetail("total_bytes", total).
			WithDetail("max_bytes", s.opts.MaxTotalBytes)
	}

	prepared := make([]PreparedUpload, 0, len(uploads))
	for _, u := range uploads {
		if u.Size() == 0 {
			return nil, pkgerrors.ValidationError("attachments", fmt.Sprintf("%q is empty", u.FileName))
		}
		contentType, ext := detectContentType(u)
		if !allowedContentType(contentType) {
			return nil, pkgerrors.New(pkgerrors.AttachmentTypeNotAllowed).
				WithDetail("file_name", u.FileName).
				WithDetail("content_type", contentType)
		}
		prepared = append(prepared, PreparedUpload{AttachmentUpload: u, contentType: contentType, extension: ext})
	}
	return prepared, nil
}

// detectContentType sniffs the payload, falling back to the declared type when
// sniffing only finds generic binary data.
func detectContentType(u model.AttachmentUpload) (string, string) {
	detected := mimetype.Detect(u.Data)
	if !detected.Is("application/octet-stream") {
		return baseMediaType(detected.String()), detected.Extension()
	}
	declared := baseMediaType(u.ContentType)
	if declared == "" {
		return detected.String(), ""
	}
	if known := mimetype.Lookup(declared); known != nil {
		return declared, known.Extension()
	}
	return declared, ""
}

func baseMediaType(raw string) string {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}

func allowedContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") || contentType == "application/pdf"
}

// Upload writes one prepared file and returns its stored reference.
func (s *AttachmentStore) Upload(ctx context.Context, issueID int64, u PreparedUpload) (model.Attachment, error) {
	if s.storage == nil {
		return model.Attachment{}, pkgerrors.New(pkgerrors.StoreUnavailable)
	}
	key := fmt.Sprintf("%s%s%s", s.IssuePrefix(issueID), uuid.NewString(), u.extension)
	sum := blake3.Sum256(u.Data)

	putCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	if err := s.storage.PutObject(putCtx, s.opts.Bucket, key, bytes.NewReader(u.Data), u.Size(), u.contentType); err != nil {
		return model.Attachment{}, pkgerrors.Wrap(fmt.Errorf("put object %s failed: %w", key, err), pkgerrors.StoreUnavailable)
	}
	return model.Attachment{
		IssueID:     issueID,
		ObjectKey:   key,
		URL:         s.objectURL(key),
		FileName:    u.FileName,
		ContentType: u.contentType,
		SizeBytes:   u.Size(),
		Checksum:    hex.EncodeToString(sum[:]),
	}, nil
}

// UploadAll uploads every file concurrently. When any upload fails the objects
// already written are released before the error is returned.
func (s *AttachmentStore) UploadAll(ctx context.Context, issueID int64, uploads []PreparedUpload) ([]model.Attachment, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	out := make([]model.Attachment, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UploadConcurrency)
	for i := range uploads {
		g.Go(func() error {
			a, err := s.Upload(gctx, issueID, uploads[i])
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var written []string
		for _, a := range out {
			if a.ObjectKey != "" {
				written = append(written, a.ObjectKey)
			}
		}
		s.releaseQuietly(ctx, written)
		return nil, err
	}
	return out, nil
}

// Delete removes one object. A missing object counts as deleted; transient
// failures are retried until the delete budget runs out.
func (s *AttachmentStore) Delete(ctx context.Context, objectKey string) error {
	if s.storage == nil {
		return pkgerrors.New(pkgerrors.StoreUnavailable)
	}
	if objectKey == "" {
		return pkgerrors.New(pkgerrors.AttachmentNotFound)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = s.opts.DeleteMaxElapsed

	err := backoff.Retry(func() error {
		delCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
		defer cancel()
		err := s.storage.RemoveObject(delCtx, s.opts.Bucket, objectKey)
		if err == nil || errors.Is(err, storage.ErrObjectNotFound) {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return pkgerrors.Wrap(fmt.Errorf("remove object %s failed: %w", objectKey, err), pkgerrors.StoreUnavailable)
	}
	return nil
}

// DeleteAll releases every attachment, stopping at the first failure.
func (s *AttachmentStore) DeleteAll(ctx context.Context, attachments []model.Attachment) error {
	for _, a := range attachments {
		if err := s.Delete(ctx, a.ObjectKey); err != nil {
			return err
		}
	}
	return nil
}

func (s *AttachmentStore) releaseQuietly(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.Delete(context.WithoutCancel(ctx), key); err != nil {
			logger.Warn(ctx, "release uploaded attachment failed", zap.String("object_key", key), zap.Error(err))
		}
	}
}

func (s *AttachmentStore) objectURL(key string) string {
	base := strings.TrimRight(s.opts.PublicBaseURL, "/")
	return fmt.Sprintf("%s/%s/%s", base, s.opts.Bucket, key)
}
