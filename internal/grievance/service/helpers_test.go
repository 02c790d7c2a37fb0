package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"safevoice/internal/common/mq"
	"safevoice/internal/common/storage"
	"safevoice/internal/grievance/model"
	"safevoice/internal/grievance/repository"
	"safevoice/internal/grievance/service"
	pkgerrors "safevoice/pkg/errors"
	baserepo "safevoice/pkg/repository"

	"github.com/stretchr/testify/require"
)

const testBucket = "evidence"

var (
	reporterAsha = model.Principal{ID: 1, Role: model.RoleReporter}
	reporterBen  = model.Principal{ID: 2, Role: model.RoleReporter}
	adminPriya   = model.Principal{ID: 1, Role: model.RoleAdmin}
	resolverDan  = model.Principal{ID: 1, Role: model.RoleResolver}
	resolverMei  = model.Principal{ID: 2, Role: model.RoleResolver}
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// pngFile returns an upload sniffed as image/png, padded to size bytes.
func pngFile(name string, size int) model.AttachmentUpload {
	data := make([]byte, size)
	copy(data, pngSignature)
	return model.AttachmentUpload{FileName: name, ContentType: "image/png", Data: data}
}

type harness struct {
	store     *repository.MemoryStore
	objects   storage.ObjectStorage
	producer  *recordingProducer
	lifecycle *service.LifecycleService
}

type harnessOptions struct {
	objects    storage.ObjectStorage
	categories []string
	limiter    *service.RateLimiter
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddReporter(reporterAsha.ID, "Asha Rao")
	store.AddReporter(reporterBen.ID, "Ben Okafor")
	store.AddAdmin(adminPriya.ID, "Priya Nair")
	store.AddResolver(model.Resolver{ID: resolverDan.ID, Name: "Daniel Kim", Designation: "Warden"})
	store.AddResolver(model.Resolver{ID: resolverMei.ID, Name: "Mei Tan", Designation: "Dean of Students"})

	objects := opts.objects
	if objects == nil {
		objects = storage.NewMemoryStorage()
	}
	attachments := service.NewAttachmentStore(objects, service.AttachmentStoreOptions{
		Bucket:           testBucket,
		KeyPrefix:        "issues",
		PublicBaseURL:    "http://blob.local",
		DeleteMaxElapsed: 300 * time.Millisecond,
	})
	producer := &recordingProducer{}
	lifecycle := service.NewLifecycleService(service.Repositories{
		Tx:          store,
		Issues:      store.Issues(),
		Assignments: store.Assignments(),
		Solutions:   store.Solutions(),
		StatusLog:   store.StatusLog(),
		Attachments: store.Attachments(),
		Directory:   store.Directory(),
	}, attachments, service.NewEventPublisher(producer, "lifecycle"), opts.limiter, service.LifecycleOptions{
		Categories: opts.categories,
	})
	return &harness{store: store, objects: objects, producer: producer, lifecycle: lifecycle}
}

func (h *harness) submit(t *testing.T, reporter model.Principal, title string, uploads ...model.AttachmentUpload) int64 {
	t.Helper()
	id, err := h.lifecycle.SubmitIssue(context.Background(), reporter, service.SubmitInput{
		Title:       title,
		Description: "Details of " + title,
		Category:    "Infrastructure",
		Attachments: uploads,
	})
	require.NoError(t, err)
	return id
}

func (h *harness) issue(t *testing.T, id int64) model.Issue {
	t.Helper()
	issue, err := h.store.Issues().Get(context.Background(), nil, id)
	require.NoError(t, err)
	return issue
}

func (h *harness) history(t *testing.T, id int64) []model.StatusLogEntry {
	t.Helper()
	entries, err := h.store.StatusLog().History(context.Background(), nil, id)
	require.NoError(t, err)
	return entries
}

func (h *harness) allIssues(t *testing.T) []model.AdminIssue {
	t.Helper()
	items, err := h.store.Issues().ListAll(context.Background(), baserepo.ListOptions{Limit: baserepo.MaxLimit})
	require.NoError(t, err)
	return items
}

func requireCode(t *testing.T, err error, code pkgerrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, pkgerrors.GetCode(err), "unexpected error: %v", err)
}

type recordingProducer struct {
	mu       sync.Mutex
	messages []*mq.Message
	err      error
}

func (p *recordingProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message)
	return nil
}

func (p *recordingProducer) events(t *testing.T) []model.LifecycleEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.LifecycleEvent, 0, len(p.messages))
	for _, m := range p.messages {
		var event model.LifecycleEvent
		require.NoError(t, json.Unmarshal(m.Body, &event))
		out = append(out, event)
	}
	return out
}

func (p *recordingProducer) eventTypes(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, e := range p.events(t) {
		out = append(out, e.EventType)
	}
	return out
}

// flakyStorage wraps MemoryStorage and fails chosen calls.
type flakyStorage struct {
	*storage.MemoryStorage

	mu          sync.Mutex
	puts        int
	failPutFrom int // 1-based put call that starts failing; 0 never fails
	failRemove  bool
	removed     []string
}

func newFlakyStorage() *flakyStorage {
	return &flakyStorage{MemoryStorage: storage.NewMemoryStorage()}
}

func (s *flakyStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	s.mu.Lock()
	s.puts++
	fail := s.failPutFrom > 0 && s.puts >= s.failPutFrom
	s.mu.Unlock()
	if fail {
		_, _ = io.Copy(io.Discard, reader)
		return errors.New("blob store unavailable")
	}
	return s.MemoryStorage.PutObject(ctx, bucket, objectKey, reader, sizeBytes, contentType)
}

func (s *flakyStorage) RemoveObject(ctx context.Context, bucket, objectKey string) error {
	s.mu.Lock()
	fail := s.failRemove
	if !fail {
		s.removed = append(s.removed, objectKey)
	}
	s.mu.Unlock()
	if fail {
		return errors.New("blob store unavailable")
	}
	return s.MemoryStorage.RemoveObject(ctx, bucket, objectKey)
}

func (s *flakyStorage) setFailRemove(v bool) {
	s.mu.Lock()
	s.failRemove = v
	s.mu.Unlock()
}

func readObject(t *testing.T, obj storage.ObjectStorage, key string) []byte {
	t.Helper()
	r, err := obj.GetObject(context.Background(), testBucket, key)
	require.NoError(t, err)
	defer r.Close()
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.Bytes()
}
