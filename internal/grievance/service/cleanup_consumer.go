package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"safevoice/internal/common/mq"
	"safevoice/internal/common/storage"
	"safevoice/internal/grievance/model"
	"safevoice/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultCleanupBatchSize   = 1000
	defaultCleanupListTimeout = 30 * time.Second
	defaultCleanupDeleteTTL   = 2 * time.Minute
)

// CleanupOptions controls orphan-object cleanup.
type CleanupOptions struct {
	Bucket        string
	KeyPrefix     string
	BatchSize     int
	ListTimeout   time.Duration
	DeleteTimeout time.Duration
}

// issueExistence is the single repository call the consumer needs.
type issueExistence interface {
	Exists(ctx context.Context, issueID int64) (bool, error)
}

// CleanupConsumer removes evidence objects left behind by deleted issues,
// including uploads orphaned by a crash in the middle of a submission.
type CleanupConsumer struct {
	consumer      mq.Consumer
	issues        issueExistence
	storage       storage.ObjectStorage
	bucket        string
	keyPrefix     string
	batchSize     int
	listTimeout   time.Duration
	deleteTimeout time.Duration
}

func NewCleanupConsumer(consumer mq.Consumer, issues issueExistence, obj storage.ObjectStorage, opts CleanupOptions) *CleanupConsumer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultCleanupBatchSize
	}
	listTimeout := opts.ListTimeout
	if listTimeout <= 0 {
		listTimeout = defaultCleanupListTimeout
	}
	deleteTimeout := opts.DeleteTimeout
	if deleteTimeout <= 0 {
		deleteTimeout = defaultCleanupDeleteTTL
	}
	return &CleanupConsumer{
		consumer:      consumer,
		issues:        issues,
		storage:       obj,
		bucket:        opts.Bucket,
		keyPrefix:     opts.KeyPrefix,
		batchSize:     batchSize,
		listTimeout:   listTimeout,
		deleteTimeout: deleteTimeout,
	}
}

// Subscribe registers the handler on topic and starts consuming.
func (c *CleanupConsumer) Subscribe(ctx context.Context, topic, consumerGroup string, opts *mq.SubscribeOptions) error {
	if c == nil || c.consumer == nil {
		return errors.New("message queue is nil")
	}
	if topic == "" {
		return errors.New("event topic is required")
	}
	options := opts
	if options == nil {
		options = &mq.SubscribeOptions{}
	}
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = consumerGroup
	}
	if err := c.consumer.SubscribeWithOptions(ctx, topic, c.HandleMessage, options); err != nil {
		return err
	}
	return c.consumer.Start()
}

// HandleMessage processes one lifecycle event. Events other than deletions are
// ignored; malformed payloads are dropped rather than retried.
func (c *CleanupConsumer) HandleMessage(ctx context.Context, message *mq.Message) error {
	var event model.LifecycleEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Warn(ctx, "parse lifecycle event failed", zap.Error(err))
		return nil
	}
	if event.EventType != model.EventIssueDeleted {
		logger.Debug(ctx, "ignore lifecycle event", zap.String("event_type", event.EventType), zap.Int64("issue_id", event.IssueID))
		return nil
	}
	if event.IssueID <= 0 {
		logger.Warn(ctx, "cleanup event missing issue_id")
		return nil
	}

	bucket := event.Bucket
	if bucket == "" {
		bucket = c.bucket
	}
	prefix := event.Prefix
	if prefix == "" {
		prefix = issueObjectPrefix(c.keyPrefix, event.IssueID)
	}
	if bucket == "" {
		return errors.New("cleanup bucket is empty")
	}
	if c.storage == nil {
		return errors.New("object storage is nil")
	}
	if c.issues != nil {
		exists, err := c.issues.Exists(ctx, event.IssueID)
		if err != nil {
			return fmt.Errorf("check issue exists failed: %w", err)
		}
		if exists {
			logger.Info(ctx, "skip cleanup for existing issue", zap.Int64("issue_id", event.IssueID))
			return nil
		}
	}
	removed, err := c.removeObjectsByPrefix(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.Info(ctx, "removed orphaned attachments", zap.Int64("issue_id", event.IssueID), zap.Int("objects", removed))
	}
	return nil
}

func (c *CleanupConsumer) removeObjectsByPrefix(ctx context.Context, bucket, prefix string) (int, error) {
	listCtx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()
	objCh := c.storage.ListObjects(listCtx, bucket, prefix)

	removed := 0
	batch := make([]string, 0, c.batchSize)
	for obj := range objCh {
		if obj.Err != nil {
			return removed, obj.Err
		}
		if obj.Key == "" {
			continue
		}
		batch = append(batch, obj.Key)
		if len(batch) >= c.batchSize {
			if err := c.removeBatch(ctx, bucket, batch); err != nil {
				return removed, err
			}
			removed += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := c.removeBatch(ctx, bucket, batch); err != nil {
			return removed, err
		}
		removed += len(batch)
	}
	if err := listCtx.Err(); err != nil {
		return removed, fmt.Errorf("list objects failed: %w", err)
	}
	return removed, nil
}

func (c *CleanupConsumer) removeBatch(ctx context.Context, bucket string, keys []string) error {
	delCtx, cancel := context.WithTimeout(ctx, c.deleteTimeout)
	defer cancel()
	if err := c.storage.RemoveObjects(delCtx, bucket, keys); err != nil {
		return fmt.Errorf("remove objects failed: %w", err)
	}
	return nil
}
