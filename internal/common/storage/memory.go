package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage is an in-process ObjectStorage for local runs and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject)}
}

func memoryKey(bucket, objectKey string) string {
	return bucket + "/" + objectKey
}

func (s *MemoryStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	if objectKey == "" {
		return fmt.Errorf("objectKey is required")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read object body failed: %w", err)
	}
	if sizeBytes >= 0 && int64(len(data)) != sizeBytes {
		return fmt.Errorf("object size mismatch: got %d want %d", len(data), sizeBytes)
	}
	s.mu.Lock()
	s.objects[memoryKey(bucket, objectKey)] = memoryObject{data: data, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error) {
	s.mu.RLock()
	obj, ok := s.objects[memoryKey(bucket, objectKey)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MemoryStorage) StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error) {
	s.mu.RLock()
	obj, ok := s.objects[memoryKey(bucket, objectKey)]
	s.mu.RUnlock()
	if !ok {
		return ObjectStat{}, ErrObjectNotFound
	}
	return ObjectStat{SizeBytes: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (s *MemoryStorage) RemoveObject(ctx context.Context, bucket, objectKey string) error {
	s.mu.Lock()
	delete(s.objects, memoryKey(bucket, objectKey))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo {
	full := memoryKey(bucket, prefix)
	s.mu.RLock()
	infos := make([]ObjectInfo, 0)
	for key, obj := range s.objects {
		if strings.HasPrefix(key, full) {
			infos = append(infos, ObjectInfo{Key: strings.TrimPrefix(key, bucket+"/"), SizeBytes: int64(len(obj.data))})
		}
	}
	s.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	out := make(chan ObjectInfo, len(infos))
	for _, info := range infos {
		out <- info
	}
	close(out)
	return out
}

func (s *MemoryStorage) RemoveObjects(ctx context.Context, bucket string, keys []string) error {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.objects, memoryKey(bucket, key))
	}
	s.mu.Unlock()
	return nil
}

// Len reports how many objects are stored across all buckets.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
