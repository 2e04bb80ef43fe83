package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/tendant/postform/pkg/postpolicy"
)

// Backend is an in-memory implementation of the postpolicy.ObjectStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]map[string]postpolicy.Object
}

// New creates a new in-memory object store
func New() *Backend {
	return &Backend{
		objects: make(map[string]map[string]postpolicy.Object),
	}
}

// Put stores a copy of obj, replacing any object under the same bucket and key
func (b *Backend) Put(ctx context.Context, obj postpolicy.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	obj.Data = bytes.Clone(obj.Data)
	if obj.ContentType == "" {
		obj.ContentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.objects[obj.Bucket]
	if !ok {
		bucket = make(map[string]postpolicy.Object)
		b.objects[obj.Bucket] = bucket
	}
	bucket[obj.Key] = obj
	return nil
}

// Get returns a copy of the stored object
func (b *Backend) Get(ctx context.Context, bucket, key string) (*postpolicy.Object, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[bucket][key]
	if !ok {
		return nil, postpolicy.ErrObjectNotFound
	}
	obj.Data = bytes.Clone(obj.Data)
	return &obj, nil
}

// Delete removes an object; deleting a missing object is not an error
func (b *Backend) Delete(ctx context.Context, bucket, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects[bucket], key)
	return nil
}

// Keys lists the keys stored in bucket, sorted
func (b *Backend) Keys(bucket string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects[bucket]))
	for k := range b.objects[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
