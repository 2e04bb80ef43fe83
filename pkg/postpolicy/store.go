package postpolicy

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by ObjectStore implementations for unknown keys
var ErrObjectNotFound = errors.New("object not found")

// Object is an uploaded file as stored by the stub bucket endpoint
type Object struct {
	Bucket      string
	Key         string
	ContentType string
	ACL         string
	Data        []byte
}

// ObjectStore receives objects accepted by the stub bucket endpoint
type ObjectStore interface {
	Put(ctx context.Context, obj Object) error
	Get(ctx context.Context, bucket, key string) (*Object, error)
}
