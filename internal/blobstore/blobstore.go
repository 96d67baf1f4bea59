// Package blobstore stores uploaded files as opaque blobs addressed by
// (bucket, path).
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"workout-import/internal/metrics"
)

// ErrNotFound is returned by Get when no blob exists at the address.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidPath is returned for addresses that are empty or escape their bucket.
var ErrInvalidPath = errors.New("invalid blob path")

// Store reads and writes blobs.
type Store interface {
	Get(ctx context.Context, bucket, objectPath string) ([]byte, error)
	Put(ctx context.Context, bucket, objectPath string, data []byte) error
	Close() error
}

const (
	BackendFS     = "fs"
	BackendBadger = "badger"
)

// Open returns the store for backend rooted at root, wrapped with metrics.
func Open(backend, root string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch backend {
	case BackendFS:
		s, err = NewFSStore(root)
	case BackendBadger:
		s, err = NewBadgerStore(root)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return &instrumented{Store: s, backend: backend}, nil
}

// cleanKey validates an address and returns it as "bucket/path".
func cleanKey(bucket, objectPath string) (string, error) {
	if bucket == "" || objectPath == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", ErrInvalidPath
	}
	slashed := strings.ReplaceAll(objectPath, `\`, "/")
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	p := path.Clean("/" + slashed)
	if p == "/" {
		return "", ErrInvalidPath
	}
	return bucket + p, nil
}

type instrumented struct {
	Store
	backend string
}

func (s *instrumented) Get(ctx context.Context, bucket, objectPath string) ([]byte, error) {
	timer := prometheus.NewTimer(metrics.BlobOperationDuration.WithLabelValues(s.backend, metrics.BlobOpGet))
	defer timer.ObserveDuration()

	data, err := s.Store.Get(ctx, bucket, objectPath)
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.BlobOperationErrorsTotal.WithLabelValues(s.backend, metrics.BlobOpGet).Inc()
	}
	return data, err
}

func (s *instrumented) Put(ctx context.Context, bucket, objectPath string, data []byte) error {
	timer := prometheus.NewTimer(metrics.BlobOperationDuration.WithLabelValues(s.backend, metrics.BlobOpPut))
	defer timer.ObserveDuration()

	err := s.Store.Put(ctx, bucket, objectPath, data)
	if err != nil {
		metrics.BlobOperationErrorsTotal.WithLabelValues(s.backend, metrics.BlobOpPut).Inc()
	}
	return err
}
