package prune

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
)

// Bucket defines the blob storage operations the archiver needs.
type Bucket interface {
	NewWriter(ctx context.Context, key string, opts *blob.WriterOptions) (Writer, error)
	Copy(ctx context.Context, dstKey, srcKey string, opts *blob.CopyOptions) error
	Close() error
}

// Writer defines the interface for writing to blob storage objects.
type Writer interface {
	io.WriteCloser
}

// blobBucket implements the Bucket interface using "gocloud.dev/blob".
type blobBucket struct {
	*blob.Bucket
}

// NewWriter creates a new Writer for the given object key.
func (b *blobBucket) NewWriter(ctx context.Context, key string, opts *blob.WriterOptions) (Writer, error) {
	return b.Bucket.NewWriter(ctx, key, opts)
}

// NewBlobBucket creates a new Bucket using "gocloud.dev/blob".
func NewBlobBucket(bucket *blob.Bucket) Bucket {
	return &blobBucket{bucket}
}

// ArchiveWriteManager writes archive lines to a blob object and rotates the object once it
// grows past the configured size.
type ArchiveWriteManager struct {
	bucket      Bucket
	objectName  string
	maxSize     int64
	currentSize int64
	mu          sync.Mutex
	writer      Writer
}

// NewArchiveWriteManager creates a manager writing to objectName inside bucket, rotating
// at maxSize bytes.
func NewArchiveWriteManager(bucket Bucket, objectName string, maxSize int64) *ArchiveWriteManager {
	return &ArchiveWriteManager{
		bucket:     bucket,
		objectName: objectName,
		maxSize:    maxSize,
	}
}

// Write appends the given line to the current object and rotates the object in the
// background once the maximum size is exceeded.
func (rm *ArchiveWriteManager) Write(ctx context.Context, line string) (int, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.writer == nil {
		var err error
		rm.writer, err = rm.bucket.NewWriter(ctx, rm.objectName, nil)
		if err != nil {
			return 0, fmt.Errorf("failed to create archive writer: %w", err)
		}
		rm.currentSize = 0
	}

	n, err := rm.writer.Write([]byte(line))
	if err != nil {
		return n, fmt.Errorf("failed to write to archive object: %w", err)
	}
	rm.currentSize += int64(n)

	if rm.currentSize >= rm.maxSize {
		go rm.rotateInBackground(ctx)
	}

	return n, nil
}

// rotateInBackground closes the active writer and performs the rotation off the write path.
func (rm *ArchiveWriteManager) rotateInBackground(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.writer != nil {
		if err := rm.writer.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close archive writer")
			return
		}
		rm.writer = nil
	}

	if err := rm.rotate(ctx); err != nil {
		log.Error().Err(err).Msg("failed to rotate archive object")
	}
}

// rotate copies the filled object to a timestamped name; the next write starts a fresh
// object under the original name.
func (rm *ArchiveWriteManager) rotate(ctx context.Context) error {
	fileExt := filepath.Ext(rm.objectName)
	baseName := rm.objectName[0 : len(rm.objectName)-len(fileExt)]

	newObjectName := fmt.Sprintf("%s_%d%s", baseName, time.Now().Unix(), fileExt)
	if err := rm.bucket.Copy(ctx, newObjectName, rm.objectName, nil); err != nil {
		return fmt.Errorf("failed to copy archive object: %w", err)
	}

	return nil
}

// Close closes the active writer and the underlying bucket.
func (rm *ArchiveWriteManager) Close() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.writer != nil {
		if err := rm.writer.Close(); err != nil {
			return err
		}
		rm.writer = nil
	}
	return rm.bucket.Close()
}
