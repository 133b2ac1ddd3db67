package archive

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GCSClient abstracts the top-level *storage.Client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts a *storage.ObjectHandle.
type GCSObjectHandle interface {
	NewWriter(ctx context.Context) io.WriteCloser
}

type gcsClientAdapter struct{ client *storage.Client }

// NewGCSClientAdapter makes a *storage.Client satisfy GCSClient.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	return &gcsClientAdapter{client: client}
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketAdapter struct{ handle *storage.BucketHandle }

func (a *gcsBucketAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectAdapter{handle: a.handle.Object(name)}
}

type gcsObjectAdapter struct{ handle *storage.ObjectHandle }

func (a *gcsObjectAdapter) NewWriter(ctx context.Context) io.WriteCloser {
	w := a.handle.NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	w.ContentEncoding = "gzip"
	return w
}

// GCSConfig names the archive bucket.
type GCSConfig struct {
	BucketName   string
	ObjectPrefix string
}

// GCSWriter writes each batch as gzip-compressed JSON lines, one object per
// batch key: <prefix>/<yyyy>/<mm>/<dd>/<source>/<uuid>.jsonl.gz.
type GCSWriter struct {
	client GCSClient
	cfg    GCSConfig
	logger zerolog.Logger
}

// NewGCSWriter creates a GCSWriter.
func NewGCSWriter(client GCSClient, cfg GCSConfig, logger zerolog.Logger) (*GCSWriter, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSWriter{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "GCSWriter").Str("bucket", cfg.BucketName).Logger(),
	}, nil
}

// WriteBatch groups records by batch key and uploads the groups in parallel.
func (w *GCSWriter) WriteBatch(ctx context.Context, records []*Record) error {
	groups := make(map[string][]*Record)
	for _, r := range records {
		if r != nil {
			groups[r.BatchKey()] = append(groups[r.BatchKey()], r)
		}
	}
	if len(groups) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for key, group := range groups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.upload(ctx, key, group); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (w *GCSWriter) upload(ctx context.Context, batchKey string, records []*Record) error {
	objectName := path.Join(w.cfg.ObjectPrefix, batchKey, uuid.NewString()+".jsonl.gz")
	gcsWriter := w.client.Bucket(w.cfg.BucketName).Object(objectName).NewWriter(ctx)
	pr, pw := io.Pipe()

	go func() {
		var err error
		gz := gzip.NewWriter(pw)
		enc := json.NewEncoder(gz)
		for _, rec := range records {
			if err = enc.Encode(rec); err != nil {
				err = fmt.Errorf("json encoding failed for %s: %w", objectName, err)
				break
			}
		}
		if closeErr := gz.Close(); err == nil {
			err = closeErr
		}
		_ = pw.CloseWithError(err)
	}()

	written, copyErr := io.Copy(gcsWriter, pr)
	_ = pr.Close()
	closeErr := gcsWriter.Close()
	if copyErr != nil {
		return fmt.Errorf("failed to stream data for GCS object %s: %w", objectName, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close GCS object writer for %s: %w", objectName, closeErr)
	}
	w.logger.Info().Str("object_name", objectName).Int("record_count", len(records)).Int64("bytes_written", written).Msg("Uploaded archive batch.")
	return nil
}

// Close is a no-op; WriteBatch waits for its uploads.
func (w *GCSWriter) Close() error {
	return nil
}
