package sink

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/types"
	"github.com/docbridge/docbridge/pkg/utils"
)

// Directory writes documents into a local directory. Documents with the
// same base name overwrite each other.
type Directory struct {
	dir     string
	logger  *utils.StructuredLogger
	written atomic.Int64
}

// NewDirectory creates dir if needed. A nil logger disables logging.
func NewDirectory(dir string, logger *utils.StructuredLogger) (*Directory, error) {
	if dir == "" {
		return nil, errors.NewError(errors.ErrCodeStorageConfig, "sink directory is empty").
			WithComponent("sink").
			WithOperation("open")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewError(errors.ErrCodeStorageConfig, "failed to create sink directory").
			WithComponent("sink").
			WithOperation("open").
			WithContext("dir", dir).
			WithCause(err)
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Directory{
		dir:    dir,
		logger: logger.WithComponent("sink").WithField("dir", dir),
	}, nil
}

// Dir returns the target directory.
func (d *Directory) Dir() string { return d.dir }

// Written returns the number of documents stored so far.
func (d *Directory) Written() int64 { return d.written.Load() }

// Store implements types.DocumentSink.
func (d *Directory) Store(ctx context.Context, index int, doc types.EmbeddedDocument) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}

	name := FileName(index, doc)
	path, err := utils.SecureJoin(d.dir, name)
	if err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "document name escapes sink directory").
			WithComponent("sink").
			WithOperation("store").
			WithContext("name", doc.ResourceName).
			WithCause(err)
	}

	if err := os.WriteFile(path, doc.Content, 0o644); err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "failed to write document").
			WithComponent("sink").
			WithOperation("store").
			WithContext("path", path).
			WithCause(err)
	}

	d.written.Add(1)
	d.logger.Debug("document stored", map[string]interface{}{
		"index": index,
		"name":  name,
		"bytes": doc.Size(),
	})
	return nil
}

// Close implements types.DocumentSink.
func (d *Directory) Close() error { return nil }
