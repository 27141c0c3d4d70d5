// Package sink persists embedded documents outside the process.
//
// Directory writes each document into a local directory. S3 uploads each
// document under a key prefix, through the cargoship transporter when it is
// enabled and PutObject otherwise. Both implement types.DocumentSink.
package sink

import (
	"context"
	"strconv"

	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/types"
	"github.com/docbridge/docbridge/pkg/utils"
)

// FileName returns the name a document is stored under: the base name of
// its resource name, or embedded_<index> when it has none.
func FileName(index int, doc types.EmbeddedDocument) string {
	if name := utils.BaseName(doc.ResourceName); name != "" {
		return name
	}
	return "embedded_" + strconv.Itoa(index)
}

// StoreAll stores docs with consecutive indexes starting at offset. It stops
// at the first failure and returns how many documents were stored.
func StoreAll(ctx context.Context, s types.DocumentSink, offset int, docs []types.EmbeddedDocument) (int, error) {
	for i, doc := range docs {
		if err := s.Store(ctx, offset+i, doc); err != nil {
			return i, err
		}
	}
	return len(docs), nil
}

func canceled(err error) error {
	return errors.NewError(errors.ErrCodeOperationCanceled, "store canceled").
		WithComponent("sink").
		WithOperation("store").
		WithCause(err)
}
