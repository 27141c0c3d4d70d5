//go:build !noembedded

package embedded

import "github.com/docbridge/docbridge/internal/foreign"

// Enabled reports whether this build extracts embedded documents.
const Enabled = true

// Default returns the strategy named by opts.Strategy.
func Default(rt foreign.Runtime, opts Options) (Extractor, error) {
	return newStrategy(rt, opts)
}
