//go:build noembedded

package embedded

import "github.com/docbridge/docbridge/internal/foreign"

// Enabled reports whether this build extracts embedded documents.
const Enabled = false

// Default returns Unsupported. The configured strategy is still validated.
func Default(rt foreign.Runtime, opts Options) (Extractor, error) {
	if _, err := newStrategy(rt, opts); err != nil {
		return nil, err
	}
	return Unsupported{}, nil
}
