//go:build !cgo

package metrics

import "context"

// Python parsing needs the tree-sitter grammar, which requires cgo.
const pythonAvailable = false

func analyzePython(ctx context.Context, source []byte) (*FileMetrics, error) {
	return nil, nil
}
