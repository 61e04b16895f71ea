package loader

import "context"

// RawLoader passes file content through unchanged.
type RawLoader struct{}

// NewRawLoader creates a raw loader.
func NewRawLoader() *RawLoader { return &RawLoader{} }

// Name implements Loader.
func (l *RawLoader) Name() string { return "raw" }

// Load implements Loader.
func (l *RawLoader) Load(_ context.Context, req *Request) (*Result, error) {
	src, err := req.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}
	return &Result{Content: src}, nil
}
