//go:build !tracing

package trace

import "context"

// NoopExporter discards every trace record. It is what non-tracing
// builds get, so archive and search paths pay nothing for the spans
// they collect.
type NoopExporter struct{}

// NewFileExporter returns the discard exporter in non-tracing builds.
// The signature mirrors the tracing build so callers never branch on
// the build tag.
func NewFileExporter(filePath string, opts ...FileExporterOption) (Exporter, error) {
	return &NoopExporter{}, nil
}

// Export drops the record.
func (n *NoopExporter) Export(ctx context.Context, record *TraceRecord) error {
	return nil
}

// Close has nothing to release.
func (n *NoopExporter) Close() error {
	return nil
}
