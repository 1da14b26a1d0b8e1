// Package telemetry is the reporting surface every gradewatch component
// receives at construction, so that tests can swap it for a Recorder.
package telemetry

// API is what components report through instead of calling log/slog or otel
// directly.
type API interface {
	// ReportBroken signals a failure that needs someone to look at it (the
	// portal layout changed, the cache cannot be written, ...).
	//
	// ids are lowercase, dotted by component then operation (`store.save`,
	// `send-message`). NewScopedAPI prefixes them with the package namespace
	// and ": ", so the reported id reads `cache: store.save`.
	ReportBroken(id string, params ...any)

	// ReportWarning signals something unusual that the caller recovered from,
	// a corrupt cache file or a rejected markdown message for example.
	ReportWarning(id string, params ...any)

	// ReportDebug is only visible with verbose logging.
	ReportDebug(msg string, params ...any)

	// ReportCount records a point-in-time value (records extracted, events
	// detected), values are samples and must not be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with "<namespace>: " before passing it on.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scoped(id string) string {
	return s.namespace + ": " + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scoped(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scoped(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scoped(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scoped(id), count)
}
