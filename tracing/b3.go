package tracing

import "net/http"

// B3 header names, set on every outgoing hop regardless of whether the
// active span is a shared continuation or a freshly spawned child.
const (
	B3TraceID      = "x-b3-traceid"
	B3SpanID       = "x-b3-spanid"
	B3ParentSpanID = "x-b3-parentspanid"
	B3Sampled      = "x-b3-sampled"
)

// injectB3 writes the trace/span/parent-span ids and the always-sample
// sentinel onto h. The router does not evaluate a sampling policy itself;
// it defers that decision to whatever consumes these headers downstream,
// so Sampled is always "1" at this layer.
func injectB3(h http.Header, sc SpanContext) {
	h.Set(B3TraceID, formatID(sc.TraceID))
	h.Set(B3SpanID, formatID(sc.SpanID))
	if sc.ParentID != 0 {
		h.Set(B3ParentSpanID, formatID(sc.ParentID))
	}
	h.Set(B3Sampled, "1")
}

// extractB3 reads a SpanContext back out of B3 headers, ok is false when no
// trace id is present.
func extractB3(h http.Header) (sc SpanContext, ok bool) {
	traceID := h.Get(B3TraceID)
	if traceID == "" {
		return SpanContext{}, false
	}

	sc.TraceID = parseID(traceID)
	sc.SpanID = parseID(h.Get(B3SpanID))
	sc.ParentID = parseID(h.Get(B3ParentSpanID))
	sc.Sampled = h.Get(B3Sampled) != "0"
	return sc, true
}
