package tracing

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	ot "github.com/opentracing/opentracing-go"

	"github.com/latticeproxy/rds-router/collab"
)

// Annotation records which end of a hop a propagated x-ot-span-context
// describes: clientSend means the header was stamped by the peer that sent
// the request (so this hop receives it, and should continue the same
// span), serverReceive means the header was stamped by a hop that already
// turned it into a new child (so this hop should spawn another child
// rather than re-using the id).
type Annotation string

const (
	clientSend    Annotation = "cs"
	serverReceive Annotation = "sr"
)

// SpanContextHeader is the opaque header carrying the serialized
// (trace_id, span_id, parent_id, sampled) tuple alongside the B3 headers.
const SpanContextHeader = "x-ot-span-context"

// SpanContext is the propagated identity of a span: trace id stays fixed
// across a whole request's hops, span id identifies this hop, parent id
// the hop that caused it.
type SpanContext struct {
	TraceID  uint64
	SpanID   uint64
	ParentID uint64
	Sampled  bool
}

func formatID(id uint64) string { return strconv.FormatUint(id, 16) }

func parseID(s string) uint64 {
	v, _ := strconv.ParseUint(s, 16, 64)
	return v
}

func encodeSpanContext(sc SpanContext, ann Annotation) string {
	sampled := "0"
	if sc.Sampled {
		sampled = "1"
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s", formatID(sc.TraceID), formatID(sc.SpanID), formatID(sc.ParentID), sampled, ann)
}

func decodeSpanContext(s string) (sc SpanContext, ann Annotation, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 {
		return SpanContext{}, "", false
	}
	sc = SpanContext{
		TraceID:  parseID(parts[0]),
		SpanID:   parseID(parts[1]),
		ParentID: parseID(parts[2]),
		Sampled:  parts[3] == "1",
	}
	return sc, Annotation(parts[4]), true
}

// Span wraps an opentracing.Span with the propagated identity needed to
// serialize outgoing headers, implementing collab.TracingSpan.
type Span struct {
	ot.Span
	tracer ot.Tracer
	ctx    SpanContext
	nextID func() uint64
}

var _ collab.TracingSpan = (*Span)(nil)

// StartServerSpan creates the span for an inbound request, given a
// generator for fresh 64-bit ids. When the request carries a
// SpanContextHeader annotated clientSend, this hop is a shared-context
// continuation of the caller's span (same trace and span id); any other
// annotation, or no header at all, starts a brand new span, parented to
// whatever trace id was present.
func StartServerSpan(h http.Header, tracer ot.Tracer, operation string, nextID func() uint64) *Span {
	raw := h.Get(SpanContextHeader)

	var parentOT ot.SpanContext
	if raw != "" {
		if extracted, err := tracer.Extract(ot.TextMap, ot.HTTPHeadersCarrier(h)); err == nil {
			parentOT = extracted
		}
	}

	sc, ann, decoded := decodeSpanContext(raw)

	if decoded && ann == clientSend {
		var span ot.Span
		if parentOT != nil {
			span = tracer.StartSpan(operation, ot.ChildOf(parentOT))
		} else {
			span = tracer.StartSpan(operation)
		}
		return &Span{Span: span, tracer: tracer, ctx: sc, nextID: nextID}
	}

	newSpanID := nextID()
	parentID := sc.ParentID
	traceID := sc.TraceID
	if !decoded {
		traceID = nextID()
	} else {
		parentID = sc.SpanID
	}

	var span ot.Span
	if parentOT != nil {
		span = tracer.StartSpan(operation, ot.ChildOf(parentOT))
	} else {
		span = tracer.StartSpan(operation)
	}

	return &Span{
		Span:   span,
		tracer: tracer,
		ctx:    SpanContext{TraceID: traceID, SpanID: newSpanID, ParentID: parentID, Sampled: true},
		nextID: nextID,
	}
}

func (s *Span) SetTag(key string, value any) {
	s.Span.SetTag(key, value)
}

// InjectContext stamps the B3 headers and the opaque x-ot-span-context
// header, annotated clientSend, onto an outgoing request: this hop is
// sending, so whoever receives it continues the same span.
func (s *Span) InjectContext(req *http.Request) {
	injectB3(req.Header, s.ctx)
	req.Header.Set(SpanContextHeader, encodeSpanContext(s.ctx, clientSend))
	_ = s.tracer.Inject(s.Span.Context(), ot.TextMap, ot.HTTPHeadersCarrier(req.Header))
}

// SpawnChild starts a new span parented to this one, with a fresh span id
// and the same trace id.
func (s *Span) SpawnChild(operation string) collab.TracingSpan {
	child := s.tracer.StartSpan(operation, ot.ChildOf(s.Span.Context()))
	return &Span{
		Span:   child,
		tracer: s.tracer,
		ctx:    SpanContext{TraceID: s.ctx.TraceID, SpanID: s.nextID(), ParentID: s.ctx.SpanID, Sampled: s.ctx.Sampled},
		nextID: s.nextID,
	}
}
