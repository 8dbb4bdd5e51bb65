package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for VSL transaction spans.
const (
	AttrVXID         = "vsl.vxid"
	AttrTag          = "vsl.tag"
	AttrRecordKind   = "vsl.record_kind" // client, backend, session
	AttrMethod       = "vsl.method"
	AttrURL          = "vsl.url"
	AttrStatus       = "vsl.status"
	AttrHandling     = "vsl.handling" // hit, miss, pass, pipe, synth
	AttrStoreSize    = "vsl.store_size"
	AttrEvictReason  = "vsl.evict_reason"
	AttrOrphanReason = "vsl.orphan_reason"
)

// Span names for pipeline operations.
const (
	SpanDecodeRecord   = "vsl.decode_record"
	SpanBuildComplete  = "vsl.build_complete"
	SpanSessionResolve = "vsl.session_resolve"
)

// VXID returns an attribute for the VSL transaction ID a span belongs to.
func VXID(vxid uint32) attribute.KeyValue {
	return attribute.Int64(AttrVXID, int64(vxid))
}

// Tag returns an attribute for the VSL record tag that drove a transition.
func Tag(tag string) attribute.KeyValue {
	return attribute.String(AttrTag, tag)
}

// RecordKind returns an attribute identifying which record variant a
// completed builder produced: client, backend, or session.
func RecordKind(kind string) attribute.KeyValue {
	return attribute.String(AttrRecordKind, kind)
}

// Method returns an attribute for an HTTP request method.
func Method(method string) attribute.KeyValue {
	return attribute.String(AttrMethod, method)
}

// URL returns an attribute for a request URL.
func URL(url string) attribute.KeyValue {
	return attribute.String(AttrURL, url)
}

// Status returns an attribute for an HTTP response status code.
func Status(status int) attribute.KeyValue {
	return attribute.Int(AttrStatus, status)
}

// Handling returns an attribute for a cache handling decision (hit, miss,
// pass, pipe, synth).
func Handling(handling string) attribute.KeyValue {
	return attribute.String(AttrHandling, handling)
}

// StoreSize returns an attribute for the record store's current slot count.
func StoreSize(size int) attribute.KeyValue {
	return attribute.Int(AttrStoreSize, size)
}

// EvictReason returns an attribute describing why a slot was evicted.
func EvictReason(reason string) attribute.KeyValue {
	return attribute.String(AttrEvictReason, reason)
}

// OrphanReason returns an attribute describing why a completed transaction
// was delivered as an orphan instead of inside a resolved session.
func OrphanReason(reason string) attribute.KeyValue {
	return attribute.String(AttrOrphanReason, reason)
}

// StartTransactionSpan starts a span covering the resolution of a single
// VXID from its first record to a completed builder result.
func StartTransactionSpan(ctx context.Context, vxid uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{VXID(vxid)}, attrs...)
	return StartSpan(ctx, SpanBuildComplete, trace.WithAttributes(allAttrs...))
}

// StartSessionSpan starts a span covering the resolution of a session's
// client and backend links into a deliverable record.
func StartSessionSpan(ctx context.Context, vxid uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{VXID(vxid)}, attrs...)
	return StartSpan(ctx, SpanSessionResolve, trace.WithAttributes(allAttrs...))
}
