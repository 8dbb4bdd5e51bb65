package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so downstream log
// aggregation can group and query on them regardless of which component
// (stream, builder, store, session) emitted the record.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// VSL Stream Position
	// ========================================================================
	KeyVXID      = "vxid"       // Transaction identifier the log line concerns
	KeyMarker    = "marker"     // client / backend / none
	KeyTag       = "tag"        // VSL tag name
	KeyTagCode   = "tag_code"   // Raw numeric tag code (for Bogus tags)
	KeyParentID  = "parent_vxid"
	KeyChildID   = "child_vxid"
	KeyLinkKind  = "link_kind" // req / bereq
	KeyReason    = "reason"    // link reason: rxreq, esi, restart, fetch, retry, bgfetch, pipe
	KeyComponent = "component" // stream, decoder, builder, store, session

	// ========================================================================
	// Store / Eviction
	// ========================================================================
	KeyEpoch        = "epoch"
	KeyStoredEpoch  = "stored_epoch"
	KeyStoreSize    = "store_size"
	KeyStoreCap     = "store_capacity"
	KeyEvicted      = "evicted"
	KeyEvictReason  = "evict_reason"
	KeyUnresolved   = "unresolved"
	KeyOrphanCount  = "orphan_count"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyBytes      = "bytes"
)

// VXID returns a slog.Attr for a transaction identifier.
func VXID(id uint32) slog.Attr {
	return slog.Uint64(KeyVXID, uint64(id))
}

// Tag returns a slog.Attr for a VSL tag name.
func Tag(name string) slog.Attr {
	return slog.String(KeyTag, name)
}

// Component returns a slog.Attr identifying the emitting subsystem.
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Epoch returns a slog.Attr for the current epoch counter value.
func Epoch(e uint64) slog.Attr {
	return slog.Uint64(KeyEpoch, e)
}

// Err returns a slog.Attr for an error value, or a zero-value attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
