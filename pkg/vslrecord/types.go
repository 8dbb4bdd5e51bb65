// Package vslrecord defines the data model assembled records are expressed
// in: requests, responses, accounting, cache-object metadata, and the
// client/backend/session records that tie them together.
package vslrecord

import (
	"encoding/json"

	"github.com/vsl-go/vslcore/pkg/vslwire"
)

// Timestamp is seconds since the Unix epoch with sub-second precision, as
// carried in Timestamp tag payloads.
type Timestamp float64

// Duration is an elapsed time in seconds. DurationUnset marks a phase that
// never happened (e.g. Fetch duration on a request that never reached the
// backend) so callers can tell "zero seconds" from "not applicable".
type Duration float64

const DurationUnset Duration = -1

func (d Duration) IsSet() bool { return d != DurationUnset }

// Addr is a network endpoint as reported by SessOpen/BackendOpen.
type Addr struct {
	IP   string
	Port int
}

// Link represents a reference to another transaction's record that may not
// have arrived yet. An Unresolved link carries the VXID it points to and
// the reason the engine believes the link exists; Resolve replaces it with
// the owned value once the target record completes.
type Link[T any] struct {
	resolved bool
	vxid     vslwire.VXID
	reason   string
	value    T
}

// NewUnresolvedLink builds a Link pointing at vxid, not yet resolved.
func NewUnresolvedLink[T any](vxid vslwire.VXID, reason string) Link[T] {
	return Link[T]{vxid: vxid, reason: reason}
}

// NewResolvedLink builds an already-resolved Link, for cases where the
// target is known at construction time.
func NewResolvedLink[T any](value T) Link[T] {
	return Link[T]{resolved: true, value: value}
}

func (l Link[T]) IsResolved() bool    { return l.resolved }
func (l Link[T]) VXID() vslwire.VXID  { return l.vxid }
func (l Link[T]) Reason() string      { return l.reason }

// Value returns the resolved value and true, or the zero value and false if
// the link is still unresolved.
func (l Link[T]) Value() (T, bool) {
	return l.value, l.resolved
}

// Resolve returns a new Link with the target value attached, preserving the
// original reason for diagnostics. It does not mutate l; links move by
// value so a resolution can only ever have one owner at a time.
func (l Link[T]) Resolve(value T) Link[T] {
	return Link[T]{resolved: true, vxid: l.vxid, reason: l.reason, value: value}
}

// linkJSON is what a Link renders as for a sink: resolved links carry their
// value inline, unresolved ones carry the VXID and reason a consumer would
// need to go look it up itself.
type linkJSON[T any] struct {
	Resolved bool        `json:"resolved"`
	VXID     vslwire.VXID `json:"vxid,omitempty"`
	Reason   string      `json:"reason,omitempty"`
	Value    T           `json:"value,omitempty"`
}

func (l Link[T]) MarshalJSON() ([]byte, error) {
	if l.resolved {
		return json.Marshal(linkJSON[T]{Resolved: true, Value: l.value})
	}
	return json.Marshal(linkJSON[T]{Resolved: false, VXID: l.vxid, Reason: l.reason})
}

// HeaderPair is one HTTP header occurrence. Varnish preserves header order
// and permits duplicate names, so headers are stored as an ordered list
// rather than a map.
type HeaderPair struct {
	Name  string
	Value string
}

// Headers is an ordered, possibly-duplicate-bearing header sequence with
// Varnish's Unset semantics: removal matches on exact name and value, not
// name alone, and only the first match is removed.
type Headers struct {
	pairs []HeaderPair
}

func (h *Headers) Set(name, value string) {
	h.pairs = append(h.pairs, HeaderPair{Name: name, Value: value})
}

// Unset removes the first pair matching both name and value exactly.
// It reports whether a match was found.
func (h *Headers) Unset(name, value string) bool {
	for i, p := range h.pairs {
		if p.Name == name && p.Value == value {
			h.pairs = append(h.pairs[:i], h.pairs[i+1:]...)
			return true
		}
	}
	return false
}

func (h *Headers) Pairs() []HeaderPair {
	return h.pairs
}

func (h *Headers) Get(name string) (string, bool) {
	for _, p := range h.pairs {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

func (h Headers) MarshalJSON() ([]byte, error) {
	if h.pairs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.pairs)
}

// Request is the request-line and headers captured for either a client
// request or a backend request (bereq).
type Request struct {
	Method   string
	URL      string
	Protocol string
	Headers  Headers
}

// Response is the status-line and headers captured for a client response,
// backend response, or cache object.
type Response struct {
	Protocol string
	Status   int
	Reason   string
	Headers  Headers
}

// Accounting is byte/header counters for a client or backend transaction,
// as reported by ReqAcct/BereqAcct.
type Accounting struct {
	RecvHeader uint64
	RecvBody   uint64
	RecvTotal  uint64
	SentHeader uint64
	SentBody   uint64
	SentTotal  uint64
}

// PipeAccounting is the reduced counter set used for piped transactions,
// as reported by PipeAcct.
type PipeAccounting struct {
	ClientReqHeaders  uint64
	BackendReqHeaders uint64
	PipedFromClient   uint64
	PipedToClient     uint64
}

// CacheObject captures the storage placement and lifetime of the object a
// backend fetch produced, plus the response headers attached to it.
type CacheObject struct {
	StorageType string
	StorageName string

	TTL   Duration
	Grace Duration
	Keep  Duration
	Since Timestamp

	Origin  Timestamp
	Date    Timestamp
	Expires Timestamp
	MaxAge  Duration

	FetchMode     string
	FetchStreamed bool

	Response Response
}

// HandlingKind classifies how a client request was ultimately served.
type HandlingKind int

const (
	HandlingMiss HandlingKind = iota
	HandlingHit
	HandlingPass
	HandlingHitPass
	HandlingSynth
	HandlingPipe
)

func (k HandlingKind) String() string {
	switch k {
	case HandlingHit:
		return "hit"
	case HandlingPass:
		return "pass"
	case HandlingHitPass:
		return "hit-pass"
	case HandlingSynth:
		return "synth"
	case HandlingPipe:
		return "pipe"
	default:
		return "miss"
	}
}

// Handling records the cache disposition of a request. ObjVXID is only
// meaningful for Hit and HitPass, identifying the cache object transaction
// that was hit.
type Handling struct {
	Kind    HandlingKind
	ObjVXID vslwire.VXID
}

// ACLResult is the outcome of a VCL ACL match.
type ACLResult int

const (
	ACLNoMatch ACLResult = iota
	ACLMatch
)

// LogKind classifies a free-form diagnostic log line attached to a
// transaction.
type LogKind int

const (
	LogVCL LogKind = iota
	LogDebug
	LogError
	LogFetchError
	LogWarning
	LogACL
)

// LogEntry is one diagnostic line captured alongside a transaction. ACL
// fields are only populated when Kind is LogACL.
type LogEntry struct {
	Kind    LogKind
	Message string

	ACLResult ACLResult
	ACLName   string
	ACLAddr   string
}
