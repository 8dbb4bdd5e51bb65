package vslrecord

import "github.com/vsl-go/vslcore/pkg/vslwire"

// ClientKind discriminates the shape a completed client transaction takes.
// Every ClientAccessRecord carries all fields; Kind says which subset a
// consumer should expect to be populated.
type ClientKind int

const (
	// ClientFull served from start to finish: request, response, handling,
	// accounting and timings all present.
	ClientFull ClientKind = iota
	// ClientRestartedEarly means VCL restarted the request before a
	// response was ever produced; Response is nil, Restart links to the
	// transaction that took over.
	ClientRestartedEarly
	// ClientRestartedLate means VCL restarted after vcl_deliver or
	// vcl_synth had been entered; Restart is populated, and Backend is
	// populated only when the transaction linked a backend fetch.
	ClientRestartedLate
	// ClientPiped was handed off to a raw byte pipe between client and
	// backend; PipeAccounting is populated instead of Accounting.
	ClientPiped
)

func (k ClientKind) String() string {
	switch k {
	case ClientRestartedEarly:
		return "restarted-early"
	case ClientRestartedLate:
		return "restarted-late"
	case ClientPiped:
		return "piped"
	default:
		return "full"
	}
}

// ClientAccessRecord is the record of one client-facing transaction (one
// req/resp cycle as seen from Varnish's client side). Which fields are
// meaningful depends on Kind: see ClientKind's documentation.
type ClientAccessRecord struct {
	VXID vslwire.VXID
	Kind ClientKind

	Request  Request
	Response *Response

	Handling *Handling

	ESIChildren []Link[*ClientAccessRecord]
	Backend     *Link[*BackendAccessRecord]
	Restart     *Link[*ClientAccessRecord]

	Process *Duration
	Fetch   *Duration
	TTFB    *Duration
	Serve   *Duration

	Accounting     *Accounting
	PipeAccounting *PipeAccounting

	Log []LogEntry
}

// BackendKind discriminates the shape a completed backend fetch takes.
type BackendKind int

const (
	// BackendFull fetched a response body successfully.
	BackendFull BackendKind = iota
	// BackendFailed means VCL synthesized a response (vcl_backend_error)
	// instead of using what the backend sent; SynthResponse is populated.
	BackendFailed
	// BackendAborted means the fetch was abandoned by VCL before any
	// response was read.
	BackendAborted
	// BackendAbandoned means VCL retried the fetch, or abandoned it after the
	// backend response had been received; Retry links to the transaction
	// that took over when a retry link was seen, and is nil otherwise.
	BackendAbandoned
	// BackendPiped served a raw pipe instead of a cached fetch.
	BackendPiped
)

func (k BackendKind) String() string {
	switch k {
	case BackendFailed:
		return "failed"
	case BackendAborted:
		return "aborted"
	case BackendAbandoned:
		return "abandoned"
	case BackendPiped:
		return "piped"
	default:
		return "full"
	}
}

// BackendAccessRecord is the record of one backend fetch transaction (one
// bereq/beresp cycle as seen from Varnish's backend side).
type BackendAccessRecord struct {
	VXID vslwire.VXID
	Kind BackendKind

	Request       Request
	Response      *Response
	SynthResponse *Response

	Connection *Addr

	CacheObject *CacheObject

	Send  *Duration
	Wait  *Duration
	TTFB  *Duration
	Fetch *Duration

	Accounting *Accounting
	Retry      *Link[*BackendAccessRecord]

	Log []LogEntry
}

// SessionRecord is the record of one TCP/unix connection: its endpoints,
// lifetime, and the client transactions it carried.
type SessionRecord struct {
	VXID     vslwire.VXID
	Open     Timestamp
	Duration Duration
	Local    *Addr
	Remote   Addr
	Clients  []Link[*ClientAccessRecord]
}
