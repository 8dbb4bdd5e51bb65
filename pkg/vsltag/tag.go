// Package vsltag defines the VSL tag code space: the fixed, externally
// defined set of numeric identifiers Varnish assigns to each kind of log
// record. The core engine treats the set as closed but not exhaustive —
// codes it doesn't recognize decode to Bogus rather than aborting the
// stream.
package vsltag

// Tag identifies the kind of a VSL record. Values mirror the ordering of
// Varnish's own vsl_tagtable: low values are stream/transaction framing,
// mid-range values are request/response field tags, high values are VCL
// and diagnostic channels.
type Tag uint8

const (
	Bogus Tag = iota

	Begin
	End
	ReqStart

	Timestamp

	ReqMethod
	ReqURL
	ReqProtocol
	ReqHeader
	ReqUnset

	BereqMethod
	BereqURL
	BereqProtocol
	BereqHeader
	BereqUnset

	RespProtocol
	RespStatus
	RespReason
	RespHeader
	RespUnset

	BerespProtocol
	BerespStatus
	BerespReason
	BerespHeader
	BerespUnset

	ObjProtocol
	ObjStatus
	ObjReason
	ObjHeader
	ObjUnset

	VCLCall
	VCLReturn
	VCLAcl
	VCLLog

	Link
	Hit
	HitPass

	Storage
	TTL
	FetchBody

	ReqAcct
	BereqAcct
	PipeAcct

	BackendOpen
	BackendClose
	BackendStart

	SessOpen
	SessClose

	Debug
	Error
	FetchError
	Warning
	BogoHeader
	LostHeader
)

var names = map[Tag]string{
	Bogus:          "Bogus",
	Begin:          "Begin",
	End:            "End",
	ReqStart:       "ReqStart",
	Timestamp:      "Timestamp",
	ReqMethod:      "ReqMethod",
	ReqURL:         "ReqURL",
	ReqProtocol:    "ReqProtocol",
	ReqHeader:      "ReqHeader",
	ReqUnset:       "ReqUnset",
	BereqMethod:    "BereqMethod",
	BereqURL:       "BereqURL",
	BereqProtocol:  "BereqProtocol",
	BereqHeader:    "BereqHeader",
	BereqUnset:     "BereqUnset",
	RespProtocol:   "RespProtocol",
	RespStatus:     "RespStatus",
	RespReason:     "RespReason",
	RespHeader:     "RespHeader",
	RespUnset:      "RespUnset",
	BerespProtocol: "BerespProtocol",
	BerespStatus:   "BerespStatus",
	BerespReason:   "BerespReason",
	BerespHeader:   "BerespHeader",
	BerespUnset:    "BerespUnset",
	ObjProtocol:    "ObjProtocol",
	ObjStatus:      "ObjStatus",
	ObjReason:      "ObjReason",
	ObjHeader:      "ObjHeader",
	ObjUnset:       "ObjUnset",
	VCLCall:        "VCL_call",
	VCLReturn:      "VCL_return",
	VCLAcl:         "VCL_acl",
	VCLLog:         "VCL_Log",
	Link:           "Link",
	Hit:            "Hit",
	HitPass:        "HitPass",
	Storage:        "Storage",
	TTL:            "TTL",
	FetchBody:      "Fetch_Body",
	ReqAcct:        "ReqAcct",
	BereqAcct:      "BereqAcct",
	PipeAcct:       "PipeAcct",
	BackendOpen:    "BackendOpen",
	BackendClose:   "BackendClose",
	BackendStart:   "BackendStart",
	SessOpen:       "SessOpen",
	SessClose:      "SessClose",
	Debug:          "Debug",
	Error:          "Error",
	FetchError:     "FetchError",
	Warning:        "Warning",
	BogoHeader:     "BogoHeader",
	LostHeader:     "LostHeader",
}

var codes = func() map[string]Tag {
	m := make(map[string]Tag, len(names))
	for tag, name := range names {
		m[name] = tag
	}
	return m
}()

// String returns the textual tag name, or "Bogus" if the code is unknown.
func (t Tag) String() string {
	if name, ok := names[t]; ok {
		return name
	}
	return "Bogus"
}

// FromCode maps a raw numeric tag code to a Tag, falling back to Bogus for
// any code the engine does not recognize. Decoding must never fail on an
// unknown tag; Bogus keeps the stream alive while still surfacing unusual
// input to anything inspecting bogus-tag counters downstream.
func FromCode(code uint8) Tag {
	t := Tag(code)
	if _, ok := names[t]; ok {
		return t
	}
	return Bogus
}

// FromName looks up a Tag by its canonical textual name.
func FromName(name string) (Tag, bool) {
	t, ok := codes[name]
	return t, ok
}
