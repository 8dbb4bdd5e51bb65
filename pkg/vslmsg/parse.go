// Package vslmsg decodes the textual payload each VSL tag carries into a
// typed Go value. Varnish's own log payloads are space-delimited ASCII (or
// UTF-8 that may contain the occasional invalid byte from a misbehaving
// client); a payload that isn't valid UTF-8 is never an error here, only a
// lossy substitution.
package vslmsg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vsl-go/vslcore/pkg/vslrecord"
)

// lossyString converts a raw payload to UTF-8, substituting the Unicode
// replacement character for any invalid byte sequences rather than
// failing. Header values and free-text fields go through here; numeric and
// keyword fields are ASCII by construction and skip it.
func lossyString(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

func splitN(payload []byte, n int) ([]string, error) {
	fields := strings.SplitN(lossyString(payload), " ", n)
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d fields, got %d in %q", n, len(fields), payload)
	}
	return fields, nil
}

// Begin describes a Begin tag payload: the kind of transaction starting
// ("sess", "req", or "bereq"), the parent VXID it was spawned from (0 for
// none), and a short reason string.
type Begin struct {
	Kind      string
	ParentVXID uint32
	Reason    string
}

func ParseBegin(payload []byte) (Begin, error) {
	fields, err := splitN(payload, 3)
	if err != nil {
		return Begin{}, err
	}
	parent, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return Begin{}, fmt.Errorf("begin: invalid parent vxid %q: %w", fields[1], err)
	}
	return Begin{Kind: fields[0], ParentVXID: uint32(parent), Reason: fields[2]}, nil
}

// TimestampMsg describes a Timestamp tag payload: a label ("Start",
// "Req", "Resp", "Process", "Fetch", "BerespBody", ...) and three floating
// point values: absolute wall-clock time, elapsed since the transaction
// started, and elapsed since the previous Timestamp record.
type TimestampMsg struct {
	Label       string
	Absolute    vslrecord.Timestamp
	SinceStart  vslrecord.Duration
	SinceLast   vslrecord.Duration
}

func ParseTimestamp(payload []byte) (TimestampMsg, error) {
	s := lossyString(payload)
	label, rest, ok := strings.Cut(s, ": ")
	if !ok {
		return TimestampMsg{}, fmt.Errorf("timestamp: missing label separator in %q", s)
	}
	fields := strings.Fields(rest)
	if len(fields) != 3 {
		return TimestampMsg{}, fmt.Errorf("timestamp: expected 3 values, got %d in %q", len(fields), s)
	}
	abs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return TimestampMsg{}, fmt.Errorf("timestamp: invalid absolute time %q: %w", fields[0], err)
	}
	sinceStart, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return TimestampMsg{}, fmt.Errorf("timestamp: invalid since-start %q: %w", fields[1], err)
	}
	sinceLast, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return TimestampMsg{}, fmt.Errorf("timestamp: invalid since-last %q: %w", fields[2], err)
	}
	return TimestampMsg{
		Label:      label,
		Absolute:   vslrecord.Timestamp(abs),
		SinceStart: vslrecord.Duration(sinceStart),
		SinceLast:  vslrecord.Duration(sinceLast),
	}, nil
}

// HeaderField is a parsed "Name: value" header payload, used for the
// Req/Bereq/Resp/Beresp/Obj Header and Unset tags alike.
type HeaderField struct {
	Name  string
	Value string
}

func ParseHeaderField(payload []byte) (HeaderField, error) {
	s := lossyString(payload)
	name, value, ok := strings.Cut(s, ": ")
	if !ok {
		// Varnish emits a bare name with no value for headers like
		// "Connection:" with nothing after the colon.
		name = strings.TrimSuffix(s, ":")
		return HeaderField{Name: name}, nil
	}
	return HeaderField{Name: name, Value: value}, nil
}

// LinkMsg describes a Link tag payload: the kind of the linked transaction
// ("req", "bereq", "busy"), its VXID, and a reason.
type LinkMsg struct {
	Kind     string
	ChildVXID uint32
	Reason   string
}

func ParseLink(payload []byte) (LinkMsg, error) {
	fields, err := splitN(payload, 3)
	if err != nil {
		return LinkMsg{}, err
	}
	child, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return LinkMsg{}, fmt.Errorf("link: invalid child vxid %q: %w", fields[1], err)
	}
	return LinkMsg{Kind: fields[0], ChildVXID: uint32(child), Reason: fields[2]}, nil
}

// ParseHitVXID parses the single-VXID payload carried by Hit and HitPass.
func ParseHitVXID(payload []byte) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(lossyString(payload)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("hit: invalid vxid %q: %w", payload, err)
	}
	return uint32(v), nil
}

// SessOpenMsg describes a SessOpen tag payload.
type SessOpenMsg struct {
	RemoteIP   string
	RemotePort int
	Listener   string
	LocalIP    string
	LocalPort  int
	Open       vslrecord.Timestamp
	FD         int
}

func ParseSessOpen(payload []byte) (SessOpenMsg, error) {
	fields := strings.Fields(lossyString(payload))
	if len(fields) != 7 {
		return SessOpenMsg{}, fmt.Errorf("sessopen: expected 7 fields, got %d", len(fields))
	}
	remotePort, err := strconv.Atoi(fields[1])
	if err != nil {
		return SessOpenMsg{}, fmt.Errorf("sessopen: invalid remote port %q: %w", fields[1], err)
	}
	open, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return SessOpenMsg{}, fmt.Errorf("sessopen: invalid open timestamp %q: %w", fields[5], err)
	}
	fd, err := strconv.Atoi(fields[6])
	if err != nil {
		return SessOpenMsg{}, fmt.Errorf("sessopen: invalid fd %q: %w", fields[6], err)
	}
	msg := SessOpenMsg{
		RemoteIP:   fields[0],
		RemotePort: remotePort,
		Listener:   fields[2],
		LocalIP:    fields[3],
		Open:       vslrecord.Timestamp(open),
		FD:         fd,
	}
	if fields[4] != "-" {
		localPort, err := strconv.Atoi(fields[4])
		if err != nil {
			return SessOpenMsg{}, fmt.Errorf("sessopen: invalid local port %q: %w", fields[4], err)
		}
		msg.LocalPort = localPort
	}
	return msg, nil
}

// SessCloseMsg describes a SessClose tag payload.
type SessCloseMsg struct {
	Reason   string
	Duration vslrecord.Duration
}

func ParseSessClose(payload []byte) (SessCloseMsg, error) {
	fields, err := splitN(payload, 2)
	if err != nil {
		return SessCloseMsg{}, err
	}
	d, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return SessCloseMsg{}, fmt.Errorf("sessclose: invalid duration %q: %w", fields[1], err)
	}
	return SessCloseMsg{Reason: fields[0], Duration: vslrecord.Duration(d)}, nil
}

func parseAcctFields(payload []byte, n int) ([]uint64, error) {
	fields := strings.Fields(lossyString(payload))
	if len(fields) != n {
		return nil, fmt.Errorf("acct: expected %d fields, got %d", n, len(fields))
	}
	out := make([]uint64, n)
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("acct: invalid counter %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseReqAcct parses a ReqAcct payload: recv header/body/total bytes
// followed by sent header/body/total bytes.
func ParseReqAcct(payload []byte) (vslrecord.Accounting, error) {
	v, err := parseAcctFields(payload, 6)
	if err != nil {
		return vslrecord.Accounting{}, err
	}
	return vslrecord.Accounting{
		RecvHeader: v[0], RecvBody: v[1], RecvTotal: v[2],
		SentHeader: v[3], SentBody: v[4], SentTotal: v[5],
	}, nil
}

// ParseBereqAcct parses a BereqAcct payload: sent header/body/total bytes
// followed by received header/body/total bytes (mirrored order from
// ReqAcct since it's measured from the backend's perspective).
func ParseBereqAcct(payload []byte) (vslrecord.Accounting, error) {
	v, err := parseAcctFields(payload, 6)
	if err != nil {
		return vslrecord.Accounting{}, err
	}
	return vslrecord.Accounting{
		SentHeader: v[0], SentBody: v[1], SentTotal: v[2],
		RecvHeader: v[3], RecvBody: v[4], RecvTotal: v[5],
	}, nil
}

// ParsePipeAcct parses a PipeAcct payload.
func ParsePipeAcct(payload []byte) (vslrecord.PipeAccounting, error) {
	v, err := parseAcctFields(payload, 4)
	if err != nil {
		return vslrecord.PipeAccounting{}, err
	}
	return vslrecord.PipeAccounting{
		ClientReqHeaders:  v[0],
		BackendReqHeaders: v[1],
		PipedFromClient:   v[2],
		PipedToClient:     v[3],
	}, nil
}

// BackendOpenMsg describes a BackendOpen tag payload.
type BackendOpenMsg struct {
	FD         int
	Name       string
	RemoteAddr *vslrecord.Addr
	LocalAddr  *vslrecord.Addr
}

func ParseBackendOpen(payload []byte) (BackendOpenMsg, error) {
	fields := strings.Fields(lossyString(payload))
	if len(fields) < 2 {
		return BackendOpenMsg{}, fmt.Errorf("backendopen: expected at least 2 fields, got %d", len(fields))
	}
	fd, err := strconv.Atoi(fields[0])
	if err != nil {
		return BackendOpenMsg{}, fmt.Errorf("backendopen: invalid fd %q: %w", fields[0], err)
	}
	msg := BackendOpenMsg{FD: fd, Name: fields[1]}
	if len(fields) >= 4 && fields[2] != "<none>" {
		port, err := strconv.Atoi(fields[3])
		if err != nil {
			return BackendOpenMsg{}, fmt.Errorf("backendopen: invalid remote port %q: %w", fields[3], err)
		}
		msg.RemoteAddr = &vslrecord.Addr{IP: fields[2], Port: port}
	}
	if len(fields) >= 6 && fields[4] != "<none>" {
		port, err := strconv.Atoi(fields[5])
		if err != nil {
			return BackendOpenMsg{}, fmt.Errorf("backendopen: invalid local port %q: %w", fields[5], err)
		}
		msg.LocalAddr = &vslrecord.Addr{IP: fields[4], Port: port}
	}
	return msg, nil
}

// TTLMsg describes a TTL tag payload. Origin/Date/Expires/MaxAge are only
// present on the "RFC" source variant emitted for HTTP-derived TTLs.
type TTLMsg struct {
	Source  string
	TTL     vslrecord.Duration
	Grace   vslrecord.Duration
	Keep    vslrecord.Duration
	Since   vslrecord.Timestamp
	Origin  *vslrecord.Timestamp
	Date    *vslrecord.Timestamp
	Expires *vslrecord.Timestamp
	MaxAge  *vslrecord.Duration
}

func ParseTTL(payload []byte) (TTLMsg, error) {
	fields := strings.Fields(lossyString(payload))
	if len(fields) < 5 {
		return TTLMsg{}, fmt.Errorf("ttl: expected at least 5 fields, got %d", len(fields))
	}
	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return TTLMsg{}, fmt.Errorf("ttl: invalid numeric field %q: %w", fields[i+1], err)
		}
		vals[i] = v
	}
	msg := TTLMsg{
		Source: fields[0],
		TTL:    vslrecord.Duration(vals[0]),
		Grace:  vslrecord.Duration(vals[1]),
		Keep:   vslrecord.Duration(vals[2]),
		Since:  vslrecord.Timestamp(vals[3]),
	}
	if len(fields) >= 9 {
		origin, err1 := strconv.ParseFloat(fields[5], 64)
		date, err2 := strconv.ParseFloat(fields[6], 64)
		expires, err3 := strconv.ParseFloat(fields[7], 64)
		maxAge, err4 := strconv.ParseFloat(fields[8], 64)
		if err1 == nil && err2 == nil && err3 == nil && err4 == nil {
			o, d, e := vslrecord.Timestamp(origin), vslrecord.Timestamp(date), vslrecord.Timestamp(expires)
			ma := vslrecord.Duration(maxAge)
			msg.Origin, msg.Date, msg.Expires, msg.MaxAge = &o, &d, &e, &ma
		}
	}
	return msg, nil
}

// FetchBodyMsg describes a Fetch_Body tag payload: Varnish's internal
// body-transfer mode number and name, and whether the body was streamed
// to the client rather than fully buffered.
type FetchBodyMsg struct {
	Mode     int
	ModeName string
	Streamed bool
}

func ParseFetchBody(payload []byte) (FetchBodyMsg, error) {
	fields := strings.Fields(lossyString(payload))
	if len(fields) != 3 {
		return FetchBodyMsg{}, fmt.Errorf("fetch_body: expected 3 fields, got %d", len(fields))
	}
	mode, err := strconv.Atoi(fields[0])
	if err != nil {
		return FetchBodyMsg{}, fmt.Errorf("fetch_body: invalid mode %q: %w", fields[0], err)
	}
	return FetchBodyMsg{Mode: mode, ModeName: fields[1], Streamed: fields[2] == "stream"}, nil
}

// ACLMsg describes a VCL_acl tag payload.
type ACLMsg struct {
	Result vslrecord.ACLResult
	Name   string
	Addr   string
}

func ParseVCLAcl(payload []byte) (ACLMsg, error) {
	fields := strings.Fields(lossyString(payload))
	if len(fields) < 2 {
		return ACLMsg{}, fmt.Errorf("vcl_acl: expected at least 2 fields, got %d", len(fields))
	}
	result := vslrecord.ACLNoMatch
	if fields[0] == "MATCH" {
		result = vslrecord.ACLMatch
	}
	msg := ACLMsg{Result: result, Name: fields[1]}
	if len(fields) >= 3 {
		msg.Addr = fields[2]
	}
	return msg, nil
}

// StorageMsg describes a Storage tag payload.
type StorageMsg struct {
	Type string
	Name string
}

func ParseStorage(payload []byte) (StorageMsg, error) {
	fields, err := splitN(payload, 2)
	if err != nil {
		return StorageMsg{}, err
	}
	return StorageMsg{Type: fields[0], Name: fields[1]}, nil
}
