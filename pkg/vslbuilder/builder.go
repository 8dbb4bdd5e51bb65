// Package vslbuilder implements the per-VXID record assembly state machine:
// it consumes one decoded wire record at a time and, once a transaction's
// End tag arrives, produces the completed client, backend, or session
// record that transaction represents.
package vslbuilder

import (
	"strconv"
	"strings"

	"github.com/vsl-go/vslcore/pkg/vslerrors"
	"github.com/vsl-go/vslcore/pkg/vslmsg"
	"github.com/vsl-go/vslcore/pkg/vslrecord"
	"github.com/vsl-go/vslcore/pkg/vsltag"
	"github.com/vsl-go/vslcore/pkg/vslwire"
)

// Kind is the transaction kind a builder assembles, established by its
// Begin tag.
type Kind int

const (
	KindUndefined Kind = iota
	KindSession
	KindClient
	KindBackend
)

// Status reports what Apply accomplished with the record it was given.
type Status int

const (
	// Building means the transaction is still in progress.
	Building Status = iota
	// Complete means End arrived and a record was successfully assembled.
	Complete
	// Errored means the state machine hit input it can't reconcile with
	// what it has already seen. The caller tombstones the VXID.
	Errored
)

// Result is the outcome of applying one record to a Builder.
type Result struct {
	Status  Status
	Session *vslrecord.SessionRecord
	Client  *vslrecord.ClientAccessRecord
	Backend *vslrecord.BackendAccessRecord
	Err     error
}

type sessOpenInfo struct {
	RemoteIP   string
	RemotePort int
	LocalIP    string
	LocalPort  int
	Open       vslrecord.Timestamp
}

type sessCloseInfo struct {
	Reason   string
	Duration vslrecord.Duration
}

// Builder accumulates one transaction's fields as its records arrive. A
// Builder is created on the first record seen for a VXID and discarded
// (successfully or as a tombstone) once End arrives.
type Builder struct {
	vxid       vslwire.VXID
	kind       Kind
	parentVXID vslwire.VXID
	reason     string

	reqLatched   bool
	respLatched  bool
	objLatched   bool
	synthMode    bool
	synthLatched bool
	hasResponse  bool

	// late marks the transition to post-fetch processing: set by VCL_call
	// SYNTH or DELIVER, consulted by VCL_return restart to tell an early
	// restart (no response produced yet) from a late one (deliver-time).
	late bool

	clientKind  vslrecord.ClientKind
	backendKind vslrecord.BackendKind

	request       vslrecord.Request
	response      vslrecord.Response
	synthResponse vslrecord.Response

	cacheObject    vslrecord.CacheObject
	hasCacheObject bool

	// Internal timings named per the Timestamp label table. Only a subset
	// feeds the output records (mapped at finishClient/finishBackend);
	// reqStart, pipeStart and respEnd are tracked for completeness but have
	// no corresponding output field in this domain model.
	reqStart   *vslrecord.Timestamp
	pipeStart  *vslrecord.Timestamp
	reqProcess *vslrecord.Duration
	respFetch  *vslrecord.Duration
	respTTFB   *vslrecord.Duration
	reqTook    *vslrecord.Duration
	respEnd    *vslrecord.Timestamp

	accounting     *vslrecord.Accounting
	pipeAccounting *vslrecord.PipeAccounting
	handling       *vslrecord.Handling

	esiChildren []vslrecord.Link[*vslrecord.ClientAccessRecord]
	backendLink *vslrecord.Link[*vslrecord.BackendAccessRecord]
	restartLink *vslrecord.Link[*vslrecord.ClientAccessRecord]
	retryLink   *vslrecord.Link[*vslrecord.BackendAccessRecord]

	connection *vslrecord.Addr

	sessOpen  *sessOpenInfo
	sessClose *sessCloseInfo

	log []vslrecord.LogEntry
}

// New creates a Builder for a newly observed VXID. The transaction kind is
// not known until Apply sees the Begin tag.
func New(vxid vslwire.VXID) *Builder {
	return &Builder{vxid: vxid}
}

// VXID returns the transaction this builder is assembling.
func (b *Builder) VXID() vslwire.VXID { return b.vxid }

// Kind reports the transaction kind once Begin has been seen.
func (b *Builder) Kind() Kind { return b.kind }

func (b *Builder) fail(err error) Result {
	return Result{Status: Errored, Err: err}
}

func payloadErr(vxid vslwire.VXID, err error) error {
	return vslerrors.NewPayloadError(uint32(vxid), err)
}

// Apply feeds one decoded record into the state machine.
func (b *Builder) Apply(rec vslwire.Record) Result {
	switch rec.Tag {
	case vsltag.Begin:
		return b.applyBegin(rec)

	case vsltag.ReqStart:
		// No state beyond Begin: session-rooted requests get their
		// addressing from the parent session's SessOpen.

	case vsltag.Timestamp:
		msg, err := vslmsg.ParseTimestamp(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.handleTimestamp(msg)

	case vsltag.ReqMethod, vsltag.BereqMethod:
		if !b.reqLatched {
			b.request.Method = string(rec.Data)
		}
	case vsltag.ReqURL, vsltag.BereqURL:
		if !b.reqLatched {
			b.request.URL = string(rec.Data)
		}
	case vsltag.ReqProtocol, vsltag.BereqProtocol:
		if !b.reqLatched {
			b.request.Protocol = string(rec.Data)
		}
	case vsltag.ReqHeader, vsltag.BereqHeader:
		if !b.reqLatched {
			h, err := vslmsg.ParseHeaderField(rec.Data)
			if err != nil {
				return b.fail(payloadErr(b.vxid, err))
			}
			b.request.Headers.Set(h.Name, h.Value)
		}
	case vsltag.ReqUnset, vsltag.BereqUnset:
		if !b.reqLatched {
			h, err := vslmsg.ParseHeaderField(rec.Data)
			if err != nil {
				return b.fail(payloadErr(b.vxid, err))
			}
			b.request.Headers.Unset(h.Name, h.Value)
		}

	case vsltag.RespProtocol, vsltag.BerespProtocol:
		b.setResponseField(func(r *vslrecord.Response) { r.Protocol = string(rec.Data) })
	case vsltag.RespStatus, vsltag.BerespStatus:
		status, err := strconv.Atoi(strings.TrimSpace(string(rec.Data)))
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.setResponseField(func(r *vslrecord.Response) { r.Status = status })
	case vsltag.RespReason, vsltag.BerespReason:
		b.setResponseField(func(r *vslrecord.Response) { r.Reason = string(rec.Data) })
	case vsltag.RespHeader, vsltag.BerespHeader:
		h, err := vslmsg.ParseHeaderField(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.setResponseField(func(r *vslrecord.Response) { r.Headers.Set(h.Name, h.Value) })
	case vsltag.RespUnset, vsltag.BerespUnset:
		h, err := vslmsg.ParseHeaderField(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.setResponseField(func(r *vslrecord.Response) { r.Headers.Unset(h.Name, h.Value) })

	case vsltag.ObjProtocol, vsltag.ObjStatus, vsltag.ObjReason, vsltag.ObjHeader, vsltag.ObjUnset:
		if err := b.handleObjField(rec); err != nil {
			return b.fail(err)
		}

	case vsltag.VCLCall:
		b.handleVCLCall(string(rec.Data))
	case vsltag.VCLReturn:
		b.handleVCLReturn(string(rec.Data))
	case vsltag.VCLAcl:
		msg, err := vslmsg.ParseVCLAcl(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.log = append(b.log, vslrecord.LogEntry{
			Kind: vslrecord.LogACL, ACLResult: msg.Result, ACLName: msg.Name, ACLAddr: msg.Addr,
		})
	case vsltag.VCLLog:
		b.log = append(b.log, vslrecord.LogEntry{Kind: vslrecord.LogVCL, Message: string(rec.Data)})

	case vsltag.Link:
		if err := b.handleLink(rec); err != nil {
			return b.fail(err)
		}

	case vsltag.Hit:
		v, err := vslmsg.ParseHitVXID(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.handling = &vslrecord.Handling{Kind: vslrecord.HandlingHit, ObjVXID: vslwire.VXID(v)}
	case vsltag.HitPass:
		v, err := vslmsg.ParseHitVXID(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.handling = &vslrecord.Handling{Kind: vslrecord.HandlingHitPass, ObjVXID: vslwire.VXID(v)}

	case vsltag.Storage:
		msg, err := vslmsg.ParseStorage(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.hasCacheObject = true
		b.cacheObject.StorageType = msg.Type
		b.cacheObject.StorageName = msg.Name

	case vsltag.TTL:
		msg, err := vslmsg.ParseTTL(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.hasCacheObject = true
		b.cacheObject.TTL = msg.TTL
		b.cacheObject.Grace = msg.Grace
		b.cacheObject.Keep = msg.Keep
		b.cacheObject.Since = msg.Since
		if msg.Origin != nil {
			b.cacheObject.Origin = *msg.Origin
		}
		if msg.Date != nil {
			b.cacheObject.Date = *msg.Date
		}
		if msg.Expires != nil {
			b.cacheObject.Expires = *msg.Expires
		}
		if msg.MaxAge != nil {
			b.cacheObject.MaxAge = *msg.MaxAge
		}

	case vsltag.FetchBody:
		msg, err := vslmsg.ParseFetchBody(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.hasCacheObject = true
		b.cacheObject.FetchMode = msg.ModeName
		b.cacheObject.FetchStreamed = msg.Streamed
		b.objLatched = true

	case vsltag.ReqAcct:
		a, err := vslmsg.ParseReqAcct(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.accounting = &a
	case vsltag.BereqAcct:
		a, err := vslmsg.ParseBereqAcct(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.accounting = &a
	case vsltag.PipeAcct:
		p, err := vslmsg.ParsePipeAcct(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.pipeAccounting = &p

	case vsltag.BackendOpen:
		msg, err := vslmsg.ParseBackendOpen(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.connection = msg.RemoteAddr

	case vsltag.SessOpen:
		msg, err := vslmsg.ParseSessOpen(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.sessOpen = &sessOpenInfo{
			RemoteIP: msg.RemoteIP, RemotePort: msg.RemotePort,
			LocalIP: msg.LocalIP, LocalPort: msg.LocalPort, Open: msg.Open,
		}
	case vsltag.SessClose:
		msg, err := vslmsg.ParseSessClose(rec.Data)
		if err != nil {
			return b.fail(payloadErr(b.vxid, err))
		}
		b.sessClose = &sessCloseInfo{Reason: msg.Reason, Duration: msg.Duration}

	case vsltag.Debug:
		b.log = append(b.log, vslrecord.LogEntry{Kind: vslrecord.LogDebug, Message: string(rec.Data)})
	case vsltag.Error:
		b.log = append(b.log, vslrecord.LogEntry{Kind: vslrecord.LogError, Message: string(rec.Data)})
	case vsltag.FetchError:
		b.log = append(b.log, vslrecord.LogEntry{Kind: vslrecord.LogFetchError, Message: string(rec.Data)})
	case vsltag.Warning, vsltag.BogoHeader, vsltag.LostHeader:
		b.log = append(b.log, vslrecord.LogEntry{Kind: vslrecord.LogWarning, Message: string(rec.Data)})

	case vsltag.End:
		return b.finish()

	default:
		// Bogus, and any tag the engine doesn't model, is dropped: unknown
		// framing must never fail a transaction.
	}

	return Result{Status: Building}
}

func (b *Builder) applyBegin(rec vslwire.Record) Result {
	msg, err := vslmsg.ParseBegin(rec.Data)
	if err != nil {
		return b.fail(payloadErr(b.vxid, err))
	}
	switch msg.Kind {
	case "sess":
		b.kind = KindSession
	case "req":
		b.kind = KindClient
	case "bereq":
		b.kind = KindBackend
	default:
		return b.fail(vslerrors.NewBuilderStateError(uint32(b.vxid), "begin: unrecognized transaction kind "+msg.Kind))
	}
	b.parentVXID = vslwire.VXID(msg.ParentVXID)
	b.reason = msg.Reason
	return Result{Status: Building}
}

func (b *Builder) handleTimestamp(msg vslmsg.TimestampMsg) {
	switch msg.Label {
	case "Start":
		abs := msg.Absolute
		b.reqStart = &abs
	case "Req":
		since := msg.SinceStart
		b.reqProcess = &since
	case "Bereq":
		abs := msg.Absolute
		b.pipeStart = &abs
		since := msg.SinceStart
		b.reqProcess = &since
	case "Beresp":
		ttfb := msg.SinceStart
		b.respTTFB = &ttfb
		fetch := msg.SinceLast
		b.respFetch = &fetch
	case "Fetch":
		fetch := msg.SinceLast
		b.respFetch = &fetch
	case "Pipe", "Process":
		ttfb := msg.SinceStart
		b.respTTFB = &ttfb
	case "Resp", "BerespBody", "Retry", "PipeSess":
		took := msg.SinceStart
		b.reqTook = &took
		end := msg.Absolute
		b.respEnd = &end
	case "Error":
		took := msg.SinceStart
		b.reqTook = &took
		end := msg.Absolute
		b.respEnd = &end
		b.respTTFB = nil
		b.respFetch = nil
	case "Restart":
		end := msg.Absolute
		b.respEnd = &end
	}
}

func (b *Builder) setResponseField(mutate func(*vslrecord.Response)) {
	if b.synthMode {
		mutate(&b.synthResponse)
		b.synthLatched = true
		return
	}
	if b.respLatched {
		return
	}
	mutate(&b.response)
	b.hasResponse = true
}

func (b *Builder) handleObjField(rec vslwire.Record) error {
	if b.objLatched {
		return nil
	}
	b.hasCacheObject = true
	switch rec.Tag {
	case vsltag.ObjProtocol:
		b.cacheObject.Response.Protocol = string(rec.Data)
	case vsltag.ObjStatus:
		status, err := strconv.Atoi(strings.TrimSpace(string(rec.Data)))
		if err != nil {
			return payloadErr(b.vxid, err)
		}
		b.cacheObject.Response.Status = status
	case vsltag.ObjReason:
		b.cacheObject.Response.Reason = string(rec.Data)
	case vsltag.ObjHeader:
		h, err := vslmsg.ParseHeaderField(rec.Data)
		if err != nil {
			return payloadErr(b.vxid, err)
		}
		b.cacheObject.Response.Headers.Set(h.Name, h.Value)
	case vsltag.ObjUnset:
		h, err := vslmsg.ParseHeaderField(rec.Data)
		if err != nil {
			return payloadErr(b.vxid, err)
		}
		b.cacheObject.Response.Headers.Unset(h.Name, h.Value)
	}
	return nil
}

func (b *Builder) handleVCLCall(method string) {
	switch method {
	case "RECV":
		b.reqLatched = true
	case "BACKEND_RESPONSE":
		b.reqLatched = true
		b.respLatched = true
	case "BACKEND_ERROR":
		if b.kind == KindBackend {
			b.backendKind = vslrecord.BackendFailed
			b.synthMode = true
			b.reqLatched = true
		}
	case "MISS":
		b.handling = &vslrecord.Handling{Kind: vslrecord.HandlingMiss}
	case "PASS":
		if b.handling == nil {
			b.handling = &vslrecord.Handling{Kind: vslrecord.HandlingPass}
		}
	case "SYNTH":
		b.handling = &vslrecord.Handling{Kind: vslrecord.HandlingSynth}
		b.late = true
	case "DELIVER":
		b.late = true
	}
}

func (b *Builder) handleVCLReturn(action string) {
	switch b.kind {
	case KindClient:
		switch action {
		case "restart":
			if b.late {
				b.clientKind = vslrecord.ClientRestartedLate
			} else {
				b.clientKind = vslrecord.ClientRestartedEarly
			}
		case "pipe":
			b.clientKind = vslrecord.ClientPiped
		}
	case KindBackend:
		switch action {
		case "retry":
			b.backendKind = vslrecord.BackendAbandoned
		case "abandon", "fail":
			if !b.reqLatched {
				b.backendKind = vslrecord.BackendAborted
				b.reqLatched = true
			} else {
				b.backendKind = vslrecord.BackendAbandoned
			}
		case "error":
			b.backendKind = vslrecord.BackendFailed
		}
	}
}

func (b *Builder) handleLink(rec vslwire.Record) error {
	msg, err := vslmsg.ParseLink(rec.Data)
	if err != nil {
		return payloadErr(b.vxid, err)
	}
	childVXID := vslwire.VXID(msg.ChildVXID)

	switch {
	case msg.Reason == "restart" && msg.Kind == "req":
		link := vslrecord.NewUnresolvedLink[*vslrecord.ClientAccessRecord](childVXID, msg.Reason)
		b.restartLink = &link
	case msg.Kind == "bereq" && msg.Reason == "retry":
		link := vslrecord.NewUnresolvedLink[*vslrecord.BackendAccessRecord](childVXID, msg.Reason)
		b.retryLink = &link
	case msg.Kind == "bereq":
		link := vslrecord.NewUnresolvedLink[*vslrecord.BackendAccessRecord](childVXID, msg.Reason)
		b.backendLink = &link
	case msg.Kind == "req":
		b.esiChildren = append(b.esiChildren, vslrecord.NewUnresolvedLink[*vslrecord.ClientAccessRecord](childVXID, msg.Reason))
	}
	return nil
}

func (b *Builder) finish() Result {
	switch b.kind {
	case KindSession:
		return b.finishSession()
	case KindClient:
		return b.finishClient()
	case KindBackend:
		return b.finishBackend()
	default:
		return b.fail(vslerrors.NewBuilderStateError(uint32(b.vxid), "End seen before Begin established a transaction kind"))
	}
}

func (b *Builder) finishSession() Result {
	if b.sessOpen == nil || b.sessClose == nil {
		return b.fail(vslerrors.NewBuilderStateError(uint32(b.vxid), "session ended without both SessOpen and SessClose"))
	}
	rec := &vslrecord.SessionRecord{
		VXID:     b.vxid,
		Open:     b.sessOpen.Open,
		Duration: b.sessClose.Duration,
		Remote:   vslrecord.Addr{IP: b.sessOpen.RemoteIP, Port: b.sessOpen.RemotePort},
		Clients:  b.esiChildren,
	}
	if b.sessOpen.LocalIP != "" {
		local := vslrecord.Addr{IP: b.sessOpen.LocalIP, Port: b.sessOpen.LocalPort}
		rec.Local = &local
	}
	return Result{Status: Complete, Session: rec}
}

func (b *Builder) resolveHandling() *vslrecord.Handling {
	switch {
	case b.handling != nil:
		return b.handling
	case b.clientKind == vslrecord.ClientPiped:
		return &vslrecord.Handling{Kind: vslrecord.HandlingPipe}
	case b.backendLink != nil:
		return &vslrecord.Handling{Kind: vslrecord.HandlingMiss}
	default:
		return &vslrecord.Handling{Kind: vslrecord.HandlingSynth}
	}
}

func (b *Builder) finishClient() Result {
	rec := &vslrecord.ClientAccessRecord{
		VXID:        b.vxid,
		Kind:        b.clientKind,
		Request:     b.request,
		ESIChildren: b.esiChildren,
		Backend:     b.backendLink,
		Restart:     b.restartLink,
		Process:     b.reqProcess,
		Fetch:       b.respFetch,
		TTFB:        b.respTTFB,
		Serve:       b.reqTook,
		Log:         b.log,
		Handling:    b.resolveHandling(),
	}
	if b.hasResponse {
		resp := b.response
		rec.Response = &resp
	}
	if b.clientKind == vslrecord.ClientPiped {
		rec.PipeAccounting = b.pipeAccounting
	} else {
		rec.Accounting = b.accounting
	}

	switch b.clientKind {
	case vslrecord.ClientFull:
		if rec.Response == nil {
			return b.fail(vslerrors.NewBuilderStateError(uint32(b.vxid), "full client transaction ended without a response"))
		}
	case vslrecord.ClientRestartedEarly:
		if rec.Restart == nil {
			return b.fail(vslerrors.NewBuilderStateError(uint32(b.vxid), "early-restarted client transaction ended without a restart link"))
		}
	case vslrecord.ClientRestartedLate:
		if rec.Restart == nil {
			return b.fail(vslerrors.NewBuilderStateError(uint32(b.vxid), "late-restarted client transaction ended without a restart link"))
		}
	case vslrecord.ClientPiped:
		if rec.Backend == nil {
			return b.fail(vslerrors.NewBuilderStateError(uint32(b.vxid), "piped client transaction ended without a backend link"))
		}
	}
	return Result{Status: Complete, Client: rec}
}

func (b *Builder) finishBackend() Result {
	rec := &vslrecord.BackendAccessRecord{
		VXID:       b.vxid,
		Kind:       b.backendKind,
		Request:    b.request,
		Log:        b.log,
		Connection: b.connection,
		Accounting: b.accounting,
		Retry:      b.retryLink,
	}
	if b.hasResponse {
		resp := b.response
		rec.Response = &resp
	}
	if b.synthLatched {
		synth := b.synthResponse
		rec.SynthResponse = &synth
	}
	if b.hasCacheObject {
		co := b.cacheObject
		rec.CacheObject = &co
	}
	rec.Send = b.reqProcess
	rec.Wait = b.respFetch
	rec.TTFB = b.respTTFB
	rec.Fetch = b.reqTook

	switch b.backendKind {
	case vslrecord.BackendFull:
		if rec.Response == nil {
			return b.fail(vslerrors.NewBuilderStateError(uint32(b.vxid), "full backend fetch ended without a response"))
		}
	case vslrecord.BackendFailed:
		if rec.SynthResponse == nil {
			return b.fail(vslerrors.NewBuilderStateError(uint32(b.vxid), "failed backend fetch ended without a synthesized response"))
		}
	}
	return Result{Status: Complete, Backend: rec}
}
