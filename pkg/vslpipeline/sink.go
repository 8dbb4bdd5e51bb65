package vslpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/vsl-go/vslcore/pkg/vslrecord"
)

// JSONSink writes one JSON object per line for every session, orphan
// client, and orphan backend it receives. It is the default sink for a
// standalone tail process; anything that wants to ship records elsewhere
// (a message queue, an HTTP endpoint) implements Sink directly instead.
type JSONSink struct {
	mu sync.Mutex
	w  io.Writer
	enc *json.Encoder

	// indexHeaders, when true, attaches a normalized name->values map
	// alongside the raw ordered header list, mirroring the original
	// tool's default header-indexing behavior. Off by default: the raw
	// ordered Headers list is always present regardless of this flag.
	indexHeaders bool
}

// NewJSONSink wraps w. Writes are serialized with a mutex since the
// pipeline itself is single-threaded but callers may share a sink across
// more than one pipeline instance.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w, enc: json.NewEncoder(w)}
}

// WithHeaderIndexing toggles whether orphan client and orphan backend
// envelopes carry an additional normalized-name header index alongside the
// raw ordered list. Session envelopes never carry the index.
func (s *JSONSink) WithHeaderIndexing(enabled bool) *JSONSink {
	s.indexHeaders = enabled
	return s
}

type envelope struct {
	Kind           string                         `json:"kind"`
	Session        *vslrecord.SessionRecord        `json:"session,omitempty"`
	Client         *vslrecord.ClientAccessRecord   `json:"client,omitempty"`
	Backend        *vslrecord.BackendAccessRecord  `json:"backend,omitempty"`
	RequestHeaders map[string][]string             `json:"request_headers_indexed,omitempty"`
}

func (s *JSONSink) Session(_ context.Context, rec *vslrecord.SessionRecord) error {
	return s.write(envelope{Kind: "session", Session: rec})
}

func (s *JSONSink) OrphanClient(_ context.Context, rec *vslrecord.ClientAccessRecord) error {
	e := envelope{Kind: "orphan_client", Client: rec}
	if s.indexHeaders {
		e.RequestHeaders = indexHeaders(rec.Request.Headers)
	}
	return s.write(e)
}

func (s *JSONSink) OrphanBackend(_ context.Context, rec *vslrecord.BackendAccessRecord) error {
	e := envelope{Kind: "orphan_backend", Backend: rec}
	if s.indexHeaders {
		e.RequestHeaders = indexHeaders(rec.Request.Headers)
	}
	return s.write(e)
}

func (s *JSONSink) write(e envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(e)
}

// indexHeaders folds an ordered header list into a normalized name->values
// map, preserving duplicate occurrences in arrival order per name.
func indexHeaders(h vslrecord.Headers) map[string][]string {
	pairs := h.Pairs()
	if len(pairs) == 0 {
		return nil
	}
	idx := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		name := strings.ToLower(p.Name)
		idx[name] = append(idx[name], p.Value)
	}
	return idx
}

// NCSASink renders resolved client transactions as Apache combined-log-format
// lines, the format varnishncsa itself produces. It has no representation for
// a session as a whole or for a bare backend fetch, since NCSA is a
// per-HTTP-request format: a session's resolved client links are each
// rendered as their own line, and orphan backends are skipped outright
// (silently and without an error, since a backend fetch never had a client
// request to describe in this format).
type NCSASink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewNCSASink wraps w.
func NewNCSASink(w io.Writer) *NCSASink {
	return &NCSASink{w: w}
}

func (s *NCSASink) Session(_ context.Context, rec *vslrecord.SessionRecord) error {
	for _, link := range rec.Clients {
		client, ok := link.Value()
		if !ok {
			continue
		}
		if err := s.writeClient(rec.Remote, rec.Open, client); err != nil {
			return err
		}
	}
	return nil
}

func (s *NCSASink) OrphanClient(_ context.Context, rec *vslrecord.ClientAccessRecord) error {
	return s.writeClient(vslrecord.Addr{}, vslrecord.Timestamp(time.Now().Unix()), rec)
}

func (s *NCSASink) OrphanBackend(context.Context, *vslrecord.BackendAccessRecord) error {
	return nil
}

func (s *NCSASink) writeClient(remote vslrecord.Addr, open vslrecord.Timestamp, rec *vslrecord.ClientAccessRecord) error {
	if rec.Kind != vslrecord.ClientFull || rec.Response == nil {
		return nil
	}

	var bytesSent uint64
	if rec.Accounting != nil {
		bytesSent = rec.Accounting.SentBody
	} else if rec.PipeAccounting != nil {
		bytesSent = rec.PipeAccounting.PipedToClient
	}

	ts := time.Unix(int64(open), 0).UTC()
	line := fmt.Sprintf("%s - - [%s] \"%s %s %s\" %d %d\n",
		ncsaHost(remote),
		ts.Format("02/Jan/2006:15:04:05 -0700"),
		rec.Request.Method, rec.Request.URL, rec.Request.Protocol,
		rec.Response.Status, bytesSent,
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, line)
	return err
}

func ncsaHost(addr vslrecord.Addr) string {
	if addr.IP == "" {
		return "-"
	}
	return addr.IP
}
