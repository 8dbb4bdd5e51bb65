// Package vslpipeline wires the framing, building, storing, and session
// resolution layers into the single cooperative loop that drives a VSL
// stream from first byte to clean shutdown.
package vslpipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vsl-go/vslcore/internal/logger"
	"github.com/vsl-go/vslcore/internal/telemetry"
	"github.com/vsl-go/vslcore/pkg/vslbuilder"
	"github.com/vsl-go/vslcore/pkg/vslerrors"
	"github.com/vsl-go/vslcore/pkg/vslmetrics"
	"github.com/vsl-go/vslcore/pkg/vslrecord"
	"github.com/vsl-go/vslcore/pkg/vslsession"
	"github.com/vsl-go/vslcore/pkg/vslstore"
	"github.com/vsl-go/vslcore/pkg/vsltag"
	"github.com/vsl-go/vslcore/pkg/vslwire"
)

// Sink is where fully (or best-effort) resolved records go once the
// pipeline is done with them. A sink that writes to a slow downstream
// should apply its own backoff/buffering; the pipeline calls it
// synchronously from the cooperative loop and only logs a sink error, it
// does not retry.
type Sink interface {
	// Session delivers a session whose client links have been resolved
	// as far as they ever will be. Some links inside it may still be
	// Unresolved if the stream ended or an eviction cut them off.
	Session(ctx context.Context, rec *vslrecord.SessionRecord) error
	// OrphanClient delivers a completed client transaction that no
	// session ever claimed within the configured staleness window.
	OrphanClient(ctx context.Context, rec *vslrecord.ClientAccessRecord) error
	// OrphanBackend delivers a completed backend transaction that no
	// client ever claimed within the configured staleness window.
	OrphanBackend(ctx context.Context, rec *vslrecord.BackendAccessRecord) error
}

// Options tunes stream framing and record retention. Field names and
// semantics match the pipeline configuration surface.
type Options struct {
	StreamBufferSize  int
	MaxRecordSlots    int
	MaxEpochDiff      uint64
	EvictFactor       float64
	StatEpochInterval uint64
}

// Pipeline reads VSL records from a single stream and delivers resolved
// records to a Sink. It is not safe for concurrent use: Run owns the
// entire read-decode-build-resolve loop on the calling goroutine, with
// only a background ~1Hz epoch tick running separately.
type Pipeline struct {
	r       io.Reader
	sink    Sink
	metrics vslmetrics.Metrics
	log     *slog.Logger
	opts    Options

	clock    *vslstore.AtomicClock
	store    *vslstore.Store
	sessions *vslsession.Store
}

// New builds a Pipeline reading from r and delivering to sink.
func New(r io.Reader, sink Sink, metrics vslmetrics.Metrics, log *slog.Logger, opts Options) *Pipeline {
	if metrics == nil {
		metrics = vslmetrics.Noop{}
	}
	p := &Pipeline{
		r:        r,
		sink:     sink,
		metrics:  metrics,
		log:      log,
		opts:     opts,
		clock:    vslstore.NewAtomicClock(),
		sessions: vslsession.New(),
	}
	p.store = vslstore.New(p.clock, opts.MaxRecordSlots, opts.MaxEpochDiff, opts.EvictFactor, p.onEvict)
	return p
}

// Run drives the pipeline to completion: clean EOF, framing/IO failure, or
// context cancellation. On EOF or cancellation it flushes whatever
// sessions are still pending resolution, logging each as unresolved,
// before returning. It never emits a partial record for a transaction
// that hasn't reached its End tag.
func (p *Pipeline) Run(ctx context.Context) error {
	tickCtx, stopTicker := context.WithCancel(ctx)
	defer stopTicker()
	go p.tickEpoch(tickCtx)

	sb := vslwire.NewStreamBuf(p.r, p.opts.StreamBufferSize)
	if err := vslwire.SkipPreamble(sb); err != nil {
		return vslerrors.NewIOError(err)
	}

	lastStat := p.clock.Now()

	for {
		select {
		case <-ctx.Done():
			p.flush(context.Background())
			return ctx.Err()
		default:
		}

		res, err := sb.FillApply(vslwire.DecodeRecord)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.flush(ctx)
				return nil
			}
			if errors.Is(err, vslwire.ErrOverflow) {
				return vslerrors.NewOverflowError(err)
			}
			return vslerrors.NewIOError(err)
		}
		if res.Status == vslwire.StatusError {
			return vslerrors.NewFramingError(res.Err)
		}

		rec := res.Value.(vslwire.Record)
		p.metrics.RecordsDecoded(rec.Tag.String())
		if rec.Tag == vsltag.Bogus {
			p.metrics.RecordsBogus()
		}

		p.process(ctx, rec)

		now := p.clock.Now()
		if p.opts.StatEpochInterval > 0 && now-lastStat >= p.opts.StatEpochInterval {
			p.reportStats(ctx, now)
			lastStat = now
		}
	}
}

func (p *Pipeline) tickEpoch(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.clock.Tick()
			p.metrics.EpochAdvanced()
		}
	}
}

func (p *Pipeline) process(ctx context.Context, rec vslwire.Record) {
	result := p.store.Apply(rec.VXID, rec)
	switch result.Status {
	case vslbuilder.Complete:
		spanCtx, span := telemetry.StartTransactionSpan(ctx, uint32(rec.VXID), telemetry.Tag(rec.Tag.String()))
		p.emitComplete(spanCtx, result)
		span.End()
	case vslbuilder.Errored:
		p.metrics.TransactionsTombstoned("unknown")
		telemetry.RecordError(ctx, result.Err)
		p.log.Warn("tombstoning transaction after error",
			logger.VXID(uint32(rec.VXID)), logger.Err(result.Err))
	}
}

func (p *Pipeline) emitComplete(ctx context.Context, result vslbuilder.Result) {
	now := p.clock.Now()
	switch {
	case result.Session != nil:
		telemetry.AddEvent(ctx, "record_kind", telemetry.RecordKind("session"))
		p.metrics.TransactionsCompleted("session")
		p.emitSessions(ctx, p.sessions.AddSession(result.Session))
	case result.Client != nil:
		attrs := []attribute.KeyValue{telemetry.RecordKind("client"), telemetry.Method(result.Client.Request.Method), telemetry.URL(result.Client.Request.URL)}
		if result.Client.Response != nil {
			attrs = append(attrs, telemetry.Status(result.Client.Response.Status))
		}
		if result.Client.Handling != nil {
			attrs = append(attrs, telemetry.Handling(result.Client.Handling.Kind.String()))
		}
		telemetry.AddEvent(ctx, "record_kind", attrs...)
		p.metrics.TransactionsCompleted("client")
		p.emitSessions(ctx, p.sessions.AddClient(result.Client, now))
	case result.Backend != nil:
		attrs := []attribute.KeyValue{telemetry.RecordKind("backend"), telemetry.Method(result.Backend.Request.Method), telemetry.URL(result.Backend.Request.URL)}
		if result.Backend.Response != nil {
			attrs = append(attrs, telemetry.Status(result.Backend.Response.Status))
		}
		telemetry.AddEvent(ctx, "record_kind", attrs...)
		p.metrics.TransactionsCompleted("backend")
		p.emitSessions(ctx, p.sessions.AddBackend(result.Backend, now))
	}
}

func (p *Pipeline) emitSessions(ctx context.Context, sessions []*vslrecord.SessionRecord) {
	for _, sess := range sessions {
		spanCtx, span := telemetry.StartSessionSpan(ctx, uint32(sess.VXID))
		p.metrics.SessionsEmitted()
		if err := p.sink.Session(spanCtx, sess); err != nil {
			telemetry.RecordError(spanCtx, err)
			p.log.Error("sink rejected session", logger.VXID(uint32(sess.VXID)), logger.Err(err))
		}
		span.End()
	}
}

func (p *Pipeline) onEvict(vxid vslwire.VXID, reason vslstore.EvictReason, _ *vslbuilder.Builder) {
	p.metrics.SlotsEvicted(string(reason))
	p.log.Warn("evicting in-flight transaction", logger.VXID(uint32(vxid)), slog.String("reason", string(reason)))
}

func (p *Pipeline) reportStats(ctx context.Context, now uint64) {
	storeSize := p.store.Len()
	p.metrics.StoreSize(storeSize)
	telemetry.AddEvent(ctx, "pipeline_stats", telemetry.StoreSize(storeSize))
	p.log.Info("pipeline stats",
		slog.Int("store_size", storeSize),
		slog.Int("pending_sessions", p.sessions.Pending()),
		logger.Epoch(now),
	)

	orphanClients, orphanBackends := p.sessions.Prune(now, p.opts.MaxEpochDiff)
	for _, c := range orphanClients {
		telemetry.AddEvent(ctx, "orphan_client", telemetry.VXID(uint32(c.VXID)), telemetry.OrphanReason("session_never_claimed"))
		p.log.Warn("orphaned client transaction, no session ever claimed it", logger.VXID(uint32(c.VXID)))
		if err := p.sink.OrphanClient(ctx, c); err != nil {
			p.log.Error("sink rejected orphan client", logger.VXID(uint32(c.VXID)), logger.Err(err))
		}
	}
	for _, b := range orphanBackends {
		telemetry.AddEvent(ctx, "orphan_backend", telemetry.VXID(uint32(b.VXID)), telemetry.OrphanReason("client_never_claimed"))
		p.log.Warn("orphaned backend transaction, no client ever claimed it", logger.VXID(uint32(b.VXID)))
		if err := p.sink.OrphanBackend(ctx, b); err != nil {
			p.log.Error("sink rejected orphan backend", logger.VXID(uint32(b.VXID)), logger.Err(err))
		}
	}
}

// flush is called at clean EOF or cancellation: whatever sessions are
// still pending will never resolve further, so they go out with whatever
// links did resolve and a warning about the rest.
func (p *Pipeline) flush(ctx context.Context) {
	for _, sess := range p.sessions.Flush() {
		p.metrics.SessionsUnresolvedAtFlush()
		p.log.Warn("flushing session with unresolved links at stream end", logger.VXID(uint32(sess.VXID)))
		if err := p.sink.Session(ctx, sess); err != nil {
			p.log.Error("sink rejected flushed session", logger.VXID(uint32(sess.VXID)), logger.Err(err))
		}
	}
}
