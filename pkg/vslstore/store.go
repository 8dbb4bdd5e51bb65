// Package vslstore implements the VXID-keyed record store: it owns every
// in-flight Builder, routes incoming records to the right one, and applies
// the bounded-memory eviction policy that keeps a long-running tail from
// growing without limit when transactions never close cleanly.
package vslstore

import (
	"math"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/vsl-go/vslcore/pkg/vslbuilder"
	"github.com/vsl-go/vslcore/pkg/vslwire"
)

// EvictReason classifies why a slot was evicted, for diagnostics.
type EvictReason string

const (
	EvictReasonStale    EvictReason = "stale"
	EvictReasonCapacity EvictReason = "capacity"
)

// EvictedFunc is called whenever a still-building (non-tombstoned,
// non-complete) transaction is evicted. Implementations should treat this
// as a warning: the transaction's record, if it's ever reconstructed at
// all, will carry unresolved links where this eviction cut it off.
type EvictedFunc func(vxid vslwire.VXID, reason EvictReason, builder *vslbuilder.Builder)

// slot is one entry in the store: either a live Builder assembling a
// transaction, or a tombstone marking a VXID whose builder errored, so
// further records for it are dropped rather than silently starting over.
type slot struct {
	builder   *vslbuilder.Builder
	tombstone bool
	lastEpoch uint64
}

// Store is the VXID-keyed record store. It is not safe for concurrent use
// from multiple goroutines; the pipeline drives it from its single
// cooperative loop.
type Store struct {
	clock        EpochClock
	maxSlots     int
	maxEpochDiff uint64
	evictFactor  float64
	onEvict      EvictedFunc

	slots *orderedmap.OrderedMap[vslwire.VXID, *slot]
}

// New creates a Store. onEvict may be nil.
func New(clock EpochClock, maxSlots int, maxEpochDiff uint64, evictFactor float64, onEvict EvictedFunc) *Store {
	return &Store{
		clock:        clock,
		maxSlots:     maxSlots,
		maxEpochDiff: maxEpochDiff,
		evictFactor:  evictFactor,
		onEvict:      onEvict,
		slots:        orderedmap.New[vslwire.VXID, *slot](),
	}
}

// Len reports the number of tracked VXIDs (live builders and tombstones).
func (s *Store) Len() int { return s.slots.Len() }

// Apply routes rec to the builder for its VXID, creating one if this is
// the first record seen for it, and returns what that builder did. Apply
// performs both eviction passes around its own insert: soft (stale-access)
// eviction of the exact VXID being touched, and hard (capacity) eviction
// of the store's oldest entries when a brand new VXID needs a slot.
func (s *Store) Apply(vxid vslwire.VXID, rec vslwire.Record) vslbuilder.Result {
	now := s.clock.Now()

	sl, exists := s.slots.Get(vxid)
	if exists && !sl.tombstone && now-sl.lastEpoch > s.maxEpochDiff {
		s.evict(vxid, sl, EvictReasonStale)
		s.slots.Delete(vxid)
		exists = false
	}

	if !exists {
		if s.slots.Len() >= s.maxSlots {
			s.evictOldest()
		}
		sl = &slot{builder: vslbuilder.New(vxid)}
	}
	sl.lastEpoch = now
	// Re-inserting moves the key to the back of iteration order, which is
	// what Oldest() walks during hard eviction: this is the LRU touch.
	s.slots.Delete(vxid)
	s.slots.Set(vxid, sl)

	if sl.tombstone {
		return vslbuilder.Result{Status: vslbuilder.Building}
	}

	res := sl.builder.Apply(rec)
	switch res.Status {
	case vslbuilder.Complete:
		s.slots.Delete(vxid)
	case vslbuilder.Errored:
		sl.tombstone = true
		sl.builder = nil
	}
	return res
}

// evictOldest removes ceil(maxSlots * evictFactor) of the store's least
// recently touched entries. Called only when a new VXID needs room.
func (s *Store) evictOldest() {
	n := int(math.Ceil(float64(s.maxSlots) * s.evictFactor))
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		pair := s.slots.Oldest()
		if pair == nil {
			return
		}
		s.evict(pair.Key, pair.Value, EvictReasonCapacity)
		s.slots.Delete(pair.Key)
	}
}

func (s *Store) evict(vxid vslwire.VXID, sl *slot, reason EvictReason) {
	if sl.tombstone || s.onEvict == nil {
		return
	}
	s.onEvict(vxid, reason, sl.builder)
}
