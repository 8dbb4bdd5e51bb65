package vslstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsl-go/vslcore/pkg/vslbuilder"
	"github.com/vsl-go/vslcore/pkg/vsltag"
	"github.com/vsl-go/vslcore/pkg/vslwire"
)

func rec(tag vsltag.Tag, data string) vslwire.Record {
	return vslwire.Record{Tag: tag, Data: []byte(data)}
}

func TestStore_IncompleteClientBecomesTombstone(t *testing.T) {
	clock := NewManualClock()
	s := New(clock, 100, 1000, 0.5, nil)

	s.Apply(1, rec(vsltag.Begin, "req 0 rxreq"))
	assert.Equal(t, 1, s.Len())

	res := s.Apply(1, rec(vsltag.End, ""))
	assert.Equal(t, vslbuilder.Errored, res.Status, "incomplete Full client without a response should error, not silently complete")
	assert.Equal(t, 1, s.Len(), "errored builder becomes a tombstone, not removed")
}

func TestStore_TombstoneDropsSubsequentRecords(t *testing.T) {
	clock := NewManualClock()
	s := New(clock, 100, 1000, 0.5, nil)

	s.Apply(1, rec(vsltag.Begin, "bogus-kind 0 x")) // invalid kind -> Errored -> tombstone
	res := s.Apply(1, rec(vsltag.BereqMethod, "GET"))
	assert.Equal(t, vslbuilder.Building, res.Status, "records after tombstone are dropped, not errored again")
}

func TestStore_HardEvictionAtCapacity(t *testing.T) {
	clock := NewManualClock()
	var evicted []vslwire.VXID
	s := New(clock, 4, 1000, 0.5, func(vxid vslwire.VXID, reason EvictReason, b *vslbuilder.Builder) {
		evicted = append(evicted, vxid)
		assert.Equal(t, EvictReasonCapacity, reason)
	})

	for i := vslwire.VXID(1); i <= 4; i++ {
		s.Apply(i, rec(vsltag.Begin, "bereq 0 fetch"))
	}
	require.Equal(t, 4, s.Len())

	s.Apply(5, rec(vsltag.Begin, "bereq 0 fetch"))
	assert.NotEmpty(t, evicted, "inserting past capacity should evict the oldest entries")
	assert.Less(t, s.Len(), 5)
}

func TestStore_SoftEvictionOnStaleAccess(t *testing.T) {
	clock := NewManualClock()
	var evicted []EvictReason
	s := New(clock, 100, 10, 0.5, func(vxid vslwire.VXID, reason EvictReason, b *vslbuilder.Builder) {
		evicted = append(evicted, reason)
	})

	s.Apply(1, rec(vsltag.Begin, "bereq 0 fetch"))
	clock.Advance(20)
	s.Apply(1, rec(vsltag.BereqMethod, "GET"))

	require.Len(t, evicted, 1)
	assert.Equal(t, EvictReasonStale, evicted[0])
}

func TestStore_CompleteClientDoesNotTriggerEviction(t *testing.T) {
	clock := NewManualClock()
	evictCount := 0
	s := New(clock, 100, 1000, 0.5, func(vxid vslwire.VXID, reason EvictReason, b *vslbuilder.Builder) {
		evictCount++
	})

	s.Apply(1, rec(vsltag.Begin, "req 0 rxreq"))
	s.Apply(1, rec(vsltag.ReqMethod, "GET"))
	s.Apply(1, rec(vsltag.RespStatus, "200"))
	s.Apply(1, rec(vsltag.Timestamp, "Resp: 1.100000 0.100000 0.050000"))
	res := s.Apply(1, rec(vsltag.End, ""))

	require.Equal(t, vslbuilder.Complete, res.Status)
	assert.Equal(t, 0, s.Len())
	assert.Zero(t, evictCount)
}
