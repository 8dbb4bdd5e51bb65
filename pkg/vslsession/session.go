// Package vslsession resolves the tree of linked client, backend, and
// session records the builder layer produces one VXID at a time into
// fully-linked SessionRecord values ready for a sink. Links only ever
// point forward in the data (a session names its clients, a client names
// its backend and ESI children) but the referenced records can complete in
// any order, so resolution has to tolerate arriving out of sequence.
package vslsession

import (
	"github.com/vsl-go/vslcore/pkg/vslrecord"
	"github.com/vsl-go/vslcore/pkg/vslwire"
)

// Store holds completed records that haven't yet been fully linked into an
// emittable tree. It tracks three independent pools: sessions still
// waiting on their client links, and completed clients/backends waiting to
// be claimed by whatever is holding an unresolved link to them.
//
// The resolution strategy is retry-after-every-insert: every time any new
// record arrives, every still-pending session attempts to resolve its
// links from scratch. This is simpler and more robust against arrival
// order than tracking which specific session a given completion should
// wake, at the cost of rescanning pending sessions on every insert — a
// cost that stays small because sessions leave the pending set as soon as
// they fully resolve.
type Store struct {
	pendingSessions   map[vslwire.VXID]*vslrecord.SessionRecord
	completedClients  map[vslwire.VXID]*vslrecord.ClientAccessRecord
	completedBackends map[vslwire.VXID]*vslrecord.BackendAccessRecord

	// clientEpoch/backendEpoch record when each completed-but-unclaimed
	// record entered its pool, so Prune can age out entries nothing will
	// ever link to (a malformed stream, or a VCL subrequest the session
	// builder never named).
	clientEpoch  map[vslwire.VXID]uint64
	backendEpoch map[vslwire.VXID]uint64
}

func New() *Store {
	return &Store{
		pendingSessions:   make(map[vslwire.VXID]*vslrecord.SessionRecord),
		completedClients:  make(map[vslwire.VXID]*vslrecord.ClientAccessRecord),
		completedBackends: make(map[vslwire.VXID]*vslrecord.BackendAccessRecord),
		clientEpoch:       make(map[vslwire.VXID]uint64),
		backendEpoch:      make(map[vslwire.VXID]uint64),
	}
}

// Prune removes completed client/backend records that have sat unclaimed
// for longer than maxAge epochs and returns them as orphans. Call this
// periodically (e.g. alongside the record store's own eviction) so a
// transaction nothing ever links to doesn't accumulate forever.
func (s *Store) Prune(now, maxAge uint64) (orphanClients []*vslrecord.ClientAccessRecord, orphanBackends []*vslrecord.BackendAccessRecord) {
	for vxid, epoch := range s.clientEpoch {
		if now-epoch > maxAge {
			orphanClients = append(orphanClients, s.completedClients[vxid])
			delete(s.completedClients, vxid)
			delete(s.clientEpoch, vxid)
		}
	}
	for vxid, epoch := range s.backendEpoch {
		if now-epoch > maxAge {
			orphanBackends = append(orphanBackends, s.completedBackends[vxid])
			delete(s.completedBackends, vxid)
			delete(s.backendEpoch, vxid)
		}
	}
	return orphanClients, orphanBackends
}

// AddSession enqueues a completed SessionRecord for link resolution and
// returns it immediately if it has no outstanding links (the common case:
// no transactions at all, or all of them already completed).
func (s *Store) AddSession(rec *vslrecord.SessionRecord) []*vslrecord.SessionRecord {
	s.pendingSessions[rec.VXID] = rec
	return s.resolveAll()
}

// AddClient makes a completed ClientAccessRecord available to anything
// holding an unresolved link to it, then retries resolution of every
// pending session. epoch is recorded so Prune can age it out if nothing
// ever claims it.
func (s *Store) AddClient(rec *vslrecord.ClientAccessRecord, epoch uint64) []*vslrecord.SessionRecord {
	s.completedClients[rec.VXID] = rec
	s.clientEpoch[rec.VXID] = epoch
	return s.resolveAll()
}

// AddBackend makes a completed BackendAccessRecord available to anything
// holding an unresolved link to it, then retries resolution of every
// pending session. epoch is recorded so Prune can age it out if nothing
// ever claims it.
func (s *Store) AddBackend(rec *vslrecord.BackendAccessRecord, epoch uint64) []*vslrecord.SessionRecord {
	s.completedBackends[rec.VXID] = rec
	s.backendEpoch[rec.VXID] = epoch
	return s.resolveAll()
}

// Pending reports how many sessions are still waiting on at least one
// link, for diagnostics and stream-end flushing.
func (s *Store) Pending() int { return len(s.pendingSessions) }

// Flush forces every still-pending session out, regardless of whether its
// links fully resolved. Call this at clean stream end: whatever is still
// unresolved at that point will never resolve, and the caller (the
// pipeline) is responsible for logging it as a warning rather than
// silently dropping the session.
func (s *Store) Flush() []*vslrecord.SessionRecord {
	out := make([]*vslrecord.SessionRecord, 0, len(s.pendingSessions))
	for vxid, rec := range s.pendingSessions {
		out = append(out, rec)
		delete(s.pendingSessions, vxid)
	}
	return out
}

// resolveAll walks every pending session, attempting to resolve its
// client links (and, transitively, each client's backend and ESI links)
// from the completion pools. A session that becomes fully resolved is
// removed from the pending set and returned.
func (s *Store) resolveAll() []*vslrecord.SessionRecord {
	var done []*vslrecord.SessionRecord
	for vxid, sess := range s.pendingSessions {
		fullyResolved := true
		for i, link := range sess.Clients {
			resolved, ok := s.resolveClientLink(link, make(map[vslwire.VXID]bool))
			if ok {
				sess.Clients[i] = resolved
			} else {
				fullyResolved = false
			}
		}
		if fullyResolved {
			done = append(done, sess)
			delete(s.pendingSessions, vxid)
		}
	}
	return done
}

// resolveClientLink attempts to resolve a single client link, recursing
// into the client's own backend and ESI links once the client itself is
// available. visiting guards against a malformed stream that links a VXID
// back to itself.
// resolveClientLink attempts to resolve a single client link. ok reports
// whether the client and every link in its own subtree (backend, restart,
// ESI children, transitively) are resolved; a client that's available but
// still waiting on one of those is left unclaimed in the completion pool
// so a later retry can pick up exactly where this one left off.
func (s *Store) resolveClientLink(
	link vslrecord.Link[*vslrecord.ClientAccessRecord],
	visiting map[vslwire.VXID]bool,
) (vslrecord.Link[*vslrecord.ClientAccessRecord], bool) {
	if link.IsResolved() {
		client, _ := link.Value()
		return link, s.resolveClientFields(client, visiting)
	}
	vxid := link.VXID()
	if visiting[vxid] {
		return link, false
	}
	client, ok := s.completedClients[vxid]
	if !ok {
		return link, false
	}
	visiting[vxid] = true
	if !s.resolveClientFields(client, visiting) {
		return link, false
	}
	delete(s.completedClients, vxid)
	delete(s.clientEpoch, vxid)
	return link.Resolve(client), true
}

// resolveClientFields recurses into one client record's own outstanding
// links (backend, restart, ESI children) in place and reports whether every
// one of them is now resolved.
func (s *Store) resolveClientFields(client *vslrecord.ClientAccessRecord, visiting map[vslwire.VXID]bool) bool {
	allResolved := true
	if client.Backend != nil {
		if resolved, ok := s.resolveBackendLink(*client.Backend, visiting); ok {
			client.Backend = &resolved
		} else {
			allResolved = false
		}
	}
	if client.Restart != nil {
		if resolved, ok := s.resolveClientLink(*client.Restart, visiting); ok {
			client.Restart = &resolved
		} else {
			allResolved = false
		}
	}
	for i, child := range client.ESIChildren {
		if resolved, ok := s.resolveClientLink(child, visiting); ok {
			client.ESIChildren[i] = resolved
		} else {
			allResolved = false
		}
	}
	return allResolved
}

func (s *Store) resolveBackendLink(
	link vslrecord.Link[*vslrecord.BackendAccessRecord],
	visiting map[vslwire.VXID]bool,
) (vslrecord.Link[*vslrecord.BackendAccessRecord], bool) {
	if link.IsResolved() {
		backend, _ := link.Value()
		return link, s.resolveBackendFields(backend, visiting)
	}
	vxid := link.VXID()
	if visiting[vxid] {
		return link, false
	}
	backend, ok := s.completedBackends[vxid]
	if !ok {
		return link, false
	}
	visiting[vxid] = true
	if !s.resolveBackendFields(backend, visiting) {
		return link, false
	}
	delete(s.completedBackends, vxid)
	delete(s.backendEpoch, vxid)
	return link.Resolve(backend), true
}

// resolveBackendFields recurses into one backend record's own retry link
// and reports whether it is now resolved (vacuously true with no retry).
func (s *Store) resolveBackendFields(backend *vslrecord.BackendAccessRecord, visiting map[vslwire.VXID]bool) bool {
	if backend.Retry == nil {
		return true
	}
	resolved, ok := s.resolveBackendLink(*backend.Retry, visiting)
	if ok {
		backend.Retry = &resolved
	}
	return ok
}
