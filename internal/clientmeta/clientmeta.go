// Package clientmeta implements the Client Metadata Store (spec §4.8): an
// opaque, per-client JSON blob the core stores and timestamps but never
// interprets. Every mutation is published through an injected publisher so
// SSE subscribers see client state change in real time.
package clientmeta

import (
	"sort"
	"sync"
	"time"

	"github.com/oiduna/loopd/internal/types"
)

// Publisher is the subset of internal/sse.Broker this package depends on,
// kept as an interface so tests don't need a real broker.
type Publisher interface {
	Publish(event string, payload interface{})
}

// Store holds one ClientMetadata record per client id.
type Store struct {
	mu      sync.RWMutex
	clients map[string]types.ClientMetadata
	pub     Publisher
}

// New returns an empty Store. pub may be nil, in which case mutations are
// not published (useful in tests that don't care about SSE fan-out).
func New(pub Publisher) *Store {
	return &Store{clients: make(map[string]types.ClientMetadata), pub: pub}
}

// Upsert stores metadata for clientID, stamping UpdatedAt, and publishes
// "client_connected" the first time clientID is seen, "client_metadata_updated"
// on every subsequent call (spec §4.8/§4.9).
func (s *Store) Upsert(clientID string, metadata interface{}) types.ClientMetadata {
	s.mu.Lock()
	_, existed := s.clients[clientID]
	rec := types.ClientMetadata{ClientID: clientID, Metadata: metadata, UpdatedAt: time.Now()}
	s.clients[clientID] = rec
	s.mu.Unlock()

	if existed {
		s.publish("client_metadata_updated", rec)
	} else {
		s.publish("client_connected", rec)
	}
	return rec
}

// Get returns the metadata for clientID, and whether it exists.
func (s *Store) Get(clientID string) (types.ClientMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.clients[clientID]
	return rec, ok
}

// GetAll returns every stored record, sorted by client id for a stable
// response shape.
func (s *Store) GetAll() []types.ClientMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ClientMetadata, 0, len(s.clients))
	for _, rec := range s.clients {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Delete removes clientID's record, if present, and publishes
// "client_disconnected" (spec §4.8/§4.9). Returns whether a record was
// actually removed.
func (s *Store) Delete(clientID string) bool {
	s.mu.Lock()
	_, ok := s.clients[clientID]
	delete(s.clients, clientID)
	s.mu.Unlock()

	if ok {
		s.publish("client_disconnected", map[string]string{"client_id": clientID})
	}
	return ok
}

func (s *Store) publish(event string, payload interface{}) {
	if s.pub != nil {
		s.pub.Publish(event, payload)
	}
}
