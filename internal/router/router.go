// Package router maps destination ids to registered Senders and dispatches
// per-tick batches of ScheduledMessages to them (spec §4.2).
package router

import (
	"sync"

	"github.com/oiduna/loopd/internal/types"
)

// Sender is the polymorphic output capability a destination registers. The
// two built-in variants (internal/oscsend, internal/midisend) both satisfy
// this interface; extensions could register further senders against the
// same contract.
type Sender interface {
	SendBatch(messages []types.ScheduledMessage)
	Close() error
	Name() string
}

// Router owns the destination_id -> Sender mapping.
type Router struct {
	mu    sync.RWMutex
	store *unknownWarner

	senders map[string]Sender
}

// unknownWarner is the minimal surface Router needs from internal/store to
// avoid flooding logs for messages addressed to destinations nobody
// registered. Passing the narrow interface (rather than *store.Store)
// keeps router from depending on store's full API.
type unknownWarner struct {
	warn func(kind, id string)
}

// New returns an empty Router. warnUnknown is called every time Dispatch
// meets an unknown destination id; deduplication is up to the callback
// (store.WarnUnknownOnce logs once per id). nil is accepted and simply
// disables the log.
func New(warnUnknown func(kind, id string)) *Router {
	if warnUnknown == nil {
		warnUnknown = func(string, string) {}
	}
	return &Router{
		senders: make(map[string]Sender),
		store:   &unknownWarner{warn: warnUnknown},
	}
}

// Register installs sender as the handler for destinationID. Registering
// again for the same id replaces the prior sender; callers are responsible
// for closing the old one first if needed.
func (r *Router) Register(destinationID string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[destinationID] = sender
}

// Unregister removes and returns the sender for destinationID, if any.
func (r *Router) Unregister(destinationID string) Sender {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.senders[destinationID]
	if !ok {
		return nil
	}
	delete(r.senders, destinationID)
	return s
}

// Get returns the sender registered for destinationID, if any.
func (r *Router) Get(destinationID string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[destinationID]
	return s, ok
}

// Dispatch groups messages by destination_id, preserving each group's
// relative input order, and sends every group through its registered
// sender. Unknown destination ids are reported to warnUnknown and
// skipped — spec §4.2.
func (r *Router) Dispatch(messages []types.ScheduledMessage) {
	if len(messages) == 0 {
		return
	}
	groups := make(map[string][]types.ScheduledMessage)
	order := make([]string, 0, 4)

	for _, m := range messages {
		if _, seen := groups[m.DestinationID]; !seen {
			order = append(order, m.DestinationID)
		}
		groups[m.DestinationID] = append(groups[m.DestinationID], m)
	}

	for _, destID := range order {
		sender, ok := r.Get(destID)
		if !ok {
			r.store.warn("destination", destID)
			continue
		}
		sender.SendBatch(groups[destID])
	}
}

// Close closes every registered sender and clears the registry.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.senders {
		_ = s.Close()
		delete(r.senders, id)
	}
}
