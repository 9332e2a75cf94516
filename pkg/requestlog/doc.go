// Package requestlog records the requests a service instance answered.
//
// It is distinct from operational logging (log/slog): an Entry is user
// facing data that can be listed through the admin surface, streamed to
// subscribers and persisted by a storage backend.
//
// Each instance keeps its own bounded Ring. The registry owns a single
// Broadcaster that every instance publishes to:
//
//	ring := requestlog.NewRing(1000)
//	hub := requestlog.NewBroadcaster()
//	ch, cancel := hub.Subscribe()
//	defer cancel()
//
//	entry := requestlog.NewEntry("users", "GET", "/users/1")
//	ring.Add(entry)
//	hub.Publish(entry)
//
// This is a leaf package; it imports nothing else from mockfleet.
package requestlog
