// Package ff14market is the streaming cache subsystem behind the FF14
// Taiwan market dashboard. It keeps a WebSocket connection to the
// Universalis feed, folds BSON market events for watched items into an
// in-memory entity cache, and exposes a polling façade that falls back to
// the blocking REST collaborator when the cache cannot answer.
//
// Package layout:
//
//	feed/    — topics, frame codec, subscription state, dispatcher,
//	           reconnecting connection manager
//	market/  — entity cache, polling façade, HTTP collaborator client
//	config/  — deployment configuration (datacenter, worlds, endpoints)
//	metric/  — prometheus registry and core metrics
//	errors/  — classified error taxonomy
//	pkg/     — generic cache, ring buffer, and retry building blocks
//
// cmd/marketfeedd wires everything into a daemon.
package ff14market
