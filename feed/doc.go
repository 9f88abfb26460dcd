// Package feed implements the streaming side of the market dashboard: a
// persistent websocket connection to the Universalis push feed, the BSON
// frame codec, the topic registry, durable subscription state that is
// replayed after every reconnect, and the dispatcher that fans decoded
// frames out to the entity cache, the recent-event ring, and registered
// callbacks.
//
// The connection manager owns at most one live connection at a time and
// recovers from every transport failure by reconnecting after a jittered
// fixed delay. Transport errors never surface to callers; a frame that
// fails to decode is dropped and logged without disturbing the read loop.
package feed
