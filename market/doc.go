// Package market holds the per-item entity cache and the polling façade
// that fronts it. Watched items are kept fresh by the streaming feed; reads
// of unwatched or stale items fall back to the blocking HTTP collaborator,
// rate-limited and bounded by a timeout.
package market
