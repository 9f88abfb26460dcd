package feed

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies one class of event the feed can push.
type Kind string

// Event kinds understood by the feed.
const (
	KindListingsAdd    Kind = "listings/add"
	KindListingsRemove Kind = "listings/remove"
	KindSalesAdd       Kind = "sales/add"
	KindSalesRemove    Kind = "sales/remove"
)

// Valid reports whether k is a kind the feed can deliver.
func (k Kind) Valid() bool {
	switch k {
	case KindListingsAdd, KindListingsRemove, KindSalesAdd, KindSalesRemove:
		return true
	default:
		return false
	}
}

// Topic is the wire-level channel string for one (kind, world) pair.
// Grammar: "<kind>" for an unscoped subscription, or "<kind>{world=<id>}"
// for a world-filtered one.
type Topic string

// TopicFor maps an event kind and an optional world ID to the channel
// string the feed expects. A worldID of zero or less yields an unscoped
// topic. Pure and deterministic.
func TopicFor(kind Kind, worldID int) Topic {
	if worldID <= 0 {
		return Topic(kind)
	}
	return Topic(fmt.Sprintf("%s{world=%d}", kind, worldID))
}

// Kind returns the event kind portion of the topic.
func (t Topic) Kind() Kind {
	s := string(t)
	if i := strings.IndexByte(s, '{'); i >= 0 {
		s = s[:i]
	}
	return Kind(s)
}

// World returns the world filter of the topic, or zero for an unscoped
// topic or one that does not parse.
func (t Topic) World() int {
	s := string(t)
	i := strings.IndexByte(s, '{')
	if i < 0 || !strings.HasSuffix(s, "}") {
		return 0
	}
	inner := s[i+1 : len(s)-1]
	const prefix = "world="
	if !strings.HasPrefix(inner, prefix) {
		return 0
	}
	id, err := strconv.Atoi(inner[len(prefix):])
	if err != nil || id < 0 {
		return 0
	}
	return id
}
