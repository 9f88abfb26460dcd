package feed

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/dan246/ff14-tw-market/errors"
)

// Frame is one decoded message from the feed. Immutable once decoded.
type Frame struct {
	Event      Kind
	World      int
	Item       int
	Body       bson.Raw
	ReceivedAt time.Time
}

// subscriptionDoc is the outbound subscribe/unsubscribe envelope.
type subscriptionDoc struct {
	Event   string `bson:"event"`
	Channel string `bson:"channel"`
}

// frameHeader is the inbound envelope; the full document is retained as Body.
type frameHeader struct {
	Event string `bson:"event"`
	World int    `bson:"world,omitempty"`
	Item  int    `bson:"item,omitempty"`
}

// EncodeSubscription encodes an outbound subscribe or unsubscribe request
// for the given channel.
func EncodeSubscription(event string, channel Topic) ([]byte, error) {
	if channel == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidTopic, "Codec", "EncodeSubscription", "empty channel")
	}
	data, err := bson.Marshal(subscriptionDoc{Event: event, Channel: string(channel)})
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "EncodeSubscription", "marshal request")
	}
	return data, nil
}

// DecodeFrame decodes one inbound feed message. Malformed input yields an
// invalid-class error wrapping ErrDecodeFailed; it never panics, so the
// read loop can drop the frame and continue.
func DecodeFrame(data []byte, now time.Time) (Frame, error) {
	var hdr frameHeader
	if err := bson.Unmarshal(data, &hdr); err != nil {
		return Frame{}, errors.WrapInvalid(
			fmt.Errorf("%v: %w", err, errors.ErrDecodeFailed),
			"Codec", "DecodeFrame", "unmarshal document")
	}
	if hdr.Event == "" {
		return Frame{}, errors.WrapInvalid(
			fmt.Errorf("missing event field: %w", errors.ErrDecodeFailed),
			"Codec", "DecodeFrame", "validate document")
	}

	body := make(bson.Raw, len(data))
	copy(body, data)

	return Frame{
		Event:      Kind(hdr.Event),
		World:      hdr.World,
		Item:       hdr.Item,
		Body:       body,
		ReceivedAt: now,
	}, nil
}
