package room

import (
	"errors"

	"driftrace/internal/net/proto"
)

// ErrRoomClosed is returned when a room stops before a request is served.
var ErrRoomClosed = errors.New("room: closed")

// Conn is the room's view of one client connection. Send must not block:
// a connection that cannot keep up drops frames rather than stalling the
// room loop.
type Conn interface {
	Codec() proto.Codec
	// Send queues an encoded frame and reports whether it was accepted.
	Send(frame []byte) bool
	Close()
}

// frameCache encodes a message at most once per codec.
type frameCache struct {
	encode func(proto.Codec) ([]byte, error)
	frames map[proto.Encoding][]byte
	errs   map[proto.Encoding]error
}

func newFrameCache(encode func(proto.Codec) ([]byte, error)) *frameCache {
	return &frameCache{
		encode: encode,
		frames: make(map[proto.Encoding][]byte, 2),
		errs:   make(map[proto.Encoding]error, 2),
	}
}

func (c *frameCache) frame(codec proto.Codec) ([]byte, error) {
	enc := codec.Encoding()
	if frame, ok := c.frames[enc]; ok {
		return frame, nil
	}
	if err, ok := c.errs[enc]; ok {
		return nil, err
	}
	frame, err := c.encode(codec)
	if err != nil {
		c.errs[enc] = err
		return nil, err
	}
	c.frames[enc] = frame
	return frame, nil
}
