// Wire structures for the receive pipeline. The outer envelope is stored in
// the swarm with a length prefix; the inner content carries exactly one
// message-kind sub-struct.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/sesh-im/go-sesh/bencode"
)

const (
	EnvelopeSessionMessage uint8 = 6
	EnvelopeGroupMessage   uint8 = 7
)

type Envelope struct {
	Type      uint8  `bencode:"t"`
	Timestamp uint64 `bencode:"s"`
	Content   []byte `bencode:"c"`
}

// WrapEnvelope encodes an envelope with its 4-byte big-endian length prefix,
// the form stored by the swarm.
func WrapEnvelope(env *Envelope) ([]byte, error) {
	b, err := bencode.Serialize(env)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	return out, nil
}

// UnwrapEnvelope decodes a length-prefixed envelope.
func UnwrapEnvelope(b []byte) (*Envelope, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("wire: envelope of %d bytes has no length prefix", len(b))
	}
	l := binary.BigEndian.Uint32(b)
	if int(l) != len(b)-4 {
		return nil, fmt.Errorf("wire: envelope length prefix %d, have %d bytes", l, len(b)-4)
	}
	return DecodeEnvelope(b[4:])
}

// DecodeEnvelope decodes a bare envelope, the form carried inside a group
// seal.
func DecodeEnvelope(b []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := bencode.Deserialize(b, env); err != nil {
		return nil, fmt.Errorf("wire: decoding envelope: %w", err)
	}
	return env, nil
}
