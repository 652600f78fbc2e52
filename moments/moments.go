// Package moments implements the ephemeral photo feed carried inside visible
// messages. A moment is a visible message whose text starts with a reserved
// prefix followed by a bencoded body; the receive pipeline's interceptor
// chain consumes it before it can become an interaction.
package moments

import (
	"fmt"
	"strings"

	"github.com/sesh-im/go-sesh/bencode"
)

const Prefix = "MOMENT|"

type Post struct {
	Caption   string `bencode:"c"`
	ImageURL  string `bencode:"u"`
	ImageKey  []byte `bencode:"k"`
	Timestamp uint64 `bencode:"t"`
}

func IsMoment(text string) bool {
	return strings.HasPrefix(text, Prefix)
}

func Parse(text string) (*Post, error) {
	if !IsMoment(text) {
		return nil, fmt.Errorf("moments: missing %q prefix", Prefix)
	}
	p := &Post{}
	if err := bencode.Deserialize([]byte(text[len(Prefix):]), p); err != nil {
		return nil, fmt.Errorf("moments: decoding post: %w", err)
	}
	return p, nil
}

func Encode(p *Post) (string, error) {
	b, err := bencode.Serialize(p)
	if err != nil {
		return "", err
	}
	return Prefix + string(b), nil
}
