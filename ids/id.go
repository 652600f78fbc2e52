// This package defines the account id type used throughout sesh. An account id is a
// 33-byte value, a single role prefix followed by a 32-byte public key, written as hex.
package ids

import (
	"bytes"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

type Prefix byte

const (
	// a standard 1:1 account
	PrefixStandard Prefix = 0x05
	// a server-blinded account, only valid within a single community server
	PrefixBlinded Prefix = 0x15
	// a group identifier
	PrefixGroup Prefix = 0x03
)

func (p Prefix) valid() bool {
	return p == PrefixStandard || p == PrefixBlinded || p == PrefixGroup
}

type ID [33]byte

func FromPublicKey(p Prefix, pub []byte) (ID, error) {
	var id ID
	if !p.valid() {
		return id, fmt.Errorf("ids: unknown prefix 0x%02x", byte(p))
	}
	if len(pub) != 32 {
		return id, fmt.Errorf("ids: expected public key of length 32, got %d", len(pub))
	}
	id[0] = byte(p)
	copy(id[1:], pub)
	return id, nil
}

func Parse(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("ids: parsing %s: %w", s, err)
	}
	if len(b) != 33 {
		return id, fmt.Errorf("ids: expected 33 bytes, got %d", len(b))
	}
	if !Prefix(b[0]).valid() {
		return id, fmt.Errorf("ids: unknown prefix 0x%02x", b[0])
	}
	copy(id[:], b)
	return id, nil
}

func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// NewID makes an id with a random public key.
func NewID(p Prefix) ID {
	var pub [32]byte
	if _, err := io.ReadFull(crypto_rand.Reader, pub[:]); err != nil {
		panic("short read from random source")
	}
	id, err := FromPublicKey(p, pub[:])
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) Prefix() Prefix {
	return Prefix(id[0])
}

func (id ID) PublicKey() []byte {
	return id[1:]
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ID) IsZero() bool {
	return id == ID{}
}

func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}
