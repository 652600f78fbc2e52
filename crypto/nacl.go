package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	crypto_rand "crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/kevinburke/nacl"
	"github.com/kevinburke/nacl/box"
	"github.com/kevinburke/nacl/scalarmult"
	"github.com/sesh-im/go-sesh/ids"
	"golang.org/x/crypto/chacha20poly1305"
)

// NaclProvider implements Provider over nacl box for 1:1 messages and
// chacha20poly1305 for group and blinded-inbox messages.
type NaclProvider struct {
	priv nacl.Key
	pub  nacl.Key

	lock      sync.RWMutex
	groupKeys map[ids.ID]nacl.Key
}

func NewNaclProvider(priv nacl.Key) *NaclProvider {
	return &NaclProvider{
		priv:      priv,
		pub:       scalarmult.Base(priv),
		groupKeys: make(map[ids.ID]nacl.Key),
	}
}

func (p *NaclProvider) PublicKey() nacl.Key {
	return p.pub
}

// AccountID is the standard id for this provider's keypair.
func (p *NaclProvider) AccountID() ids.ID {
	id, err := ids.FromPublicKey(ids.PrefixStandard, p.pub[:])
	if err != nil {
		panic(err)
	}
	return id
}

func (p *NaclProvider) RegisterGroupKey(groupID ids.ID, key nacl.Key) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.groupKeys[groupID] = key
}

func (p *NaclProvider) groupKey(groupID ids.ID) (nacl.Key, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	k, ok := p.groupKeys[groupID]
	return k, ok
}

// Session-protocol wire form: ephemeral public key (32) followed by a
// nonce-prefixed box of plaintext || sender public key (32).
func (p *NaclProvider) DecryptSessionProtocol(ciphertext []byte) ([]byte, ids.ID, error) {
	var zero ids.ID
	if len(ciphertext) <= 32 {
		return nil, zero, fmt.Errorf("session ciphertext of length %d: %w", len(ciphertext), ErrDecryptFailed)
	}
	ephPub := nacl.Key(ciphertext[:32])
	inner, err := box.EasyOpen(ciphertext[32:], ephPub, p.priv)
	if err != nil {
		return nil, zero, fmt.Errorf("opening session box: %w", ErrDecryptFailed)
	}
	if len(inner) < 32 {
		return nil, zero, fmt.Errorf("session plaintext of length %d: %w", len(inner), ErrDecryptFailed)
	}
	sender, err := ids.FromPublicKey(ids.PrefixStandard, inner[len(inner)-32:])
	if err != nil {
		return nil, zero, err
	}
	return inner[:len(inner)-32], sender, nil
}

// EncryptSessionProtocol is the sending counterpart, used by tests and the
// local sync path.
func EncryptSessionProtocol(plaintext []byte, senderPub, recipientPub nacl.Key) ([]byte, error) {
	eph := nacl.NewKey()
	ephPub := scalarmult.Base(eph)
	inner := make([]byte, 0, len(plaintext)+32)
	inner = append(inner, plaintext...)
	inner = append(inner, senderPub[:]...)
	sealed := box.EasySeal(inner, recipientPub, eph)
	return append(ephPub[:], sealed...), nil
}

// Group wire form: 12-byte nonce followed by a chacha20poly1305 seal of
// envelope bytes || sender account id (33), with the group id as ad.
func (p *NaclProvider) DecryptGroupMessage(groupID ids.ID, ciphertext []byte) ([]byte, ids.ID, error) {
	var zero ids.ID
	key, ok := p.groupKey(groupID)
	if !ok {
		return nil, zero, fmt.Errorf("no key for group %s: %w", groupID, ErrDecryptFailed)
	}
	inner, err := openChacha(key[:], ciphertext, groupID[:])
	if err != nil {
		return nil, zero, err
	}
	if len(inner) < 33 {
		return nil, zero, fmt.Errorf("group plaintext of length %d: %w", len(inner), ErrDecryptFailed)
	}
	var sender ids.ID
	copy(sender[:], inner[len(inner)-33:])
	return inner[:len(inner)-33], sender, nil
}

func EncryptGroupMessage(groupID ids.ID, key nacl.Key, envelope []byte, sender ids.ID) ([]byte, error) {
	inner := make([]byte, 0, len(envelope)+33)
	inner = append(inner, envelope...)
	inner = append(inner, sender[:]...)
	return sealChacha(key[:], inner, groupID[:])
}

// Blinded inbox wire form: 12-byte nonce followed by a chacha20poly1305 seal
// of plaintext || real sender public key (32), keyed by
// sha256(DH(server, recipient) || blinded sender id || recipient id).
func (p *NaclProvider) DecryptBlindedInbox(ciphertext []byte, senderID, recipientID ids.ID, serverPublicKey []byte) ([]byte, ids.ID, error) {
	var zero ids.ID
	if len(serverPublicKey) != 32 {
		return nil, zero, fmt.Errorf("server public key of length %d: %w", len(serverPublicKey), ErrDecryptFailed)
	}
	key := blindedInboxKey(box.Precompute(nacl.Key(serverPublicKey), p.priv), senderID, recipientID)
	inner, err := openChacha(key, ciphertext, nil)
	if err != nil {
		return nil, zero, err
	}
	if len(inner) < 32 {
		return nil, zero, fmt.Errorf("inbox plaintext of length %d: %w", len(inner), ErrDecryptFailed)
	}
	sender, err := ids.FromPublicKey(ids.PrefixStandard, inner[len(inner)-32:])
	if err != nil {
		return nil, zero, err
	}
	return inner[:len(inner)-32], sender, nil
}

func EncryptBlindedInbox(plaintext []byte, realSenderPub nacl.Key, senderID, recipientID ids.ID, serverPriv nacl.Key) ([]byte, error) {
	recipientPub := nacl.Key(recipientID.PublicKey())
	key := blindedInboxKey(box.Precompute(recipientPub, serverPriv), senderID, recipientID)
	inner := make([]byte, 0, len(plaintext)+32)
	inner = append(inner, plaintext...)
	inner = append(inner, realSenderPub[:]...)
	return sealChacha(key, inner, nil)
}

func blindedInboxKey(shared nacl.Key, senderID, recipientID ids.ID) []byte {
	h := sha256.New()
	h.Write(shared[:])
	h.Write(senderID[:])
	h.Write(recipientID[:])
	return h.Sum(nil)
}

func (p *NaclProvider) DecryptAttachment(key, ciphertext []byte) ([]byte, error) {
	return openChacha(key, ciphertext, nil)
}

func EncryptAttachment(key, plaintext []byte) ([]byte, error) {
	return sealChacha(key, plaintext, nil)
}

// Legacy attachments are AES-256-CBC with PKCS#7 padding.
func (p *NaclProvider) LegacyDecryptAttachment(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("legacy attachment of length %d: %w", len(ciphertext), ErrDecryptFailed)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	padLen := int(out[len(out)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(out) {
		return nil, fmt.Errorf("legacy attachment padding of %d: %w", padLen, ErrDecryptFailed)
	}
	for _, b := range out[len(out)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("legacy attachment padding: %w", ErrDecryptFailed)
		}
	}
	return out[:len(out)-padLen], nil
}

func sealChacha(key, msg, ad []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("expected key of length 32, got %d", len(key))
	}
	c, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(crypto_rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.Seal(nonce, nonce, msg, ad), nil
}

func openChacha(key, enc, ad []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("expected key of length 32, got %d", len(key))
	}
	if len(enc) <= chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("ciphertext of length %d: %w", len(enc), ErrDecryptFailed)
	}
	c, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	out, err := c.Open(nil, enc[:chacha20poly1305.NonceSize], enc[chacha20poly1305.NonceSize:], ad)
	if err != nil {
		return nil, fmt.Errorf("opening chacha seal: %w", ErrDecryptFailed)
	}
	return out, nil
}
