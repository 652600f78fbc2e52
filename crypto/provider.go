// Decryption primitives consumed by the receive pipeline. The pipeline only
// sees the Provider interface; NaclProvider is the default implementation.
package crypto

import (
	"errors"

	"github.com/sesh-im/go-sesh/ids"
)

// ErrDecryptFailed wraps any failure to authenticate or unseal a ciphertext.
var ErrDecryptFailed = errors.New("crypto: decrypt failed")

type Provider interface {
	// Unseal a 1:1 swarm message, recovering the sender's standard account id.
	DecryptSessionProtocol(ciphertext []byte) ([]byte, ids.ID, error)
	// Unseal a group message with the group's registered key. The plaintext is
	// a still-wrapped envelope.
	DecryptGroupMessage(groupID ids.ID, ciphertext []byte) ([]byte, ids.ID, error)
	// Unseal a community inbox message, un-blinding the sender.
	DecryptBlindedInbox(ciphertext []byte, senderID, recipientID ids.ID, serverPublicKey []byte) ([]byte, ids.ID, error)
	// Attachment bodies, used by the moment image flow.
	DecryptAttachment(key, ciphertext []byte) ([]byte, error)
	LegacyDecryptAttachment(key, iv, ciphertext []byte) ([]byte, error)
}
