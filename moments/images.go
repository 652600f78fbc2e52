package moments

import (
	"fmt"

	"github.com/sesh-im/go-sesh/crypto"
)

// DecryptImage unseals a fetched moment image with the key carried in the
// post.
func DecryptImage(p crypto.Provider, post *Post, ciphertext []byte) ([]byte, error) {
	if len(post.ImageKey) == 0 {
		return nil, fmt.Errorf("moments: post has no image key")
	}
	return p.DecryptAttachment(post.ImageKey, ciphertext)
}
