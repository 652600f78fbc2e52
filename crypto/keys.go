package crypto

import (
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// DeriveStoreKey derives the sqlcipher key from a password, creating the salt
// file on first use.
func DeriveStoreKey(password, root, saltName string) ([]byte, error) {
	var salt [16]byte
	saltPath := filepath.Join(root, saltName)
	if _, err := os.Stat(saltPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if _, err := crypto_rand.Read(salt[:]); err != nil {
			return nil, err
		}
		if err := os.WriteFile(saltPath, salt[:], 0o400); err != nil {
			return nil, err
		}
	} else {
		f, err := os.Open(saltPath) // #nosec G304
		if err != nil {
			return nil, err
		}
		n, err := io.ReadFull(f, salt[:])
		if cerr := f.Close(); cerr != nil {
			return nil, cerr
		}
		if err != nil {
			return nil, err
		}
		if n != 16 {
			return nil, fmt.Errorf("expected 16 bytes, got %d", n)
		}
	}
	return argon2.IDKey([]byte(password), salt[:], 1, 64*1024, 4, 32), nil
}
