package wire

import "fmt"

// Community and inbox payloads are padded to a block boundary with a single
// 0x80 marker followed by zeros.

func AddPadding(b []byte, blockLen int) []byte {
	if blockLen <= 0 {
		blockLen = 160
	}
	padded := len(b) + 1
	if rem := padded % blockLen; rem != 0 {
		padded += blockLen - rem
	}
	out := make([]byte, padded)
	copy(out, b)
	out[len(b)] = 0x80
	return out
}

func StripPadding(b []byte) ([]byte, error) {
	for i := len(b) - 1; i >= 0; i-- {
		switch b[i] {
		case 0x00:
			continue
		case 0x80:
			return b[:i], nil
		default:
			return nil, fmt.Errorf("wire: expected padding marker, got 0x%02x", b[i])
		}
	}
	return nil, fmt.Errorf("wire: no padding marker in %d bytes", len(b))
}
