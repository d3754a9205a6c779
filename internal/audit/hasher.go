package audit

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hasher pseudonymizes user ids with keyed BLAKE2b-256 so events can be
// correlated per user without storing the id.
type Hasher struct {
	key []byte
}

// NewHasher accepts keys of at most 64 bytes.
func NewHasher(key []byte) (*Hasher, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("audit hash key longer than %d bytes", blake2b.Size)
	}
	return &Hasher{key: append([]byte(nil), key...)}, nil
}

func (h *Hasher) Hash(userID string) string {
	if userID == "" {
		return ""
	}
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is checked in NewHasher
		panic(err)
	}
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}
