package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// ReadHasher hashes everything read through it. Acquisition wraps source
// streams with it so the asset checksum can be logged without a second pass.
type ReadHasher struct {
	r      io.Reader
	sha256 hash.Hash
}

func NewReadHasher(r io.Reader) *ReadHasher {
	return &ReadHasher{
		r:      r,
		sha256: sha256.New(),
	}
}

func (h *ReadHasher) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		// hashers never return errors
		h.sha256.Write(p[:n])
	}
	return n, err
}

func (h *ReadHasher) SHA256() string {
	return hex.EncodeToString(h.sha256.Sum(nil))
}
