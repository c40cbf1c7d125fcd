package provider

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// Fingerprint identifies a file's content: a BLAKE3-256 digest and the byte
// length. The zero value is the fingerprint of an absent file.
type Fingerprint struct {
	Digest  [32]byte
	Size    int64
	present bool
}

// Absent returns the fingerprint of a file that does not exist.
func Absent() Fingerprint {
	return Fingerprint{}
}

// NewFingerprint builds a present fingerprint from a digest and size.
// Used when restoring persisted fingerprints.
func NewFingerprint(digest [32]byte, size int64) Fingerprint {
	return Fingerprint{Digest: digest, Size: size, present: true}
}

// FingerprintBytes fingerprints an in-memory buffer.
func FingerprintBytes(data []byte) Fingerprint {
	return NewFingerprint(blake3.Sum256(data), int64(len(data)))
}

// FingerprintReader fingerprints everything r yields.
func FingerprintReader(r io.Reader) (Fingerprint, error) {
	h := blake3.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Fingerprint{}, err
	}
	return sumOf(h, n), nil
}

func sumOf(h *blake3.Hasher, n int64) Fingerprint {
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return NewFingerprint(digest, n)
}

// Present reports whether the file existed.
func (f Fingerprint) Present() bool {
	return f.present
}

// Equal reports whether two fingerprints describe the same content.
// Two absent fingerprints are equal.
func (f Fingerprint) Equal(o Fingerprint) bool {
	if f.present != o.present {
		return false
	}
	if !f.present {
		return true
	}
	return f.Size == o.Size && f.Digest == o.Digest
}

// String returns a short hex form, or "absent".
func (f Fingerprint) String() string {
	if !f.present {
		return "absent"
	}
	return hex.EncodeToString(f.Digest[:6])
}

// Hex returns the full hex digest, or "" for an absent file.
func (f Fingerprint) Hex() string {
	if !f.present {
		return ""
	}
	return hex.EncodeToString(f.Digest[:])
}
