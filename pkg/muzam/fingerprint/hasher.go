package fingerprint

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/OneOfOne/xxhash"
)

// Digest names the hash function applied to binarized feature vectors.
type Digest string

const (
	DigestXXHash Digest = "xxhash"
	DigestMD5    Digest = "md5"
	DigestSHA256 Digest = "sha256"

	MinDigestBits = 64

	// seed of the second xxhash lane
	xxhashLaneSeed = 0x9e3779b97f4a7c15
)

// MaxBits is the widest token a digest can produce.
func (d Digest) MaxBits() int {
	switch d {
	case DigestXXHash, DigestMD5:
		return 128
	case DigestSHA256:
		return 256
	default:
		return 0
	}
}

type hashFunc func(bits []byte) string

func newHashFunc(d Digest, width int) (hashFunc, error) {
	max := d.MaxBits()
	if max == 0 {
		return nil, fmt.Errorf("unknown digest %q", d)
	}
	if width < MinDigestBits || width > max || width%4 != 0 {
		return nil, fmt.Errorf("digest width %d invalid for %s: need a multiple of 4 in [%d, %d]", width, d, MinDigestBits, max)
	}
	hexLen := width / 4

	switch d {
	case DigestMD5:
		return func(bits []byte) string {
			sum := md5.Sum(bits)
			return hex.EncodeToString(sum[:])[:hexLen]
		}, nil
	case DigestSHA256:
		return func(bits []byte) string {
			sum := sha256.Sum256(bits)
			return hex.EncodeToString(sum[:])[:hexLen]
		}, nil
	default:
		return func(bits []byte) string {
			var sum [16]byte
			binary.BigEndian.PutUint64(sum[:8], xxhash.Checksum64(bits))
			binary.BigEndian.PutUint64(sum[8:], xxhash.Checksum64S(bits, xxhashLaneSeed))
			return hex.EncodeToString(sum[:])[:hexLen]
		}, nil
	}
}
