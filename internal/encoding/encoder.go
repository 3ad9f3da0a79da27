package encoding

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zeebo/xxh3"
)

const (
	// Encoded size of a single integer component
	IntSize = 8

	// Encoded size of a 4-component quad key
	QuadKeySize = 4 * IntSize

	// Size of a 128-bit xxhash3 digest
	HashSize = 16
)

// Wildcard is the smallest component value. It stands for an unbound
// position in a composite key and sorts before every real OID.
const Wildcard int64 = -1

// MaxComponent is the largest component value, used to build the upper
// bound of a fully unbound range.
const MaxComponent int64 = math.MaxInt64

// Hash128 computes a 128-bit xxhash3 hash of the input bytes
func Hash128(b []byte) [HashSize]byte {
	hash := xxh3.Hash128(b)
	var result [HashSize]byte
	binary.BigEndian.PutUint64(result[0:8], hash.Hi)
	binary.BigEndian.PutUint64(result[8:16], hash.Lo)
	return result
}

// EncodeInt encodes a signed integer so that the byte-wise order of the
// encodings equals the numeric order of the values: big endian with the
// sign bit flipped.
func EncodeInt(value int64) [IntSize]byte {
	var encoded [IntSize]byte
	binary.BigEndian.PutUint64(encoded[:], uint64(value)^(1<<63)) // #nosec G115 - intentional bit-pattern conversion for order-preserving encoding
	return encoded
}

// DecodeInt reverses EncodeInt
func DecodeInt(encoded []byte) (int64, error) {
	if len(encoded) != IntSize {
		return 0, fmt.Errorf("invalid encoded integer length: %d", len(encoded))
	}
	return int64(binary.BigEndian.Uint64(encoded) ^ (1 << 63)), nil // #nosec G115 - intentional bit-pattern conversion for binary decoding
}

// EncodeUint encodes an unsigned integer big endian
func EncodeUint(value uint64) [IntSize]byte {
	var encoded [IntSize]byte
	binary.BigEndian.PutUint64(encoded[:], value)
	return encoded
}

// DecodeUint reverses EncodeUint
func DecodeUint(encoded []byte) (uint64, error) {
	if len(encoded) != IntSize {
		return 0, fmt.Errorf("invalid encoded integer length: %d", len(encoded))
	}
	return binary.BigEndian.Uint64(encoded), nil
}

// EncodeQuadKey encodes a composite key from its components in order.
// Returns a big-endian byte array whose lexicographic order is the numeric
// tuple order of the components.
func EncodeQuadKey(components ...int64) []byte {
	result := make([]byte, 0, len(components)*IntSize)
	for _, c := range components {
		encoded := EncodeInt(c)
		result = append(result, encoded[:]...)
	}
	return result
}

// DecodeQuadKey splits an encoded composite key back into its components
func DecodeQuadKey(key []byte) ([]int64, error) {
	if len(key)%IntSize != 0 {
		return nil, fmt.Errorf("invalid composite key length: %d", len(key))
	}

	components := make([]int64, len(key)/IntSize)
	for i := range components {
		c, err := DecodeInt(key[i*IntSize : (i+1)*IntSize])
		if err != nil {
			return nil, err
		}
		components[i] = c
	}
	return components, nil
}

// CompareTuples compares two component tuples numerically: the first
// component decides, ties fall through to the next one. Returns -1, 0 or 1.
// A shorter tuple that is a prefix of the longer one sorts first.
func CompareTuples(left, right []int64) int {
	for i := 0; i < len(left) && i < len(right); i++ {
		switch {
		case left[i] < right[i]:
			return -1
		case left[i] > right[i]:
			return 1
		}
	}

	switch {
	case len(left) < len(right):
		return -1
	case len(left) > len(right):
		return 1
	}
	return 0
}
