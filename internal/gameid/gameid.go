// Package gameid issues identifiers for room-runs. A run ID is a UUIDv7
// rendered as 26 characters of lowercase Crockford base32, so IDs sort by
// creation time and are safe to use as file names.
package gameid

import (
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Length is the number of characters in an encoded ID.
const Length = 26

// Crockford's base32 without i, l, o or u.
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

var decodeTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 0xff
	}
	for i := 0; i < len(alphabet); i++ {
		t[alphabet[i]] = byte(i)
	}
	return t
}()

// Generate returns a new run ID.
func Generate() string {
	return Encode(uuid.Must(uuid.NewV7()))
}

// GenerateFrom returns a run ID whose random bits are read from r. Tests use
// it for reproducible IDs.
func GenerateFrom(r io.Reader) (string, error) {
	u, err := uuid.NewV7FromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to generate run id: %w", err)
	}
	return Encode(u), nil
}

// Encode renders u as 26 base32 characters. The 128 bits are left-padded with
// two zero bits, which keeps the first character in 0–7.
func Encode(u uuid.UUID) string {
	hi, lo := halves(u)
	out := make([]byte, Length)
	for i := Length - 1; i >= 0; i-- {
		out[i] = alphabet[lo&0x1f]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(out)
}

// Decode parses an encoded ID back into its UUID.
func Decode(id string) (uuid.UUID, error) {
	var u uuid.UUID
	if err := Validate(id); err != nil {
		return u, err
	}
	var hi, lo uint64
	for i := 0; i < Length; i++ {
		v := uint64(decodeTable[id[i]])
		hi = hi<<5 | lo>>59
		lo = lo<<5 | v
	}
	for i := 0; i < 8; i++ {
		u[i] = byte(hi >> (56 - 8*i))
		u[8+i] = byte(lo >> (56 - 8*i))
	}
	return u, nil
}

// Validate checks that id is 26 characters from the alphabet and fits in
// 128 bits.
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("run id must be exactly %d characters, got %d", Length, len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("run id first character must be 0-7, got %c", id[0])
	}
	for i := 0; i < len(id); i++ {
		if decodeTable[id[i]] == 0xff {
			return fmt.Errorf("invalid character %c at position %d", id[i], i)
		}
	}
	return nil
}

func halves(u uuid.UUID) (hi, lo uint64) {
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(u[i])
		lo = lo<<8 | uint64(u[8+i])
	}
	return hi, lo
}
