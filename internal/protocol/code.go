package protocol

import (
	"fmt"
	"math/rand"
	"strings"
)

// GameCode is the packed integer form of a room code. Four letter codes pack
// their ASCII bytes little-endian and stay positive; six letter codes use a
// base-26 packing with the sign bit set, so the two forms never collide.
type GameCode int32

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CodeNone is the "no room" sentinel.
const CodeNone GameCode = 0

func (c GameCode) IsV2() bool {
	return c < 0
}

func (c GameCode) String() string {
	if c == CodeNone {
		return ""
	}

	if !c.IsV2() {
		v := uint32(c)
		return string([]byte{
			byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		})
	}

	v := uint32(c)
	firstTwo := v & 0x3ff
	lastFour := (v >> 10) & 0xfffff

	out := make([]byte, 6)
	out[0] = codeAlphabet[firstTwo%26]
	out[1] = codeAlphabet[firstTwo/26]
	out[2] = codeAlphabet[lastFour%26]
	lastFour /= 26
	out[3] = codeAlphabet[lastFour%26]
	lastFour /= 26
	out[4] = codeAlphabet[lastFour%26]
	lastFour /= 26
	out[5] = codeAlphabet[lastFour%26]
	return string(out)
}

// CodeFromString parses a 4 or 6 letter room code.
func CodeFromString(s string) (GameCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return CodeNone, fmt.Errorf("invalid character %q in game code", r)
		}
	}

	switch len(s) {
	case 4:
		return GameCode(uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24), nil
	case 6:
		letter := func(i int) uint32 { return uint32(s[i] - 'A') }
		firstTwo := letter(0) + 26*letter(1)
		lastFour := letter(2) + 26*(letter(3)+26*(letter(4)+26*letter(5)))
		return GameCode(firstTwo | (lastFour << 10) | 0x80000000), nil
	default:
		return CodeNone, fmt.Errorf("game code must be 4 or 6 letters, got %d", len(s))
	}
}

// GenerateCode produces a random six letter code. Uniqueness against live
// rooms is the caller's job.
func GenerateCode(rng *rand.Rand) GameCode {
	letters := make([]byte, 6)
	for i := range letters {
		letters[i] = codeAlphabet[rng.Intn(len(codeAlphabet))]
	}
	code, _ := CodeFromString(string(letters))
	return code
}
