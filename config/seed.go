package config

import (
	"math/big"
	"regexp"
	"strings"
	"unicode/utf16"
)

var numericSeed = regexp.MustCompile(`^[+-]?[0-9]+$`)

// ParseSeed turns user input into a world seed. Decimal numbers are taken
// modulo 2^64 as two's complement, any other text is hashed the way the
// game hashes string seeds. The empty string is seed 0.
func ParseSeed(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if numericSeed.MatchString(s) {
		v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "+"), 10)
		if ok {
			return truncate64(v), nil
		}
	}
	return stringHash(s), nil
}

func truncate64(v *big.Int) int64 {
	if v.IsInt64() {
		return v.Int64()
	}
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))
	return int64(new(big.Int).And(v, mask).Uint64())
}

// stringHash is the 32-bit polynomial hash over UTF-16 code units, sign
// extended.
func stringHash(s string) int64 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return int64(h)
}
