package domain

import (
	"fmt"
	"strings"
)

// Unit keys are file paths and routinely contain '.', which document stores
// treat as a path separator. Keys are percent-encoded for storage: '%' -> %25,
// '.' -> %2E, '$' -> %24. All other bytes pass through unchanged, so escaping
// is exactly reversible.

const upperHex = "0123456789ABCDEF"

// EscapeUnitKey encodes a unit key for use as a stored document key.
func EscapeUnitKey(unitKey string) string {
	if !strings.ContainsAny(unitKey, "%.$") {
		return unitKey
	}
	var b strings.Builder
	b.Grow(len(unitKey) + 8)
	for i := 0; i < len(unitKey); i++ {
		c := unitKey[i]
		switch c {
		case '%', '.', '$':
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&0x0F])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// UnescapeUnitKey reverses EscapeUnitKey. Only the canonical sequences %25,
// %2E and %24 are accepted; a raw '.' or '$', or any other escape, means the
// input was not produced by EscapeUnitKey.
func UnescapeUnitKey(escaped string) (string, error) {
	if !strings.ContainsAny(escaped, "%.$") {
		return escaped, nil
	}
	var b strings.Builder
	b.Grow(len(escaped))
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		switch c {
		case '.', '$':
			return "", fmt.Errorf("%w: raw %q at offset %d", ErrInvalidEscapedKey, c, i)
		case '%':
			if i+2 >= len(escaped) {
				return "", fmt.Errorf("%w: truncated escape at offset %d", ErrInvalidEscapedKey, i)
			}
			switch escaped[i+1 : i+3] {
			case "25":
				b.WriteByte('%')
			case "2E":
				b.WriteByte('.')
			case "24":
				b.WriteByte('$')
			default:
				return "", fmt.Errorf("%w: unknown escape %q at offset %d",
					ErrInvalidEscapedKey, escaped[i:i+3], i)
			}
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
