package util

import "strings"

func IsNumber(b byte) bool {
	return b >= '0' && b <= '9'
}

func IsHexNumber(b byte) bool {
	return IsNumber(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func IsBinNumber(b byte) bool {
	return b == '0' || b == '1'
}

func IsUnderScore(b byte) bool {
	return b == '_'
}

func IsLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func IsLetterOrUnderscore(b byte) bool {
	return IsLetter(b) || IsUnderScore(b)
}

func IsLetterOrUnderscoreOrNumber(b byte) bool {
	return IsLetter(b) || IsUnderScore(b) || IsNumber(b)
}

func IsSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

// ParseUint parses a decimal, 0x hex or 0b binary literal. Underscores are
// allowed as digit separators anywhere after the first digit.
func ParseUint(s string) (uint64, bool) {
	s = strings.ReplaceAll(s, "_", "")
	if s == "" {
		return 0, false
	}
	base := 10
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base, s = 16, s[2:]
	} else if len(s) > 2 && s[0] == '0' && (s[1] == 'b' || s[1] == 'B') {
		base, s = 2, s[2:]
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		var d uint64
		b := s[i]
		switch {
		case IsNumber(b):
			d = uint64(b - '0')
		case b >= 'a' && b <= 'f':
			d = uint64(b-'a') + 10
		case b >= 'A' && b <= 'F':
			d = uint64(b-'A') + 10
		default:
			return 0, false
		}
		if d >= uint64(base) {
			return 0, false
		}
		v = v*uint64(base) + d
	}
	return v, true
}

// UnQuote strips one pair of surrounding double quotes if present.
func UnQuote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
