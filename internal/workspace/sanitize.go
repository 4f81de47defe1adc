package workspace

import (
	"strings"
)

// nameMax mirrors the host's NAME_MAX (255 on Linux/most POSIX
// filesystems), the length cap imposed on sanitized names.
const nameMax = 255

// SanitizeName renders name safe to use as a single path segment:
// alphanumerics and "-._," pass through unchanged; every other byte is
// percent-encoded as two uppercase hex nibbles. If the first character
// would be "_" or "." (LMAP's private-namespace / hidden-file
// convention), it is percent-encoded too so sanitized names never
// collide with the daemon's own "_incoming" staging directories or
// dotfiles. The result is truncated to nameMax bytes.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if i == 0 && (c == '_' || c == '.') {
			writePercentEncoded(&b, c)
			continue
		}
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			writePercentEncoded(&b, c)
		}
	}
	out := b.String()
	if len(out) > nameMax {
		out = out[:nameMax]
	}
	return out
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == ',':
		return true
	}
	return false
}

const hexDigits = "0123456789ABCDEF"

func writePercentEncoded(b *strings.Builder, c byte) {
	b.WriteByte('%')
	b.WriteByte(hexDigits[c>>4])
	b.WriteByte(hexDigits[c&0x0F])
}
