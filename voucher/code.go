package voucher

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	DefaultPrefix = "TLW"
	codeLength    = 6
	alphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	prefixPattern = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)
	codePattern   = regexp.MustCompile(`^[A-Z0-9]{1,8}-[A-Z0-9]{6}$`)
)

// ValidPrefix reports whether codes issued under prefix pass ValidCode.
func ValidPrefix(prefix string) bool {
	return prefixPattern.MatchString(prefix)
}

// ValidCode reports whether code has the PREFIX-XXXXXX shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// NormalizeCode upper-cases and trims user input before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RandomCode draws a code from crypto/rand.
func RandomCode(prefix string) (string, error) {
	var b strings.Builder
	b.Grow(len(prefix) + 1 + codeLength)
	b.WriteString(prefix)
	b.WriteByte('-')

	size := big.NewInt(int64(len(alphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}
