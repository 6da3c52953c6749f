package billing

import (
	"fmt"
	"net"
	"strings"
)

// NormalizeMAC parses a 48-bit hardware address and returns it as upper-case,
// colon-separated hex.
func NormalizeMAC(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil || len(hw) != 6 {
		return "", fmt.Errorf("%w: device id %q is not a MAC address", ErrInvalidInput, s)
	}
	return strings.ToUpper(hw.String()), nil
}
