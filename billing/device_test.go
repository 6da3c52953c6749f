package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMAC(t *testing.T) {
	for _, in := range []string{"aa:bb:cc:dd:ee:ff", "AA-BB-CC-DD-EE-FF", " aabb.ccdd.eeff "} {
		mac, err := NormalizeMAC(in)
		require.NoError(t, err, in)
		assert.Equal(t, "AA:BB:CC:DD:EE:FF", mac)
	}

	for _, in := range []string{"", "device-1", "00:00:5e:00:53:01:00:00"} {
		_, err := NormalizeMAC(in)
		assert.ErrorIs(t, err, ErrInvalidInput, in)
	}
}
