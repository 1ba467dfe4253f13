package visitors_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"footprint/internal/visitors"
)

func TestAlias(t *testing.T) {
	t.Run("stable for the same fingerprint", func(t *testing.T) {
		assert.Equal(t, visitors.Alias("3551c8c1"), visitors.Alias("3551c8c1"))
	})

	t.Run("two words", func(t *testing.T) {
		assert.Len(t, strings.Fields(visitors.Alias("0002b606")), 2)
	})

	t.Run("spreads across fingerprints", func(t *testing.T) {
		seen := map[string]bool{}
		for _, fp := range []string{"00000001", "00000002", "00000003", "00000004", "00000005"} {
			seen[visitors.Alias(fp)] = true
		}
		assert.Greater(t, len(seen), 1)
	})

	t.Run("empty fingerprint", func(t *testing.T) {
		assert.Equal(t, "Anonymous Visitor", visitors.Alias(""))
	})
}
