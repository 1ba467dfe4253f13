package visitors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"footprint/internal/visitors"
)

func TestIdentifier(t *testing.T) {
	const ua = "Mozilla/5.0 (Test Agent)"

	t.Run("prefers ip", func(t *testing.T) {
		assert.Equal(t, "ip:203.0.113.7", visitors.Identifier("203.0.113.7", ua))
	})

	t.Run("falls back to user agent", func(t *testing.T) {
		assert.Equal(t, "ua:"+ua, visitors.Identifier("", ua))
		assert.Equal(t, visitors.Identifier("", ua), visitors.Identifier("  ", ua))
	})

	t.Run("distinct ips with same agent stay distinct", func(t *testing.T) {
		assert.NotEqual(t, visitors.Identifier("203.0.113.7", ua), visitors.Identifier("203.0.113.8", ua))
	})

	t.Run("ip and agent namespaces never collide", func(t *testing.T) {
		assert.NotEqual(t, visitors.Identifier("x", ""), visitors.Identifier("", "x"))
	})

	t.Run("nothing known", func(t *testing.T) {
		assert.Empty(t, visitors.Identifier("", ""))
	})
}
