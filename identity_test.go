package weave

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCLID_Classification(t *testing.T) {
	t.Run("switch points are even, non-negative, non-sentinel", func(t *testing.T) {
		assert.True(t, CLID(2).IsSwitchPoint())
		assert.True(t, CLID(100).IsSwitchPoint())
		assert.False(t, CLID(3).IsSwitchPoint())
		assert.False(t, CLID(-2).IsSwitchPoint())
		assert.False(t, SentinelCLID.IsSwitchPoint())
	})

	t.Run("helpers are odd and non-negative", func(t *testing.T) {
		assert.True(t, CLID(3).IsHelper())
		assert.False(t, CLID(2).IsHelper())
		assert.False(t, CLID(-3).IsHelper())
	})

	t.Run("value views are negative and not the sentinel", func(t *testing.T) {
		assert.True(t, CLID(-2).IsValueView())
		assert.True(t, CLID(-3).IsValueView())
		assert.False(t, SentinelCLID.IsValueView())
		assert.False(t, CLID(4).IsValueView())
	})

	t.Run("sentinel is excluded from every category", func(t *testing.T) {
		assert.False(t, SentinelCLID.IsSwitchPoint())
		assert.False(t, SentinelCLID.IsHelper())
		assert.False(t, SentinelCLID.IsValueView())
	})
}
