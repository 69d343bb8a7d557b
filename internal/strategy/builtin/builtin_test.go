package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(nil)

	assert.Equal(t, []string{"mean_reversion", "momentum", "spread"}, reg.Names())

	for _, name := range reg.Names() {
		s, err := reg.New(name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())

		ranges, ok := reg.Ranges(name)
		require.True(t, ok, "%s should be tunable", name)
		for param, r := range ranges {
			assert.NoError(t, r.Validate(), "%s.%s", name, param)
		}
	}
}
