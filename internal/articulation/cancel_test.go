package articulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelRegistry(t *testing.T) {
	r := NewCancelRegistry()

	assert.False(t, r.Request(7), "no render running")
	assert.False(t, r.Requested(7))

	release := r.Install(7)
	assert.Equal(t, 1, r.Active())
	assert.False(t, r.Requested(7))
	assert.True(t, r.Request(7))
	assert.True(t, r.Requested(7))
	assert.False(t, r.Requested(8))

	release()
	assert.Equal(t, 0, r.Active())
	assert.False(t, r.Requested(7))
}

func TestCancelRegistryNewerRenderWins(t *testing.T) {
	r := NewCancelRegistry()

	first := r.Install(7)
	r.Request(7)
	second := r.Install(7)
	assert.False(t, r.Requested(7), "new render starts cleared")

	first()
	assert.Equal(t, 1, r.Active(), "stale release keeps the newer flag")
	assert.True(t, r.Request(7))

	second()
	assert.Equal(t, 0, r.Active())
}
