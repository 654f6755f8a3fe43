package rollavg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAverageZeroUntilFull(t *testing.T) {
	avg := New(3)
	assert.False(t, avg.Ready())
	assert.Equal(t, float32(0), avg.Add(300))
	assert.Equal(t, float32(0), avg.Add(600))
	assert.Equal(t, float32(400), avg.Add(300))
	assert.True(t, avg.Ready())
}

func TestAverageSlidesWindow(t *testing.T) {
	avg := New(3)
	avg.Add(1)
	avg.Add(2)
	avg.Add(3)
	// oldest sample (1) drops out
	assert.Equal(t, float32(3), avg.Add(4))
}

func TestAverageReset(t *testing.T) {
	avg := New(2)
	avg.Add(10)
	avg.Add(20)
	assert.True(t, avg.Ready())
	avg.Reset()
	assert.False(t, avg.Ready())
	assert.Equal(t, float32(0), avg.Value())
}

func TestAverageMinimumSize(t *testing.T) {
	avg := New(0)
	assert.Equal(t, float32(42), avg.Add(42))
}
