package shelly3em

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeU16F32(t *testing.T) {
	value := float32(123.456)
	bits := math.Float32bits(value)
	low := uint16(bits)
	high := uint16(bits >> 16)

	assert.Equal(t, value, mergeU16F32(low, high))
	assert.Equal(t, float32(0), mergeU16F32(0, 0))

	// Negative power flows must survive the round trip.
	bits = math.Float32bits(-1500)
	assert.Equal(t, float32(-1500), mergeU16F32(uint16(bits), uint16(bits>>16)))
}

func TestTestReaderApportionsPhases(t *testing.T) {
	reader := &TestSourceMeterReader{NetPower: -900}
	r, err := reader.GetReading()
	assert.NoError(t, err)
	assert.Equal(t, float32(-900), r.NetPowerWatt)
	for _, p := range r.Phases {
		assert.Equal(t, float32(-300), p.PowerWatt)
	}
}
