package sunspec

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"shelly2fronius/pkg/mbtcp"
)

func testDevice(v LiveValues) *Device {
	return NewDevice(func() LiveValues { return v })
}

func wordsToString(words []uint16) string {
	out := make([]byte, 0, len(words))
	for _, w := range words {
		if w == 0 {
			break
		}
		out = append(out, byte(w))
	}
	return string(out)
}

func TestDeviceDiscoveryMap(t *testing.T) {
	d := testDevice(LiveValues{})

	// SunSpec marker
	regs, err := d.ReadHoldingRegisters(240, 40000, 2)
	assert.NoError(t, err)
	assert.Equal(t, []uint16{0x5375, 0x6e53}, regs)

	// Common model header
	regs, err = d.ReadHoldingRegisters(240, 40002, 2)
	assert.NoError(t, err)
	assert.Equal(t, []uint16{1, 65}, regs)

	// Identity strings, one char per register
	regs, err = d.ReadHoldingRegisters(240, 40004, 16)
	assert.NoError(t, err)
	assert.Equal(t, "Fronius", wordsToString(regs))

	regs, err = d.ReadHoldingRegisters(240, 40020, 32)
	assert.NoError(t, err)
	assert.Equal(t, "Smart Meter 63A", wordsToString(regs))

	regs, err = d.ReadHoldingRegisters(240, 40052, 16)
	assert.NoError(t, err)
	assert.Equal(t, "00000001", wordsToString(regs))

	// Device address + meter model header
	regs, err = d.ReadHoldingRegisters(240, 40068, 3)
	assert.NoError(t, err)
	assert.Equal(t, []uint16{240, 213, 124}, regs)

	// End-of-map model
	regs, err = d.ReadHoldingRegisters(240, 40195, 2)
	assert.NoError(t, err)
	assert.Equal(t, []uint16{0xffff, 0}, regs)
}

func TestDeviceProbeRegisters(t *testing.T) {
	d := testDevice(LiveValues{})
	for _, addr := range []uint16{1, 11, 12, 768, 1706, 50000, 50001} {
		regs, err := d.ReadHoldingRegisters(240, addr, 1)
		assert.NoError(t, err)
		assert.Equal(t, []uint16{0}, regs)
	}
	regs, err := d.ReadHoldingRegisters(240, 0, 1)
	assert.NoError(t, err)
	assert.Equal(t, []uint16{1}, regs)
}

func TestDeviceLiveFloatEncoding(t *testing.T) {
	d := testDevice(LiveValues{TotalPowerW: -512.25, FrequencyHz: 50.0})

	regs, err := d.ReadHoldingRegisters(240, 40097, 2)
	assert.NoError(t, err)
	bits := uint32(regs[0])<<16 | uint32(regs[1])
	assert.Equal(t, float32(-512.25), math.Float32frombits(bits))

	regs, err = d.ReadInputRegisters(240, 40095, 2)
	assert.NoError(t, err)
	bits = uint32(regs[0])<<16 | uint32(regs[1])
	assert.Equal(t, float32(50.0), math.Float32frombits(bits))
}

func TestDeviceHoldingAndInputMatch(t *testing.T) {
	d := testDevice(LiveValues{TotalPowerW: 1234.5, NetCurrentA: 5.4})
	h, err := d.ReadHoldingRegisters(240, 40071, 60)
	assert.NoError(t, err)
	in, err := d.ReadInputRegisters(240, 40071, 60)
	assert.NoError(t, err)
	assert.Equal(t, h, in)
}

func TestDeviceSingleSnapshotPerRequest(t *testing.T) {
	calls := 0
	d := NewDevice(func() LiveValues {
		calls++
		return LiveValues{TotalPowerW: float32(calls)}
	})
	regs, err := d.ReadHoldingRegisters(240, 40071, 124)
	assert.NoError(t, err)
	assert.Len(t, regs, 124)
	assert.Equal(t, 1, calls)
}

func TestDeviceUnmappedAddress(t *testing.T) {
	d := testDevice(LiveValues{})

	_, err := d.ReadHoldingRegisters(240, 41000, 1)
	var merr *mbtcp.ModbusError
	assert.True(t, errors.As(err, &merr))
	assert.Equal(t, mbtcp.ExceptionIllegalDataAddress, merr.Exception)

	// A range that starts valid but runs past the map is rejected too.
	_, err = d.ReadHoldingRegisters(240, 40195, 3)
	assert.True(t, errors.As(err, &merr))
	assert.Equal(t, mbtcp.ExceptionIllegalDataAddress, merr.Exception)
}

func TestDeviceRangePastAddressSpace(t *testing.T) {
	d := testDevice(LiveValues{})

	// addr+qty would wrap uint16; must be rejected, not served as zeros.
	var merr *mbtcp.ModbusError
	_, err := d.ReadHoldingRegisters(240, 65000, 1000)
	assert.True(t, errors.As(err, &merr))
	assert.Equal(t, mbtcp.ExceptionIllegalDataAddress, merr.Exception)

	_, err = d.ReadInputRegisters(240, 65535, 2)
	assert.True(t, errors.As(err, &merr))
	assert.Equal(t, mbtcp.ExceptionIllegalDataAddress, merr.Exception)
}

func TestDeviceReservedMeterWordsReadZero(t *testing.T) {
	d := testDevice(LiveValues{})
	regs, err := d.ReadHoldingRegisters(240, 40145, 50)
	assert.NoError(t, err)
	for i, w := range regs {
		assert.Equal(t, uint16(0), w, "register %d", 40145+i)
	}
}
