package sunspec

import (
	"math"

	"shelly2fronius/pkg/mbtcp"
)

// SnapshotFunc returns the current live measurements. It is called at
// most once per Modbus request.
type SnapshotFunc func() LiveValues

// Device serves the emulated meter's register map. It implements
// mbtcp.Handler. Holding and input register reads answer from the same
// table; any address outside the map is an illegal data address.
type Device struct {
	snapshot SnapshotFunc
}

func NewDevice(snapshot SnapshotFunc) *Device {
	return &Device{snapshot: snapshot}
}

func (d *Device) ReadHoldingRegisters(unitID uint8, addr uint16, qty uint16) ([]uint16, error) {
	return d.read(mbtcp.FuncReadHoldingRegisters, addr, qty)
}

func (d *Device) ReadInputRegisters(unitID uint8, addr uint16, qty uint16) ([]uint16, error) {
	return d.read(mbtcp.FuncReadInputRegisters, addr, qty)
}

func (d *Device) read(fc mbtcp.FunctionCode, addr uint16, qty uint16) ([]uint16, error) {
	// Bounds are computed in uint32 so addr+qty cannot wrap the
	// register space.
	if uint32(addr)+uint32(qty) > 65536 {
		return nil, mbtcp.IllegalDataAddressError(fc)
	}
	var live map[uint16]uint16
	if uint32(addr)+uint32(qty) > uint32(regLiveBase) && addr <= regLiveEnd {
		live = liveMap(d.snapshot())
	}
	out := make([]uint16, qty)
	for i := uint16(0); i < qty; i++ {
		a := addr + i
		if v, ok := live[a]; ok {
			out[i] = v
			continue
		}
		if v, ok := constRegisters[a]; ok {
			out[i] = v
			continue
		}
		if a >= regLiveBase && a <= regLiveEnd {
			// Reserved words inside the meter block read as zero.
			out[i] = 0
			continue
		}
		return nil, mbtcp.IllegalDataAddressError(fc)
	}
	return out, nil
}

// liveMap expands one snapshot into register words, high word at the
// base address.
func liveMap(v LiveValues) map[uint16]uint16 {
	m := make(map[uint16]uint16, 2*len(liveRegisters))
	for _, r := range liveRegisters {
		bits := math.Float32bits(r.get(v))
		m[r.addr] = uint16(bits >> 16)
		m[r.addr+1] = uint16(bits)
	}
	return m
}
