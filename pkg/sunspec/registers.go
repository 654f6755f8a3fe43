// Package sunspec holds the register map of the emulated Fronius Smart
// Meter 63A (SunSpec common model 1 + float AC meter model 213) and the
// Modbus handler that projects live readings into it.
//
// The discovery portion of the map is static data: inverters walk it
// once per connection to identify the device and it must look identical
// on every read, live data or not.
package sunspec

// LiveValues are the measurements the model 213 block exposes. One
// LiveValues snapshot backs one request, so a multi-register read is
// internally consistent.
type LiveValues struct {
	NetCurrentA   float32
	CurrentA      float32
	CurrentB      float32
	CurrentC      float32
	VoltageLNAvg  float32
	VoltageAN     float32
	VoltageBN     float32
	VoltageCN     float32
	VoltageLLAvg  float32
	VoltageAB     float32
	VoltageBC     float32
	VoltageCA     float32
	FrequencyHz   float32
	TotalPowerW   float32
	PowerAW       float32
	PowerBW       float32
	PowerCW       float32
	ApparentVA    float32
	ApparentAVA   float32
	ApparentBVA   float32
	ApparentCVA   float32
	ReactiveVAR   float32
	ReactiveAVAR  float32
	ReactiveBVAR  float32
	ReactiveCVAR  float32
	PowerFactor   float32
	PowerFactorA  float32
	PowerFactorB  float32
	PowerFactorC  float32
	ExportedWh    float32
	ExportedAWh   float32
	ExportedBWh   float32
	ExportedCWh   float32
	ImportedWh    float32
	ImportedAWh   float32
	ImportedBWh   float32
	ImportedCWh   float32
}

const (
	regSunSpecMarker = 40000 // "SunS"
	regCommonModel   = 40002 // model 1 header
	regDeviceAddress = 40068
	regMeterModel    = 40069 // model 213 header
	regLiveBase      = 40071 // first live register of the meter block
	regLiveEnd       = 40194 // last register of the 124-word meter block
	regEndModel      = 40195 // 0xFFFF end-of-map marker

	commonModelID     = 1
	commonModelLength = 65
	meterModelID      = 213 // three-phase wye float meter
	meterModelLength  = 124
	deviceAddress     = 240

	manufacturer = "Fronius"
	model        = "Smart Meter 63A"
	serialNumber = "00000001"
)

type liveRegister struct {
	addr uint16
	get  func(LiveValues) float32
}

// liveRegisters maps model 213 float fields to their base address. Each
// value spans two registers, high word first.
var liveRegisters = []liveRegister{
	{40071, func(v LiveValues) float32 { return v.NetCurrentA }},
	{40073, func(v LiveValues) float32 { return v.CurrentA }},
	{40075, func(v LiveValues) float32 { return v.CurrentB }},
	{40077, func(v LiveValues) float32 { return v.CurrentC }},
	{40079, func(v LiveValues) float32 { return v.VoltageLNAvg }},
	{40081, func(v LiveValues) float32 { return v.VoltageAN }},
	{40083, func(v LiveValues) float32 { return v.VoltageBN }},
	{40085, func(v LiveValues) float32 { return v.VoltageCN }},
	{40087, func(v LiveValues) float32 { return v.VoltageLLAvg }},
	{40089, func(v LiveValues) float32 { return v.VoltageAB }},
	{40091, func(v LiveValues) float32 { return v.VoltageBC }},
	{40093, func(v LiveValues) float32 { return v.VoltageCA }},
	{40095, func(v LiveValues) float32 { return v.FrequencyHz }},
	{40097, func(v LiveValues) float32 { return v.TotalPowerW }},
	{40099, func(v LiveValues) float32 { return v.PowerAW }},
	{40101, func(v LiveValues) float32 { return v.PowerBW }},
	{40103, func(v LiveValues) float32 { return v.PowerCW }},
	{40105, func(v LiveValues) float32 { return v.ApparentVA }},
	{40107, func(v LiveValues) float32 { return v.ApparentAVA }},
	{40109, func(v LiveValues) float32 { return v.ApparentBVA }},
	{40111, func(v LiveValues) float32 { return v.ApparentCVA }},
	{40113, func(v LiveValues) float32 { return v.ReactiveVAR }},
	{40115, func(v LiveValues) float32 { return v.ReactiveAVAR }},
	{40117, func(v LiveValues) float32 { return v.ReactiveBVAR }},
	{40119, func(v LiveValues) float32 { return v.ReactiveCVAR }},
	{40121, func(v LiveValues) float32 { return v.PowerFactor }},
	{40123, func(v LiveValues) float32 { return v.PowerFactorA }},
	{40125, func(v LiveValues) float32 { return v.PowerFactorB }},
	{40127, func(v LiveValues) float32 { return v.PowerFactorC }},
	{40129, func(v LiveValues) float32 { return v.ExportedWh }},
	{40131, func(v LiveValues) float32 { return v.ExportedAWh }},
	{40133, func(v LiveValues) float32 { return v.ExportedBWh }},
	{40135, func(v LiveValues) float32 { return v.ExportedCWh }},
	{40137, func(v LiveValues) float32 { return v.ImportedWh }},
	{40139, func(v LiveValues) float32 { return v.ImportedAWh }},
	{40141, func(v LiveValues) float32 { return v.ImportedBWh }},
	{40143, func(v LiveValues) float32 { return v.ImportedCWh }},
}

// probeRegisters are addresses Fronius firmware pokes while deciding
// what kind of device it is talking to. Answering zero marks the device
// as a plain SunSpec meter; not answering gets it flagged unreachable.
var probeRegisters = map[uint16]uint16{
	0:     commonModelID,
	1:     0,
	11:    0,
	12:    0,
	768:   0,
	1706:  0,
	50000: 0,
	50001: 0,
}

// constRegisters is the full static portion of the map, built once.
var constRegisters = buildConstRegisters()

func buildConstRegisters() map[uint16]uint16 {
	regs := make(map[uint16]uint16)

	// SunSpec marker "SunS"
	regs[regSunSpecMarker] = 0x5375
	regs[regSunSpecMarker+1] = 0x6e53

	// Common model header + body. Strings are served one ASCII char per
	// register, the way the real 63A answers.
	regs[regCommonModel] = commonModelID
	regs[regCommonModel+1] = commonModelLength
	putString(regs, 40004, manufacturer, 16)
	putString(regs, 40020, model, 32)
	putString(regs, 40052, serialNumber, 16)
	regs[regDeviceAddress] = deviceAddress

	// Meter model header.
	regs[regMeterModel] = meterModelID
	regs[regMeterModel+1] = meterModelLength

	// End-of-map model.
	regs[regEndModel] = 0xffff
	regs[regEndModel+1] = 0

	for addr, v := range probeRegisters {
		regs[addr] = v
	}
	return regs
}

func putString(regs map[uint16]uint16, base uint16, s string, width uint16) {
	for i := uint16(0); i < width; i++ {
		if int(i) < len(s) {
			regs[base+i] = uint16(s[i])
		} else {
			regs[base+i] = 0
		}
	}
}
