package shelly3em

import (
	"fmt"
	"math"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Shelly EM component registers. Floats take two input registers,
// low word first.
const (
	regTotalCurrent    = 1011
	regTotalPower      = 1013
	regTotalApparent   = 1015
	regPhaseBase       = 1020 // phase A block, B and C follow
	regPhaseStride     = 20
	regEnergyImported  = 1162
	regEnergyExported  = 1164
	phaseOffsetVoltage = 0
	phaseOffsetCurrent = 2
	phaseOffsetPower   = 4
	phaseOffsetVA      = 6
	phaseOffsetPF      = 8
	phaseOffsetFreq    = 10
)

type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func (reader ModbusClient) readRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	defer RecordTimer("ReadRegisters", reader.instrument)()
	return reader.client.ReadRegisters(addr, quantity, modbus.INPUT_REGISTER)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus read", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}

type Shelly3EMReader struct {
	ModbusClient
}

func CreateShelly3EMReader(ip string, port uint, unitID uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation *ModbusInstrument) (SourceMeterReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	// instrumentation
	var inst []ModbusInstrument
	logInst := traceLoggerInstrumentation(logger.With(zap.String("target", "sourceMeter")).With(zap.Uint8("unit", unitID)))
	if logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	err = client.SetUnitId(unitID)
	if err != nil {
		return nil, err
	}
	reader := Shelly3EMReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
	}
	return &reader, nil
}

func (reader *Shelly3EMReader) Open() error {
	return reader.client.Open()
}

func (reader Shelly3EMReader) Close() error {
	return reader.client.Close()
}

func (reader Shelly3EMReader) GetNetPowerWatt() (float32, error) {
	regs, err := reader.readRegisters(regTotalPower, 2)
	if err != nil {
		return 0, err
	}
	return mergeU16F32(regs[0], regs[1]), nil
}

func (reader Shelly3EMReader) GetReading() (*GridReading, error) {
	// The Shelly samples at 1 Hz, one batch per block keeps the read
	// cycle well under that.
	totals, err := reader.readRegisters(regTotalCurrent, 6)
	if err != nil {
		return nil, err
	}
	out := GridReading{
		NetCurrentAmp: mergeU16F32(totals[0], totals[1]),
		NetPowerWatt:  mergeU16F32(totals[2], totals[3]),
		ApparentVA:    mergeU16F32(totals[4], totals[5]),
		CapturedAt:    time.Now(),
	}
	for phase := 0; phase < 3; phase++ {
		base := uint16(regPhaseBase + phase*regPhaseStride)
		regs, err := reader.readRegisters(base, 12)
		if err != nil {
			return nil, err
		}
		out.Phases[phase] = PhaseReading{
			VoltageVolt: mergeU16F32(regs[phaseOffsetVoltage], regs[phaseOffsetVoltage+1]),
			CurrentAmp:  mergeU16F32(regs[phaseOffsetCurrent], regs[phaseOffsetCurrent+1]),
			PowerWatt:   mergeU16F32(regs[phaseOffsetPower], regs[phaseOffsetPower+1]),
			ApparentVA:  mergeU16F32(regs[phaseOffsetVA], regs[phaseOffsetVA+1]),
			PowerFactor: mergeU16F32(regs[phaseOffsetPF], regs[phaseOffsetPF+1]),
		}
		if phase == 0 {
			out.FrequencyHz = mergeU16F32(regs[phaseOffsetFreq], regs[phaseOffsetFreq+1])
		}
	}
	energy, err := reader.readRegisters(regEnergyImported, 4)
	if err != nil {
		return nil, err
	}
	out.TotalEnergyImportedWh = mergeU16F32(energy[0], energy[1])
	out.TotalEnergyExportedWh = mergeU16F32(energy[2], energy[3])
	return &out, nil
}

// mergeU16F32 combines a register pair into a float32, low word first.
func mergeU16F32(low uint16, high uint16) float32 {
	return math.Float32frombits(uint32(low) | uint32(high)<<16)
}
