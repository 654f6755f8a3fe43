// Package shelly3em reads a Shelly Pro 3EM energy meter over Modbus-TCP.
//
// Register layout is documented at
// https://shelly-api-docs.shelly.cloud/gen2/ComponentsAndServices/EM/#modbus-registers
package shelly3em

import "time"

type PhaseReading struct {
	VoltageVolt float32
	CurrentAmp  float32
	PowerWatt   float32
	ApparentVA  float32
	PowerFactor float32
}

type GridReading struct {
	// Net AC power flow. Positive = import. Negative = export
	NetPowerWatt float32
	// Sum of the three phase currents
	NetCurrentAmp float32
	// Total apparent power
	ApparentVA float32
	// Grid frequency as measured on phase A
	FrequencyHz float32
	// Per-phase measurements, index 0 = A
	Phases [3]PhaseReading
	// Lifetime energy counters in Wh
	TotalEnergyImportedWh float32
	TotalEnergyExportedWh float32
	// Local time the registers were read
	CapturedAt time.Time
}

// SourceMeterReader is the physical meter the bridge polls.
type SourceMeterReader interface {
	Open() error
	Close() error
	// GetNetPowerWatt reads only the total active power register pair.
	GetNetPowerWatt() (float32, error)
	// GetReading reads the full measurement set.
	GetReading() (*GridReading, error)
}
