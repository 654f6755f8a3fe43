// Package meterstate holds the shared model of what the emulated meter
// currently reports, and the merge that derives it from the physical
// meter reading and the virtual bias values.
package meterstate

import (
	"time"

	"shelly2fronius/pkg/shelly3em"
	"shelly2fronius/pkg/sunspec"
)

// Policy fixes the staleness windows. A zero window disables the check
// for that input.
type Policy struct {
	GridStaleness time.Duration
	BiasStaleness time.Duration
}

// BiasReading carries the two virtual power shifts. Each side keeps its
// own timestamp so one entity failing does not invalidate the other.
type BiasReading struct {
	VirtualExportWatt float32
	VirtualImportWatt float32
	ExportUpdatedAt   time.Time
	ImportUpdatedAt   time.Time
}

// MergedReading is the authoritative derived state served to the
// inverter. Sign convention: positive = import, negative = export.
type MergedReading struct {
	NetPowerWatt    float32
	NetCurrentAmp   float32
	PhasePowerWatt  [3]float32
	PhaseCurrentAmp [3]float32
	PhaseVoltage    [3]float32
	PhaseApparentVA [3]float32
	PhasePF         [3]float32
	VoltageLNAvg    float32
	ApparentVA      float32
	FrequencyHz     float32
	ImportedWh      float32
	ExportedWh      float32

	// NotReady is set until the first successful meter poll. The server
	// answers dynamic registers with zeros while it holds.
	NotReady bool
	// GridStale marks that the grid reading is older than the policy
	// window. The last values are still served.
	GridStale bool
	// BiasActive marks that at least one fresh bias side shifted the
	// net power.
	BiasActive bool

	ComputedAt time.Time
}

// effectiveBias applies the per-side staleness policy. A side that was
// never read or has expired contributes zero shift.
func effectiveBias(bias BiasReading, pol Policy, now time.Time) (export, imp float32) {
	if !bias.ExportUpdatedAt.IsZero() &&
		(pol.BiasStaleness == 0 || now.Sub(bias.ExportUpdatedAt) <= pol.BiasStaleness) {
		export = bias.VirtualExportWatt
	}
	if !bias.ImportUpdatedAt.IsZero() &&
		(pol.BiasStaleness == 0 || now.Sub(bias.ImportUpdatedAt) <= pol.BiasStaleness) {
		imp = bias.VirtualImportWatt
	}
	return export, imp
}

// Merge derives the reported state from the latest inputs. It is pure:
// same inputs and clock, same output. Virtual export reduces apparent
// export, virtual import increases it.
func Merge(grid *shelly3em.GridReading, bias BiasReading, pol Policy, now time.Time) MergedReading {
	if grid == nil {
		// Bias alone never fabricates a reading.
		return MergedReading{NotReady: true, ComputedAt: now}
	}

	export, imp := effectiveBias(bias, pol, now)

	merged := MergedReading{
		NetPowerWatt: grid.NetPowerWatt + export - imp,
		FrequencyHz:  grid.FrequencyHz,
		ImportedWh:   grid.TotalEnergyImportedWh,
		ExportedWh:   grid.TotalEnergyExportedWh,
		BiasActive:   export != 0 || imp != 0,
		ComputedAt:   now,
	}
	if pol.GridStaleness > 0 && now.Sub(grid.CapturedAt) > pol.GridStaleness {
		merged.GridStale = true
	}

	// Apportion the shifted net power across phases following the raw
	// per-phase split. With no raw power the shift lands evenly.
	var ratio float32
	if grid.NetPowerWatt != 0 {
		ratio = merged.NetPowerWatt / grid.NetPowerWatt
	}
	var voltageSum float32
	for i, phase := range grid.Phases {
		merged.PhaseVoltage[i] = phase.VoltageVolt
		merged.PhasePF[i] = phase.PowerFactor
		voltageSum += phase.VoltageVolt
		if grid.NetPowerWatt != 0 {
			merged.PhasePowerWatt[i] = phase.PowerWatt * ratio
			merged.PhaseCurrentAmp[i] = phase.CurrentAmp * abs(ratio)
			merged.PhaseApparentVA[i] = phase.ApparentVA * abs(ratio)
		} else {
			merged.PhasePowerWatt[i] = merged.NetPowerWatt / 3
			merged.PhaseCurrentAmp[i] = phase.CurrentAmp
			merged.PhaseApparentVA[i] = phase.ApparentVA
		}
		merged.NetCurrentAmp += merged.PhaseCurrentAmp[i]
		merged.ApparentVA += merged.PhaseApparentVA[i]
	}
	merged.VoltageLNAvg = voltageSum / 3

	return merged
}

// LiveValues projects the merged state into the emulated register
// fields. A not-ready state projects to all zeros, discovery registers
// are unaffected either way.
func (m MergedReading) LiveValues() sunspec.LiveValues {
	if m.NotReady {
		return sunspec.LiveValues{}
	}
	return sunspec.LiveValues{
		NetCurrentA:  m.NetCurrentAmp,
		CurrentA:     m.PhaseCurrentAmp[0],
		CurrentB:     m.PhaseCurrentAmp[1],
		CurrentC:     m.PhaseCurrentAmp[2],
		VoltageLNAvg: m.VoltageLNAvg,
		VoltageAN:    m.PhaseVoltage[0],
		VoltageBN:    m.PhaseVoltage[1],
		VoltageCN:    m.PhaseVoltage[2],
		FrequencyHz:  m.FrequencyHz,
		TotalPowerW:  m.NetPowerWatt,
		PowerAW:      m.PhasePowerWatt[0],
		PowerBW:      m.PhasePowerWatt[1],
		PowerCW:      m.PhasePowerWatt[2],
		ApparentVA:   m.ApparentVA,
		ApparentAVA:  m.PhaseApparentVA[0],
		ApparentBVA:  m.PhaseApparentVA[1],
		ApparentCVA:  m.PhaseApparentVA[2],
		PowerFactor:  m.PhasePF[0],
		PowerFactorA: m.PhasePF[0],
		PowerFactorB: m.PhasePF[1],
		PowerFactorC: m.PhasePF[2],
		ExportedWh:   m.ExportedWh,
		ImportedWh:   m.ImportedWh,
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
