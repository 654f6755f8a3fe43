// Package events maps merged meter state onto sensor update events for
// the telemetry stream.
package events

import (
	"shelly2fronius/internal/core/domain"
	"shelly2fronius/internal/core/meterstate"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE          = "bridge"
	SENSOR_ID_BRIDGE_VERSION        = "bridge_version"
	SENSOR_ID_GRID_POWER_FLOW       = "grid_power_flow"
	SENSOR_ID_REPORTED_POWER_FLOW   = "reported_power_flow"
	SENSOR_ID_GRID_FREQUENCY        = "grid_frequency"
	SENSOR_ID_GRID_VOLTAGE          = "grid_voltage"
	SENSOR_ID_TOTAL_ENERGY_IMPORTED = "total_energy_imported"
	SENSOR_ID_TOTAL_ENERGY_EXPORTED = "total_energy_exported"
	SENSOR_ID_BIAS_ACTIVE           = "bias_active"
	SENSOR_ID_GRID_STALE            = "grid_stale"
)

// MergedReadingToUpdateEvents flattens one merged reading into the
// sensor updates worth publishing. A not-ready reading produces none.
func MergedReadingToUpdateEvents(m meterstate.MergedReading, rawNetPowerWatt float32) []domain.SensorUpdateEvent {
	if m.NotReady {
		return nil
	}
	return []domain.SensorUpdateEvent{
		domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: SENSOR_ID_GRID_POWER_FLOW},
			Value:                  float64(rawNetPowerWatt),
			Decimals:               1,
		},
		domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: SENSOR_ID_REPORTED_POWER_FLOW},
			Value:                  float64(m.NetPowerWatt),
			Decimals:               1,
		},
		domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: SENSOR_ID_GRID_FREQUENCY},
			Value:                  float64(m.FrequencyHz),
			Decimals:               2,
		},
		domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: SENSOR_ID_GRID_VOLTAGE},
			Value:                  float64(m.VoltageLNAvg),
			Decimals:               1,
		},
		domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: SENSOR_ID_TOTAL_ENERGY_IMPORTED},
			Value:                  float64(m.ImportedWh) / 1000,
			Decimals:               3,
		},
		domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: SENSOR_ID_TOTAL_ENERGY_EXPORTED},
			Value:                  float64(m.ExportedWh) / 1000,
			Decimals:               3,
		},
		domain.BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: SENSOR_ID_BIAS_ACTIVE},
			Value:                  m.BiasActive,
		},
		domain.BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: SENSOR_ID_GRID_STALE},
			Value:                  m.GridStale,
		},
	}
}

// BridgeStartupEvents describes the bridge itself, published once after
// the MQTT connection comes up.
func BridgeStartupEvents() []domain.SensorUpdateEvent {
	return []domain.SensorUpdateEvent{
		domain.BridgeStateUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: SENSOR_ID_BRIDGE_STATE},
			Value:                  true,
		},
		domain.TextSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: SENSOR_ID_BRIDGE_VERSION},
			Value:                  versioninfo.Short(),
		},
	}
}
