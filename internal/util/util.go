package util

import (
	"shelly2fronius/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		SourceMeter: config.SourceMeterConfig{
			Host:               "-.-.-.-",
			Port:               502,
			UnitId:             1,
			PollIntervalMillis: 1000,
			StalenessMillis:    5000,
		},
		Emulator: config.EmulatorConfig{
			Port:   5502,
			UnitId: 240,
		},
		HomeAssistant: config.HomeAssistantConfig{
			BaseUrl:            "http://localhost:8123",
			Token:              "test",
			ExportEntity:       "input_number.virtual_export",
			ImportEntity:       "input_number.virtual_import",
			PollIntervalMillis: 1000,
			StalenessMillis:    10000,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "shelly2fronius",
		},
		Port: 8080,
	}
}
