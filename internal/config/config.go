package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel      zapcore.Level
	SourceMeter   SourceMeterConfig   `mapstructure:"source_meter"`
	Emulator      EmulatorConfig      `mapstructure:"emulator"`
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
	MQTT          MQTTConfig          `mapstructure:"mqtt"`

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`
}

// SourceMeterConfig points at the physical meter.
type SourceMeterConfig struct {
	Host               string
	Port               uint
	UnitId             uint   `mapstructure:"unit_id"`
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	StalenessMillis    uint32 `mapstructure:"staleness_millis"`
}

// EmulatorConfig is the inbound Modbus-TCP surface served to the
// inverter.
type EmulatorConfig struct {
	Port   uint
	UnitId uint `mapstructure:"unit_id"`
}

// HomeAssistantConfig configures the bias poller. Empty entity ids
// disable the corresponding bias side.
type HomeAssistantConfig struct {
	BaseUrl            string `mapstructure:"base_url"`
	Token              string
	ExportEntity       string `mapstructure:"export_entity"`
	ImportEntity       string `mapstructure:"import_entity"`
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	StalenessMillis    uint32 `mapstructure:"staleness_millis"`
	SmoothWindow       uint   `mapstructure:"smooth_window"`
}

type MQTTConfig struct {
	Enable    bool
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string `mapstructure:"base_topic"`
}

func (c HomeAssistantConfig) Enabled() bool {
	return c.BaseUrl != "" && (c.ExportEntity != "" || c.ImportEntity != "")
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
