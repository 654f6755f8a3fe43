package mqtt

import (
	"testing"

	"shelly2fronius/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {

	assert := assert.New(t)

	client := &MQTTClient{cfg: config.MQTTConfig{BaseTopic: "loremTopic"}}

	assert.Equal("loremTopic/bridge/state", client.BridgeStateTopic(), "bridge state topic")
	assert.Equal("loremTopic/sensor/grid_power_flow/state", client.SensorStateTopic("grid_power_flow"), "sensor topic")
	assert.Equal("loremTopic/binary_sensor/bias_active/state", client.BinarySensorStateTopic("bias_active"), "binary sensor topic")
}

func TestOptsFromConfig(t *testing.T) {

	assert := assert.New(t)

	cfg := config.Config{
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "loremTopic",
		},
	}

	opts := OptsFromConfig(&cfg)

	assert.True(opts.WillEnabled, "LWT enabled")
	assert.Equal("loremTopic/bridge/state", opts.WillTopic, "LWT topic")
	assert.Equal(MQTT_PAYLOAD_OFFLINE, string(opts.WillPayload), "LWT payload")
	assert.True(opts.WillRetained, "LWT retained")
}
