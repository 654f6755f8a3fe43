package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckMQTTTopic(t *testing.T) {

	assert := assert.New(t)

	topic, err := CheckMQTTTopic("Shelly2Fronius")
	assert.NoError(err)
	assert.Equal("shelly2fronius", topic, "lowercased")

	_, err = CheckMQTTTopic("bad/topic")
	assert.Error(err, "slashes rejected")

	_, err = CheckMQTTTopic("")
	assert.Error(err, "empty rejected")
}

func TestHomeAssistantEnabled(t *testing.T) {

	assert := assert.New(t)

	assert.False(HomeAssistantConfig{}.Enabled(), "empty config disabled")
	assert.False(HomeAssistantConfig{BaseUrl: "http://localhost:8123"}.Enabled(), "no entities disabled")
	assert.True(HomeAssistantConfig{
		BaseUrl:      "http://localhost:8123",
		ExportEntity: "input_number.virtual_export",
	}.Enabled(), "one entity enables")
}
