package domain

import "shelly2fronius/pkg/shelly3em"

const (
	ACTOR_ID_MASTER      = "master"
	ACTOR_ID_SOURCEMETER = "sourcemeter"
	ACTOR_ID_GRIDPOLL    = "gridpoll"
	ACTOR_ID_BIAS        = "bias"
	ACTOR_ID_MQTT        = "mqtt"
)

type GetGridReadingRequest struct {
	ActorRequestMixIn
}

type GetGridReadingResponse struct {
	ActorResponseMixIn
	Reading *shelly3em.GridReading
}

type GetNetPowerRequest struct {
	ActorRequestMixIn
}

type GetNetPowerResponse struct {
	ActorResponseMixIn
	NetPowerWatt float32
}

// ReconnectRequest asks the source meter actor to drop and reopen its
// Modbus connection.
type ReconnectRequest struct {
	ActorRequestMixIn
}

type ReconnectResponse struct {
	ActorResponseMixIn
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
