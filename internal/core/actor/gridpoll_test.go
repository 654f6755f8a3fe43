package actor

import (
	"sync"
	"testing"
	"time"

	adactor "shelly2fronius/internal/adapter/actor"
	"shelly2fronius/internal/core/domain"
	"shelly2fronius/internal/core/meterstate"
	"shelly2fronius/internal/util"
	"shelly2fronius/pkg/shelly3em"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGridPollActorFeedsStore(t *testing.T) {

	assert := assert.New(t)

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	store := meterstate.NewStore(meterstate.Policy{})
	es := &eventstream.EventStream{}

	var mu sync.Mutex
	var published []domain.SensorUpdateEvent
	sub := es.Subscribe(func(evt interface{}) {
		if ev, ok := evt.(domain.SensorUpdateEvent); ok {
			mu.Lock()
			published = append(published, ev)
			mu.Unlock()
		}
	})
	defer es.Unsubscribe(sub)

	smProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewSourceMeterActor(&shelly3em.TestSourceMeterReader{NetPower: -1500}, logger)
	})
	smPID := context.Spawn(smProps)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewGridPollActor(&cfg, smPID, store, es, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(2500 * time.Millisecond)

	merged := store.Snapshot()
	assert.False(merged.NotReady, "store fed")
	assert.InDelta(-1500, merged.NetPowerWatt, 0.5, "net power without bias")
	assert.Equal(float32(50), merged.FrequencyHz, "frequency")

	mu.Lock()
	assert.NotEmpty(published, "sensor updates published")
	mu.Unlock()

	context.Stop(pid)
	context.Stop(smPID)

	as.Shutdown()
}

func TestGridPollActorRequestsReconnectAfterFailures(t *testing.T) {

	anError := assert.AnError
	assert := assert.New(t)

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.SourceMeter.PollIntervalMillis = 200
	logger := zap.Must(zap.NewDevelopment())

	store := meterstate.NewStore(meterstate.Policy{})
	es := &eventstream.EventStream{}

	reader := &shelly3em.TestSourceMeterReader{NetPower: -1500, ReadErr: anError}

	smProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewSourceMeterActor(reader, logger)
	})
	smPID := context.Spawn(smProps)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewGridPollActor(&cfg, smPID, store, es, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1500 * time.Millisecond)

	// a reconnect reopens the reader
	assert.GreaterOrEqual(reader.OpenCalls, 2, "reconnect issued")
	assert.True(store.Snapshot().NotReady, "store untouched on failures")

	context.Stop(pid)
	context.Stop(smPID)

	as.Shutdown()
}
