package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"shelly2fronius/internal/core/domain"
	"shelly2fronius/internal/core/meterstate"
	"shelly2fronius/internal/util"
	"shelly2fronius/pkg/shelly3em"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type flakyBiasFetcher struct {
	export    float64
	importErr error
}

func (f flakyBiasFetcher) NumericState(ctx context.Context, entityID string) (float64, error) {
	if entityID == "input_number.virtual_import" {
		if f.importErr != nil {
			return 0, f.importErr
		}
		return 0, nil
	}
	return f.export, nil
}

func testGridReading(netPower float32) *shelly3em.GridReading {
	reader := &shelly3em.TestSourceMeterReader{NetPower: netPower}
	reading, _ := reader.GetReading()
	return reading
}

func TestBiasActorFeedsStore(t *testing.T) {

	assert := assert.New(t)

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.HomeAssistant.PollIntervalMillis = 200
	logger := zap.Must(zap.NewDevelopment())

	store := meterstate.NewStore(meterstate.Policy{})
	store.UpdateGrid(testGridReading(-1500))

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewBiasActor(&cfg, stubBiasFetcher{export: 1000, imp: 0}, store, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	merged := store.Snapshot()
	assert.True(merged.BiasActive, "bias active")
	assert.InDelta(-500, merged.NetPowerWatt, 0.5, "biased net power")

	context.Stop(pid)

	as.Shutdown()
}

func TestBiasActorSurvivesPartialFailure(t *testing.T) {

	assert := assert.New(t)

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.HomeAssistant.PollIntervalMillis = 200
	logger := zap.Must(zap.NewDevelopment())

	store := meterstate.NewStore(meterstate.Policy{})
	store.UpdateGrid(testGridReading(-1500))

	fetcher := flakyBiasFetcher{export: 750, importErr: errors.New("entity unavailable")}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewBiasActor(&cfg, fetcher, store, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	merged := store.Snapshot()
	assert.True(merged.BiasActive, "export side applied")
	assert.InDelta(-750, merged.NetPowerWatt, 0.5, "only export side shifts")

	context.Stop(pid)

	as.Shutdown()
}

func TestBiasActorDisabledWithoutEntities(t *testing.T) {

	assert := assert.New(t)

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.HomeAssistant.BaseUrl = ""
	logger := zap.Must(zap.NewDevelopment())

	store := meterstate.NewStore(meterstate.Policy{})
	store.UpdateGrid(testGridReading(-1500))

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewBiasActor(&cfg, stubBiasFetcher{}, store, logger)
	})
	pid := context.Spawn(props)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	health := res.(domain.ActorHealthResponse)
	assert.True(health.Healthy, "disabled actor is healthy")
	assert.Equal("disabled", health.State, "disabled state")

	time.Sleep(500 * time.Millisecond)

	merged := store.Snapshot()
	assert.False(merged.BiasActive, "no bias applied")
	assert.InDelta(-1500, merged.NetPowerWatt, 0.5, "raw net power")

	context.Stop(pid)

	as.Shutdown()
}
