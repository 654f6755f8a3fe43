package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "shelly2fronius/internal/adapter/actor"
	"shelly2fronius/internal/config"
	"shelly2fronius/internal/core/domain"
	"shelly2fronius/internal/core/meterstate"
	. "shelly2fronius/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type SourceMeterActorProvider func() *adactor.SourceMeterActor

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type BiasFetcherProvider func() BiasFetcher

// MasterActor owns the actor tree: the source meter adapter, the grid
// poller, the bias poller and the MQTT publisher.
type MasterActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	store              *meterstate.Store

	sourceMeterActor *actor.PID
	gridPollActor    *actor.PID
	biasActor        *actor.PID
	mqttActor        *actor.PID

	sourceMeterActorProvider SourceMeterActorProvider
	mqttActorProvider        MQTTActorProvider
	biasFetcherProvider      BiasFetcherProvider
	logger                   *zap.Logger
}

type healthCheckResult struct {
	sourceMeterActorHealthy bool
	gridPollActorHealthy    bool
	biasActorHealthy        bool
	mqttActorHealthy        bool
	checksReceived          int
	respondTo               *actor.PID
}

func NewMasterActor(config config.Config, store *meterstate.Store, sourceMeterActorProvider SourceMeterActorProvider,
	biasFetcherProvider BiasFetcherProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		config:                   config,
		behavior:                 actor.NewBehavior(),
		stash:                    &Stash{},
		logger:                   ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:              &eventstream.EventStream{},
		store:                    store,
		sourceMeterActorProvider: sourceMeterActorProvider,
		biasFetcherProvider:      biasFetcherProvider,
		mqttActorProvider:        mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start source meter child
		sourceMeterPID, err := state.startSourceMeterActor(ctx)
		if err != nil {
			panic(err)
		}
		state.sourceMeterActor = sourceMeterPID

		// start MQTT child
		mqttPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttPID

		// start grid poll child
		gridPollPID, err := state.startGridPollActor(ctx)
		if err != nil {
			panic(err)
		}
		state.gridPollActor = gridPollPID

		// start bias child
		biasPID, err := state.startBiasActor(ctx)
		if err != nil {
			panic(err)
		}
		state.biasActor = biasPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		// SourceMeter Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.sourceMeterActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_SOURCEMETER,
				Healthy: false,
			}
		})
		// GridPoll Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.gridPollActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_GRIDPOLL,
				Healthy: false,
			}
		})
		// Bias Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.biasActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_BIAS,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case *actor.Terminated:
		// if the meter adapter fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_SOURCEMETER) {
			state.logger.Error("master@default source meter error")
			panic(errors.New("source meter terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// a silent child counts as unhealthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_SOURCEMETER:
				state.currentHealthCheck.sourceMeterActorHealthy = true
			case domain.ACTOR_ID_GRIDPOLL:
				state.currentHealthCheck.gridPollActorHealthy = true
			case domain.ACTOR_ID_BIAS:
				state.currentHealthCheck.biasActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) startSourceMeterActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return state.sourceMeterActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_SOURCEMETER)
}

func (state *MasterActor) startGridPollActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewAllForOneStrategy(1, 10*time.Second, decider)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewGridPollActor(&state.config, state.sourceMeterActor, state.store, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_GRIDPOLL)
}

func (state *MasterActor) startBiasActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewBiasActor(&state.config, state.biasFetcherProvider(), state.store, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_BIAS)
}

func (state *MasterActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_MQTT)
}

func (state *healthCheckResult) reset() {
	state.sourceMeterActorHealthy = false
	state.gridPollActorHealthy = false
	state.biasActorHealthy = false
	state.mqttActorHealthy = false
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 4
}

func (state *healthCheckResult) allHealthy() bool {
	return state.sourceMeterActorHealthy && state.gridPollActorHealthy &&
		state.biasActorHealthy && state.mqttActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
