package actor

import (
	"fmt"
	"time"

	"shelly2fronius/internal/config"
	"shelly2fronius/internal/core/domain"
	"shelly2fronius/internal/core/meterstate"
	"shelly2fronius/internal/events"
	. "shelly2fronius/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// consecutive poll failures before asking the meter actor to reconnect
const gridPollFailureThreshold = 3

// GridPollActor drives the source meter on a timer and feeds readings
// into the shared meter state.
type GridPollActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	sourceMeterActor *actor.PID
	config           *config.Config
	store            *meterstate.Store
	eventStream      *eventstream.EventStream
	failureCount     uint

	logger *zap.Logger
}

type gridPollTick struct {
}

func NewGridPollActor(config *config.Config, sourceMeterActor *actor.PID, store *meterstate.Store,
	eventStream *eventstream.EventStream, logger *zap.Logger) *GridPollActor {
	act := &GridPollActor{
		config:           config,
		sourceMeterActor: sourceMeterActor,
		store:            store,
		eventStream:      eventStream,
		behavior:         actor.NewBehavior(),
		stash:            &Stash{},
		logger:           ActorLogger(domain.ACTOR_ID_GRIDPOLL, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *GridPollActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *GridPollActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("gridpoll@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), gridPollTick{})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("gridpoll@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *GridPollActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("gridpoll@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_GRIDPOLL,
			Healthy: true,
			State:   "idle",
		})
	case gridPollTick:
		state.logger.Debug("gridpoll@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.sourceMeterActor, domain.GetGridReadingRequest{}, 3*time.Second), func(err error) any {
			return domain.GetGridReadingResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})

		// schedule next tick
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), gridPollTick{})
		state.behavior.BecomeStacked(state.WaitingReadingReceive)
	default:
		state.logger.Debug("gridpoll@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *GridPollActor) WaitingReadingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetGridReadingResponse:
		if msg.HasResponseError() {
			state.logger.Error("gridpoll@waiting GetGridReadingResponse error", zap.Error(msg.GetResponseError()))
			state.failureCount++
			if state.failureCount >= gridPollFailureThreshold {
				state.failureCount = 0
				ctx.Send(state.sourceMeterActor, domain.ReconnectRequest{})
			}
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("gridpoll@waiting GetGridReadingResponse")
		state.failureCount = 0
		if msg.Reading != nil {
			merged := state.store.UpdateGrid(msg.Reading)
			for _, ev := range events.MergedReadingToUpdateEvents(merged, msg.Reading.NetPowerWatt) {
				state.eventStream.Publish(ev)
			}
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("gridpoll@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *GridPollActor) pollInterval() time.Duration {
	millis := state.config.SourceMeter.PollIntervalMillis
	if millis == 0 {
		millis = 1000
	}
	return time.Duration(millis) * time.Millisecond
}
