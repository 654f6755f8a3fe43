package actor

import (
	"context"
	"fmt"
	"time"

	"shelly2fronius/internal/config"
	"shelly2fronius/internal/core/domain"
	"shelly2fronius/internal/core/meterstate"
	. "shelly2fronius/internal/util/actorutil"
	"shelly2fronius/internal/util/rollavg"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// BiasFetcher reads numeric entity states from the home-automation API.
type BiasFetcher interface {
	NumericState(ctx context.Context, entityID string) (float64, error)
}

// BiasActor polls the two virtual power entities and feeds them into
// the shared meter state. Each side fails independently: the other
// keeps its last value until the staleness window expires.
type BiasActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	config     *config.Config
	fetcher    BiasFetcher
	store      *meterstate.Store
	exportAvg  *rollavg.Average
	importAvg  *rollavg.Average
	actorState string

	logger *zap.Logger
}

type biasTick struct {
}

// biasFetchOutcome carries one poll round. A nil side means that fetch
// failed and the previous value stands.
type biasFetchOutcome struct {
	exportWatt *float32
	importWatt *float32
	fetchedAt  time.Time
}

func NewBiasActor(config *config.Config, fetcher BiasFetcher, store *meterstate.Store, logger *zap.Logger) *BiasActor {
	act := &BiasActor{
		config:     config,
		fetcher:    fetcher,
		store:      store,
		behavior:   actor.NewBehavior(),
		stash:      &Stash{},
		actorState: "starting",
		logger:     ActorLogger(domain.ACTOR_ID_BIAS, logger),
	}
	if window := config.HomeAssistant.SmoothWindow; window > 0 {
		act.exportAvg = rollavg.New(int(window))
		act.importAvg = rollavg.New(int(window))
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *BiasActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *BiasActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("bias@starting started")

		if !state.config.HomeAssistant.Enabled() {
			// no entities configured: zero bias forever
			state.logger.Info("bias disabled, no entities configured")
			state.actorState = "disabled"
			state.behavior.Become(state.DefaultReceive)
			state.stash.UnstashAll(ctx)
			return
		}

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), biasTick{})
		state.actorState = "idle"
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("bias@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *BiasActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("bias@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_BIAS,
			Healthy: true,
			State:   state.actorState,
		})
	case biasTick:
		state.logger.Debug("bias@default tick")

		NewBackgroundTask(ctx, state.fetchBias).
			Recover(func(err error) biasFetchOutcome {
				return biasFetchOutcome{fetchedAt: time.Now()}
			}).
			WithTimeout(3 * time.Second).
			PipeTo(ctx.Self())

		// schedule next tick; a failed round waits for it instead of
		// retrying immediately
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), biasTick{})
		state.behavior.BecomeStacked(state.WaitingFetchReceive)
	default:
		state.logger.Debug("bias@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *BiasActor) WaitingFetchReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case biasFetchOutcome:
		state.logger.Debug("bias@waiting biasFetchOutcome")
		if msg.exportWatt != nil {
			value := *msg.exportWatt
			if state.exportAvg != nil {
				value = state.exportAvg.Add(value)
			}
			state.store.UpdateBiasExport(value, msg.fetchedAt)
		}
		if msg.importWatt != nil {
			value := *msg.importWatt
			if state.importAvg != nil {
				value = state.importAvg.Add(value)
			}
			state.store.UpdateBiasImport(value, msg.fetchedAt)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("bias@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// fetchBias reads both entities. One side failing never blocks the
// other.
func (state *BiasActor) fetchBias() (*biasFetchOutcome, error) {
	outcome := biasFetchOutcome{fetchedAt: time.Now()}
	reqCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if entity := state.config.HomeAssistant.ExportEntity; entity != "" {
		value, err := state.fetcher.NumericState(reqCtx, entity)
		if err != nil {
			state.logger.Warn("bias export fetch failed", zap.Error(err))
		} else {
			watt := float32(value)
			outcome.exportWatt = &watt
		}
	}
	if entity := state.config.HomeAssistant.ImportEntity; entity != "" {
		value, err := state.fetcher.NumericState(reqCtx, entity)
		if err != nil {
			state.logger.Warn("bias import fetch failed", zap.Error(err))
		} else {
			watt := float32(value)
			outcome.importWatt = &watt
		}
	}
	return &outcome, nil
}

func (state *BiasActor) pollInterval() time.Duration {
	millis := state.config.HomeAssistant.PollIntervalMillis
	if millis == 0 {
		millis = 1000
	}
	return time.Duration(millis) * time.Millisecond
}
