package actor

import (
	"fmt"
	"time"

	"shelly2fronius/internal/core/domain"
	"shelly2fronius/internal/util/actorutil"
	"shelly2fronius/pkg/shelly3em"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

// SourceMeterActor owns the Modbus connection to the physical meter.
// Connection failures panic out of the actor so the supervisor restarts
// it with backoff, which doubles as the reconnect loop.
type SourceMeterActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	reader   shelly3em.SourceMeterReader
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewSourceMeterActor(reader shelly3em.SourceMeterReader, logger *zap.Logger) *SourceMeterActor {
	act := &SourceMeterActor{
		reader:   reader,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_SOURCEMETER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *SourceMeterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *SourceMeterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("sourcemeter@starting started")
		if err := state.reader.Open(); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.reader.Close()
	default:
		state.logger.Debug("sourcemeter@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *SourceMeterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("sourcemeter@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SOURCEMETER,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetGridReadingRequest:
		state.logger.Debug("sourcemeter@default: GetGridReadingRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getGridReading),
			mapTaskResult[domain.GetGridReadingResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetGridReadingResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(2 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.GetNetPowerRequest:
		state.logger.Debug("sourcemeter@default: GetNetPowerRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getNetPower),
			mapTaskResult[domain.GetNetPowerResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetNetPowerResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(2 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.ReconnectRequest:
		// drop and reopen; an unreachable meter panics into supervisor
		// backoff, which caps the reconnect rate
		state.logger.Info("sourcemeter@default: reconnect")
		state.reader.Close()
		if err := state.reader.Open(); err != nil {
			panic(err)
		}
		if msg.ReplyTo() != nil {
			actorutil.ForRequest(msg).Respond(ctx, domain.ReconnectResponse{})
		}
	case *actor.Stopping:
		state.reader.Close()
	default:
		state.logger.Debug("sourcemeter@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SourceMeterActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("sourcemeter@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.reader.Close()
	default:
		state.logger.Debug("sourcemeter@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *SourceMeterActor) getGridReading() (*domain.GetGridReadingResponse, error) {
	reading, err := a.reader.GetReading()
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetGridReadingResponse{
		Reading: reading,
	}, nil
}

func (a *SourceMeterActor) getNetPower() (*domain.GetNetPowerResponse, error) {
	watt, err := a.reader.GetNetPowerWatt()
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetNetPowerResponse{
		NetPowerWatt: watt,
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
