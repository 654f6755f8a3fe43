package actorutil

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stashDrain struct{}

type stashEcho struct {
	value int
}

// stashingActor parks echo requests until drained, then answers them in
// arrival order.
type stashingActor struct {
	behavior actor.Behavior
	stash    Stash
}

func newStashingActor() *stashingActor {
	a := &stashingActor{behavior: actor.NewBehavior()}
	a.behavior.Become(a.WaitingReceive)
	return a
}

func (a *stashingActor) Receive(ctx actor.Context) {
	a.behavior.Receive(ctx)
}

func (a *stashingActor) WaitingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *stashEcho:
		a.stash.Stash(ctx, msg)
	case *stashDrain:
		a.behavior.Become(a.DrainedReceive)
		a.stash.UnstashAll(ctx)
	}
}

func (a *stashingActor) DrainedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *stashEcho:
		ctx.Respond(msg.value)
	}
}

func TestStashPreservesSenderAndOrder(t *testing.T) {
	logger := zap.Must(zap.NewDevelopment())
	system := NewActorSystemWithZapLogger(logger)

	pid := system.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return newStashingActor()
	}))

	f1 := system.Root.RequestFuture(pid, &stashEcho{value: 1}, 5*time.Second)
	f2 := system.Root.RequestFuture(pid, &stashEcho{value: 2}, 5*time.Second)
	system.Root.Send(pid, &stashDrain{})

	r1, err := f1.Result()
	require.NoError(t, err)
	r2, err := f2.Result()
	require.NoError(t, err)

	assert.Equal(t, 1, r1)
	assert.Equal(t, 2, r2)
}

func TestStashLen(t *testing.T) {
	var stash Stash
	assert.Equal(t, 0, stash.Len())

	stash.stash = append(stash.stash, stashElem{msg: "a"}, stashElem{msg: "b"})
	assert.Equal(t, 2, stash.Len())
}
