package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorRef identifies a reply target without importing actor.PID
// throughout the message types.
type ActorRef actor.PID

// ActorRequestMixIn is embedded by request messages that carry an
// explicit reply target, for actors that respond outside the
// request/future flow.
type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

// ActorResponseMixIn is embedded by response messages so callers can
// check for a transported error uniformly.
type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}
