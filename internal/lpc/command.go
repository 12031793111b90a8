// Package lpc stands for "Local Procedure Call". It's a typed RPC-like mechanism implemented over Go channels, intended
// for communication with long-running goroutines.
package lpc

import (
	"errors"
	"sync"

	"github.com/alanbriolat/video-fetcher/generic"
	"github.com/alanbriolat/video-fetcher/internal/sync_"
)

var (
	ErrClosed     = errors.New("command response already sent")
	ErrNoResponse = errors.New("no response")
)

// A Command carries one argument to a goroutine and one response back. Respond, RespondError and Close may race with
// each other; only the first takes effect.
type Command[Arg any, Response any] struct {
	initialized bool
	arg         Arg
	mu          sync.Mutex
	response    generic.Result[Response]
	done        sync_.Event
}

func (*Command[Arg, Response]) New(arg Arg) *Command[Arg, Response] {
	return &Command[Arg, Response]{
		initialized: true,
		arg:         arg,
		response:    generic.Err[Response](ErrNoResponse), // Default error if closed with no response
	}
}

func (c *Command[Arg, Response]) Arg() Arg {
	c.mustBeInitialized("Arg")
	return c.arg
}

func (c *Command[Arg, Response]) Respond(response Response) error {
	c.mustBeInitialized("Respond")
	return c.finish(generic.Ok(response))
}

func (c *Command[Arg, Response]) RespondError(err error) error {
	c.mustBeInitialized("RespondError")
	return c.finish(generic.Err[Response](err))
}

// Wait blocks until there is a response, and returns it.
func (c *Command[Arg, Response]) Wait() (Response, error) {
	c.mustBeInitialized("Wait")
	<-c.done.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response.Parts()
}

// Done is closed once the command has a response (or was closed without one).
func (c *Command[Arg, Response]) Done() <-chan struct{} {
	c.mustBeInitialized("Done")
	return c.done.Wait()
}

// Close ends the command without a response, so that Wait returns ErrNoResponse.
func (c *Command[Arg, Response]) Close() {
	c.mustBeInitialized("Close")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done.Set()
}

func (c *Command[Arg, Response]) finish(response generic.Result[Response]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done.IsSet() {
		return ErrClosed
	}
	c.response = response
	c.done.Set()
	return nil
}

func (c *Command[Arg, Response]) mustBeInitialized(method string) {
	if c == nil || !c.initialized {
		panic("attempted to call ." + method + "() on uninitialized Command, must use .New() first")
	}
}
