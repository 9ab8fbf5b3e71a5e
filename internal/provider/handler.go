package provider

import "context"

// ChatHandler receives the outcome of a chat call. Exactly one of OnFinish or
// OnError is called per request.
type ChatHandler interface {
	OnUpdate(message, chunk string)
	OnFinish(message string)
	OnError(err error)
	// OnController hands over the cancel func of the in-flight request.
	OnController(cancel context.CancelFunc)
}

// HandlerFuncs adapts plain functions to ChatHandler. Nil fields are skipped.
type HandlerFuncs struct {
	Update     func(message, chunk string)
	Finish     func(message string)
	Error      func(err error)
	Controller func(cancel context.CancelFunc)
}

func (h HandlerFuncs) OnUpdate(message, chunk string) {
	if h.Update != nil {
		h.Update(message, chunk)
	}
}

func (h HandlerFuncs) OnFinish(message string) {
	if h.Finish != nil {
		h.Finish(message)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h HandlerFuncs) OnController(cancel context.CancelFunc) {
	if h.Controller != nil {
		h.Controller(cancel)
	}
}

// Result collects the outcome of a chat call for synchronous callers.
type Result struct {
	HandlerFuncs
	Message string
	Err     error
}

// NewResult returns a handler that records the final message or error.
func NewResult() *Result {
	r := &Result{}
	r.Finish = func(message string) { r.Message = message }
	r.Error = func(err error) { r.Err = err }
	return r
}
