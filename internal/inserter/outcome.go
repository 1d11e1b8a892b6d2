package inserter

import (
	"context"
	"errors"
	"fmt"
)

// StatusError is implemented by transport errors that carry an HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
	Reason() string
}

// DetailError is implemented by errors that carry more than the reason,
// such as the response body.
type DetailError interface {
	error
	Detail() string
}

// Outcome is the settled result of a call: either Success with the new
// descriptor text, or Failure with a status and message.
type Outcome struct {
	OK      bool
	Text    string
	Status  int
	Message string
	// Detail is extra failure text from the server, possibly empty.
	Detail string
}

// Success returns a successful Outcome carrying text.
func Success(text string) Outcome {
	return Outcome{OK: true, Text: text}
}

// Failure returns a failed Outcome. Status is 0 when no HTTP response was
// received.
func Failure(status int, message string) Outcome {
	return Outcome{Status: status, Message: message}
}

// Notification is the text shown to the user for a failed Outcome.
func (o Outcome) Notification() string {
	return fmt.Sprintf("%d:%s", o.Status, o.Message)
}

func failureFrom(err error) Outcome {
	var se StatusError
	if errors.As(err, &se) {
		out := Failure(se.HTTPStatus(), se.Reason())
		var de DetailError
		if errors.As(err, &de) {
			out.Detail = de.Detail()
		}
		return out
	}
	return Failure(0, err.Error())
}

// Call is a pending insert_fields request.
type Call struct {
	done    chan struct{}
	outcome Outcome
}

func newCall() *Call {
	return &Call{done: make(chan struct{})}
}

func (c *Call) settle(out Outcome) {
	c.outcome = out
	close(c.done)
}

// Done is closed once the call has settled.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Outcome returns the settled outcome. ok is false while the call is pending.
func (c *Call) Outcome() (out Outcome, ok bool) {
	select {
	case <-c.done:
		return c.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the call settles or ctx is done. Giving up on ctx does
// not abort the request.
func (c *Call) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
