// Package inserter fills a VRT descriptor with the fields of a datasource by
// delegating field discovery to the server's insert_fields action.
package inserter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	// ActionInsertFields is the action tag sent with every request.
	ActionInsertFields = "insert_fields"

	// BusyLabel replaces the trigger's label while a request is pending.
	BusyLabel = "Processing..."

	FieldName         = "name"
	FieldForeignTable = "foreign_table"
)

// ErrInFlight is reported when a guarded Inserter is invoked while a
// previous call has not settled yet.
var ErrInFlight = errors.New("request already in progress")

// Buffer is the text-editing surface holding the descriptor text.
type Buffer interface {
	Text() string
	SetText(text string)
}

// Form gives access to the current value of named form fields.
type Form interface {
	Value(field string) string
}

// Control is the UI element that triggered the action. It is only used as a
// busy indicator.
type Control interface {
	Label() string
	SetLabel(label string)
	SetDisabled(disabled bool)
}

// Notifier shows a blocking, user-visible message.
type Notifier interface {
	Alert(message string)
}

// Submitter sends a payload to the server and returns the replacement
// descriptor text.
type Submitter interface {
	InsertFields(ctx context.Context, p Payload) (string, error)
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, p Payload) (string, error)

// InsertFields calls f.
func (f SubmitterFunc) InsertFields(ctx context.Context, p Payload) (string, error) {
	return f(ctx, p)
}

// Payload is the request body of a single call.
type Payload struct {
	Name         string
	ForeignTable string
	VRT          string
	Action       string
}

// Inserter runs insert_fields requests against injected UI collaborators.
type Inserter struct {
	buffer    Buffer
	form      Form
	notifier  Notifier
	submitter Submitter
	logger    *zap.Logger

	guard    bool
	inFlight atomic.Bool
}

// Option configures an Inserter.
type Option func(*Inserter)

// WithLogger sets the logger used to trace calls.
func WithLogger(logger *zap.Logger) Option {
	return func(in *Inserter) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// WithInFlightGuard rejects calls made while another call is still pending.
// Without it, concurrent calls race and the last response to arrive wins.
func WithInFlightGuard() Option {
	return func(in *Inserter) {
		in.guard = true
	}
}

// New creates an Inserter.
func New(buffer Buffer, form Form, notifier Notifier, submitter Submitter, opts ...Option) *Inserter {
	in := &Inserter{
		buffer:    buffer,
		form:      form,
		notifier:  notifier,
		submitter: submitter,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// InsertDatasourceFields snapshots the buffer and form values, marks trigger
// busy, and sends the request in the background. On success the buffer is
// replaced with the response text; on failure the notifier is alerted and
// the buffer is left alone. trigger may be nil.
//
// The returned Call settles after the buffer write or the alert and after
// trigger has been restored. Callers are free to ignore it.
func (in *Inserter) InsertDatasourceFields(ctx context.Context, trigger Control) *Call {
	payload := Payload{
		VRT:          in.buffer.Text(),
		ForeignTable: in.form.Value(FieldForeignTable),
		Name:         in.form.Value(FieldName),
		Action:       ActionInsertFields,
	}
	call := newCall()

	if in.guard && !in.inFlight.CompareAndSwap(false, true) {
		out := Failure(0, ErrInFlight.Error())
		in.logger.Debug("insert_fields rejected", zap.String("name", payload.Name))
		in.notifier.Alert(out.Notification())
		call.settle(out)
		return call
	}

	restore := markBusy(trigger)

	in.logger.Debug("insert_fields started",
		zap.String("name", payload.Name),
		zap.String("foreign_table", payload.ForeignTable),
		zap.Int("vrt_bytes", len(payload.VRT)))

	// The request outlives the caller's cancellation; only the transport
	// timeout bounds it.
	reqCtx := context.WithoutCancel(ctx)

	go func() {
		text, err := in.submitter.InsertFields(reqCtx, payload)

		var out Outcome
		if err != nil {
			out = failureFrom(err)
			in.logger.Debug("insert_fields failed",
				zap.Int("status", out.Status), zap.String("message", out.Message))
			in.notifier.Alert(out.Notification())
		} else {
			out = Success(text)
			in.logger.Debug("insert_fields succeeded", zap.Int("vrt_bytes", len(text)))
			in.buffer.SetText(text)
		}
		restore()

		if in.guard {
			in.inFlight.Store(false)
		}
		call.settle(out)
	}()

	return call
}

// markBusy relabels and disables trigger and returns the function restoring
// it. The returned function only acts once.
func markBusy(trigger Control) func() {
	if trigger == nil {
		return func() {}
	}
	label := trigger.Label()
	trigger.SetLabel(BusyLabel)
	trigger.SetDisabled(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			trigger.SetLabel(label)
			trigger.SetDisabled(false)
		})
	}
}
