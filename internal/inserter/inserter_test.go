package inserter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

// recorder collects the calls made on the fakes below, in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

type fakeBuffer struct {
	rec  *recorder
	mu   sync.Mutex
	text string
}

func (b *fakeBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

func (b *fakeBuffer) SetText(text string) {
	b.mu.Lock()
	b.text = text
	b.mu.Unlock()
	b.rec.add("buffer.SetText(%q)", text)
}

type fakeForm map[string]string

func (f fakeForm) Value(field string) string { return f[field] }

type fakeControl struct {
	rec      *recorder
	mu       sync.Mutex
	label    string
	disabled bool
}

func (c *fakeControl) Label() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.label
}

func (c *fakeControl) SetLabel(label string) {
	c.mu.Lock()
	c.label = label
	c.mu.Unlock()
	c.rec.add("control.SetLabel(%q)", label)
}

func (c *fakeControl) SetDisabled(disabled bool) {
	c.mu.Lock()
	c.disabled = disabled
	c.mu.Unlock()
	c.rec.add("control.SetDisabled(%v)", disabled)
}

func (c *fakeControl) state() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.label, c.disabled
}

type fakeNotifier struct {
	rec *recorder
	mu  sync.Mutex
	got []string
}

func (n *fakeNotifier) Alert(message string) {
	n.mu.Lock()
	n.got = append(n.got, message)
	n.mu.Unlock()
	n.rec.add("notifier.Alert(%q)", message)
}

func (n *fakeNotifier) alerts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.got...)
}

type statusErr struct {
	code   int
	reason string
}

func (e *statusErr) Error() string   { return fmt.Sprintf("HTTP %d: %s", e.code, e.reason) }
func (e *statusErr) HTTPStatus() int { return e.code }
func (e *statusErr) Reason() string  { return e.reason }

type fixture struct {
	rec      *recorder
	buffer   *fakeBuffer
	control  *fakeControl
	notifier *fakeNotifier
	form     fakeForm
}

func newFixture() *fixture {
	rec := &recorder{}
	return &fixture{
		rec:      rec,
		buffer:   &fakeBuffer{rec: rec, text: "layer: x"},
		control:  &fakeControl{rec: rec, label: "Insert Fields"},
		notifier: &fakeNotifier{rec: rec},
		form:     fakeForm{FieldName: "ds1", FieldForeignTable: "t1"},
	}
}

func (fx *fixture) inserter(s Submitter, opts ...Option) *Inserter {
	return New(fx.buffer, fx.form, fx.notifier, s, opts...)
}

func wait(t *testing.T, call *Call) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := call.Wait(ctx)
	if err != nil {
		t.Fatalf("call did not settle: %v", err)
	}
	return out
}

func TestInsertDatasourceFields_Success(t *testing.T) {
	fx := newFixture()
	var got Payload
	submit := SubmitterFunc(func(ctx context.Context, p Payload) (string, error) {
		got = p
		fx.rec.add("submit")
		return "layer: x\nfield: a", nil
	})

	out := wait(t, fx.inserter(submit).InsertDatasourceFields(context.Background(), fx.control))

	if !out.OK || out.Text != "layer: x\nfield: a" {
		t.Fatalf("outcome = %+v, want success with new text", out)
	}
	if text := fx.buffer.Text(); text != "layer: x\nfield: a" {
		t.Errorf("buffer = %q, want server response", text)
	}
	want := Payload{Name: "ds1", ForeignTable: "t1", VRT: "layer: x", Action: "insert_fields"}
	if got != want {
		t.Errorf("payload = %+v, want %+v", got, want)
	}
	label, disabled := fx.control.state()
	if label != "Insert Fields" || disabled {
		t.Errorf("control = (%q, disabled=%v), want (\"Insert Fields\", false)", label, disabled)
	}
	if alerts := fx.notifier.alerts(); len(alerts) != 0 {
		t.Errorf("unexpected alerts: %v", alerts)
	}

	wantEvents := []string{
		`control.SetLabel("Processing...")`,
		`control.SetDisabled(true)`,
		`submit`,
		`buffer.SetText("layer: x\nfield: a")`,
		`control.SetLabel("Insert Fields")`,
		`control.SetDisabled(false)`,
	}
	if events := fx.rec.list(); !reflect.DeepEqual(events, wantEvents) {
		t.Errorf("events =\n%q\nwant\n%q", events, wantEvents)
	}
}

func TestInsertDatasourceFields_Failure(t *testing.T) {
	fx := newFixture()
	submit := SubmitterFunc(func(ctx context.Context, p Payload) (string, error) {
		fx.rec.add("submit")
		return "", &statusErr{code: 500, reason: "Server Error"}
	})

	out := wait(t, fx.inserter(submit).InsertDatasourceFields(context.Background(), fx.control))

	if out.OK || out.Status != 500 || out.Message != "Server Error" {
		t.Fatalf("outcome = %+v, want failure 500/Server Error", out)
	}
	if text := fx.buffer.Text(); text != "layer: x" {
		t.Errorf("buffer = %q, want it unchanged", text)
	}
	alerts := fx.notifier.alerts()
	if len(alerts) != 1 || alerts[0] != "500:Server Error" {
		t.Errorf("alerts = %q, want [\"500:Server Error\"]", alerts)
	}
	label, disabled := fx.control.state()
	if label != "Insert Fields" || disabled {
		t.Errorf("control = (%q, disabled=%v), want restored", label, disabled)
	}

	wantEvents := []string{
		`control.SetLabel("Processing...")`,
		`control.SetDisabled(true)`,
		`submit`,
		`notifier.Alert("500:Server Error")`,
		`control.SetLabel("Insert Fields")`,
		`control.SetDisabled(false)`,
	}
	if events := fx.rec.list(); !reflect.DeepEqual(events, wantEvents) {
		t.Errorf("events =\n%q\nwant\n%q", events, wantEvents)
	}
}

func TestInsertDatasourceFields_NoTrigger(t *testing.T) {
	for _, fail := range []bool{false, true} {
		t.Run(fmt.Sprintf("fail=%v", fail), func(t *testing.T) {
			fx := newFixture()
			submit := SubmitterFunc(func(ctx context.Context, p Payload) (string, error) {
				if fail {
					return "", &statusErr{code: 400, reason: "Empty vrt."}
				}
				return "layer: x\nfield: a", nil
			})

			out := wait(t, fx.inserter(submit).InsertDatasourceFields(context.Background(), nil))

			if out.OK == fail {
				t.Fatalf("outcome = %+v", out)
			}
			for _, e := range fx.rec.list() {
				if len(e) >= 8 && e[:8] == "control." {
					t.Errorf("control touched without a trigger: %s", e)
				}
			}
		})
	}
}

func TestInsertDatasourceFields_TransportError(t *testing.T) {
	fx := newFixture()
	submit := SubmitterFunc(func(ctx context.Context, p Payload) (string, error) {
		return "", errors.New("dial tcp: connection refused")
	})

	out := wait(t, fx.inserter(submit).InsertDatasourceFields(context.Background(), fx.control))

	if out.OK || out.Status != 0 {
		t.Fatalf("outcome = %+v, want failure with status 0", out)
	}
	if alerts := fx.notifier.alerts(); len(alerts) != 1 || alerts[0] != "0:dial tcp: connection refused" {
		t.Errorf("alerts = %q", alerts)
	}
	if label, disabled := fx.control.state(); label != "Insert Fields" || disabled {
		t.Errorf("control = (%q, %v), want restored", label, disabled)
	}
}

func TestInsertDatasourceFields_TriggerBusyDuringRequest(t *testing.T) {
	fx := newFixture()
	var label string
	var disabled bool
	submit := SubmitterFunc(func(ctx context.Context, p Payload) (string, error) {
		label, disabled = fx.control.state()
		return "ok", nil
	})

	wait(t, fx.inserter(submit).InsertDatasourceFields(context.Background(), fx.control))

	if label != BusyLabel || !disabled {
		t.Errorf("control during request = (%q, %v), want (%q, true)", label, disabled, BusyLabel)
	}
}

func TestInsertDatasourceFields_PayloadIsSnapshot(t *testing.T) {
	fx := newFixture()
	release := make(chan struct{})
	payloads := make(chan Payload, 1)
	submit := SubmitterFunc(func(ctx context.Context, p Payload) (string, error) {
		<-release
		payloads <- p
		return "from server", nil
	})

	call := fx.inserter(submit).InsertDatasourceFields(context.Background(), fx.control)
	fx.buffer.SetText("edited meanwhile")
	fx.form[FieldName] = "other"
	close(release)
	wait(t, call)

	p := <-payloads
	if p.VRT != "layer: x" {
		t.Errorf("payload vrt = %q, want the text at call time", p.VRT)
	}
	if p.Name != "ds1" {
		t.Errorf("payload name = %q, want the value at call time", p.Name)
	}
	if text := fx.buffer.Text(); text != "from server" {
		t.Errorf("buffer = %q, want server response", text)
	}
}

func TestInsertDatasourceFields_IgnoresCallerCancellation(t *testing.T) {
	fx := newFixture()
	release := make(chan struct{})
	var reqErr error
	submit := SubmitterFunc(func(ctx context.Context, p Payload) (string, error) {
		<-release
		reqErr = ctx.Err()
		return "done", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	call := fx.inserter(submit).InsertDatasourceFields(ctx, fx.control)
	cancel()
	close(release)
	out := wait(t, call)

	if reqErr != nil {
		t.Errorf("request context error = %v, want nil", reqErr)
	}
	if !out.OK || fx.buffer.Text() != "done" {
		t.Errorf("outcome = %+v, buffer = %q", out, fx.buffer.Text())
	}
}

func TestInsertDatasourceFields_ConcurrentCallsRace(t *testing.T) {
	fx := newFixture()
	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})
	submit := SubmitterFunc(func(ctx context.Context, p Payload) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return "answer", nil
	})

	in := fx.inserter(submit)
	first := in.InsertDatasourceFields(context.Background(), nil)
	second := in.InsertDatasourceFields(context.Background(), nil)
	close(release)

	if out := wait(t, first); !out.OK {
		t.Errorf("first outcome = %+v", out)
	}
	if out := wait(t, second); !out.OK {
		t.Errorf("second outcome = %+v", out)
	}
	if calls != 2 {
		t.Errorf("submitter called %d times, want 2", calls)
	}
}

func TestInsertDatasourceFields_InFlightGuard(t *testing.T) {
	fx := newFixture()
	release := make(chan struct{})
	started := make(chan struct{})
	submit := SubmitterFunc(func(ctx context.Context, p Payload) (string, error) {
		close(started)
		<-release
		return "answer", nil
	})

	in := fx.inserter(submit, WithInFlightGuard())
	first := in.InsertDatasourceFields(context.Background(), fx.control)
	<-started

	other := &fakeControl{rec: &recorder{}, label: "Again"}
	second := in.InsertDatasourceFields(context.Background(), other)
	out := wait(t, second)
	if out.OK || out.Message != ErrInFlight.Error() {
		t.Fatalf("second outcome = %+v, want in-flight rejection", out)
	}
	if label, disabled := other.state(); label != "Again" || disabled {
		t.Errorf("rejected trigger = (%q, %v), want untouched", label, disabled)
	}

	close(release)
	if out := wait(t, first); !out.OK {
		t.Fatalf("first outcome = %+v", out)
	}

	// The guard is released once the first call settles.
	third := in.InsertDatasourceFields(context.Background(), nil)
	if out := wait(t, third); !out.OK {
		t.Errorf("third outcome = %+v, want success", out)
	}
}

func TestCall_OutcomeAndWait(t *testing.T) {
	call := newCall()
	if _, ok := call.Outcome(); ok {
		t.Fatal("pending call reported an outcome")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := call.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait error = %v, want context.Canceled", err)
	}

	call.settle(Success("x"))
	out, ok := call.Outcome()
	if !ok || out.Text != "x" {
		t.Errorf("Outcome = %+v, %v", out, ok)
	}
	select {
	case <-call.Done():
	default:
		t.Error("Done not closed after settle")
	}
}

func TestOutcome_Notification(t *testing.T) {
	tests := []struct {
		out  Outcome
		want string
	}{
		{Failure(500, "Server Error"), "500:Server Error"},
		{Failure(400, "Empty vrt."), "400:Empty vrt."},
		{Failure(0, "connection refused"), "0:connection refused"},
	}
	for _, tt := range tests {
		if got := tt.out.Notification(); got != tt.want {
			t.Errorf("Notification() = %q, want %q", got, tt.want)
		}
	}
}
