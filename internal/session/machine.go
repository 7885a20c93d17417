package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/fusioncloud/internal/application"
	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
)

// State of a client session.
type State int

const (
	Idle State = iota
	Submitting
	Displayed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Displayed:
		return "displayed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("a submission is already in progress")

	// ErrCleared is returned to a submission whose session was cleared while it ran.
	ErrCleared = errors.New("session cleared during submission")
)

// Submitter sends one request to the pipeline, in process or remote.
type Submitter interface {
	Submit(ctx context.Context, req domain.Request) (domain.Result, error)
}

// Deps wires a Machine. Notifier is optional and only used for results the
// machine synthesizes itself; the pipeline notifies for its own results.
type Deps struct {
	Submitter Submitter
	Selector  domain.ScenarioSelector
	Notifier  domain.Notifier
	Clock     application.Clock
	Log       zerolog.Logger
}

// Snapshot is a copy of the session for rendering.
type Snapshot struct {
	State    State
	FileName string
	Staged   string
	Notify   bool
	Request  *domain.Request
	Result   *domain.Result
	Err      error
}

// Machine is the client-facing state machine:
// Idle → Submitting → Displayed | Idle, and Clear from any state back to Idle.
// Displayed always carries a result.
type Machine struct {
	deps Deps

	mu         sync.Mutex
	state      State
	staged     domain.Payload
	notify     bool
	request    *domain.Request
	result     *domain.Result
	err        error
	generation uint64
}

func New(d Deps) *Machine {
	if d.Clock == nil {
		d.Clock = application.SystemClock{}
	}
	if d.Selector == nil {
		d.Selector = domain.NewRandomSelector(time.Now().UnixNano())
	}
	return &Machine{deps: d}
}

// Stage replaces the staged content with raw text.
func (m *Machine) Stage(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = domain.FromText(text)
	m.err = nil
}

// StageDocument stages an uploaded JSON document, pretty-printed. A document
// that does not parse clears the staged content and is reported as the session error.
func (m *Machine) StageDocument(name string, data []byte) error {
	p, err := domain.FromDocument(name, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.staged = domain.Payload{}
		m.err = err
		return err
	}
	m.staged = p
	m.err = nil
	return nil
}

// SetNotify toggles the notification request for the next submission.
func (m *Machine) SetNotify(on bool) {
	m.mu.Lock()
	m.notify = on
	m.mu.Unlock()
}

// Submit sends the staged content. It refuses while another submission is in
// flight and when the staged text is blank. Rejections (ErrValidation,
// ErrInvalidDocument) go back to the caller and leave the session Idle.
// Analyzer and transport failures never reach the caller: the session
// synthesizes a result instead.
func (m *Machine) Submit(ctx context.Context) (domain.Result, error) {
	m.mu.Lock()
	if m.state == Submitting {
		m.mu.Unlock()
		return domain.Result{}, ErrBusy
	}
	req, err := domain.NewRequest(m.staged, m.notify)
	if err != nil {
		m.err = err
		m.mu.Unlock()
		return domain.Result{}, err
	}
	m.generation++
	gen := m.generation
	m.state = Submitting
	m.request = &req
	m.err = nil
	m.mu.Unlock()

	res, err := m.deps.Submitter.Submit(ctx, req)
	var notifyErr error
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidDocument), ctx.Err() != nil:
		return domain.Result{}, m.abort(gen, err)
	default:
		m.deps.Log.Warn().Err(err).Msg("submission failed, using fallback")
		res = domain.Synthesize(m.deps.Selector, m.deps.Clock.Now())
		switch {
		case !req.SendNotification:
		case timedOut(err):
			// server may have finished and notified already
			m.deps.Log.Warn().Msg("submission timed out, skipping notification for synthetic result")
		default:
			notifyErr = m.notifySynthetic(ctx, res)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return domain.Result{}, ErrCleared
	}
	m.state = Displayed
	m.result = &res
	m.err = notifyErr
	return res, nil
}

// timedOut reports a submission whose outcome on the other side is unknown.
func timedOut(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// abort puts the session back to Idle after a rejected submission.
func (m *Machine) abort(gen uint64, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return ErrCleared
	}
	m.state = Idle
	m.request = nil
	m.err = err
	return err
}

func (m *Machine) notifySynthetic(ctx context.Context, res domain.Result) error {
	if m.deps.Notifier == nil {
		return nil
	}
	if err := m.deps.Notifier.Notify(context.WithoutCancel(ctx), domain.NewNotification(res)); err != nil {
		m.deps.Log.Warn().Err(err).Msg("notification failed")
		return err
	}
	return nil
}

// Clear discards staged content, request, result and error. A submission in
// flight keeps running but its result is dropped.
func (m *Machine) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.state = Idle
	m.staged = domain.Payload{}
	m.notify = false
	m.request = nil
	m.result = nil
	m.err = nil
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		State:    m.state,
		FileName: m.staged.FileName,
		Staged:   m.staged.Text,
		Notify:   m.notify,
		Err:      m.err,
	}
	if m.request != nil {
		r := *m.request
		s.Request = &r
	}
	if m.result != nil {
		r := *m.result
		s.Result = &r
	}
	return s
}
