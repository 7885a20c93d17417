package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/fusioncloud/internal/application"
	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
)

const notifyTimeout = 15 * time.Second

// Service runs the log threat analysis pipeline:
// validate → invoke analyzer → interpret (or synthesize) → notify.
// Service is safe for concurrent use as long as its ports are.
type Service struct {
	Invoker  domain.Invoker
	Notifier domain.Notifier
	Selector domain.ScenarioSelector
	Clock    application.Clock
	Log      zerolog.Logger

	// DisableFallback surfaces analyzer failures instead of synthesizing a result.
	DisableFallback bool
}

// Outcome of one analysis.
type Outcome struct {
	Result domain.Result

	// Cause is the analyzer failure absorbed by the fallback, nil for real results.
	Cause error

	NotificationRequested bool
	Notified              bool
	NotifyErr             error
}

// Analyze runs one request. Only validation errors (and analyzer failures when
// the fallback is disabled) are returned; everything else ends in a classified result.
func (s *Service) Analyze(ctx context.Context, req domain.Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	log := s.Log.With().Str("request_id", uuid.NewString()).Logger()
	log.Info().Int("bytes", len(req.RawText)).Bool("notify", req.SendNotification).Msg("analysis started")

	out := Outcome{NotificationRequested: req.SendNotification}

	// satu kali invoke, tanpa retry
	raw, err := s.Invoker.Invoke(ctx, req.RawText)
	if err != nil {
		if s.DisableFallback {
			log.Error().Err(err).Msg("analyzer failed")
			return Outcome{}, err
		}
		log.Error().Err(err).Msg("analyzer failed, using fallback")
		out.Result = domain.Synthesize(s.Selector, s.Clock.Now())
		out.Cause = err
	} else {
		out.Result = domain.Interpret(raw.Stdout, s.Clock.Now())
	}

	log.Info().
		Str("threat_level", string(out.Result.ThreatLevel)).
		Bool("synthetic", out.Result.Synthetic).
		Bool("structured", out.Result.Structured != nil).
		Msg("analysis finished")

	if req.SendNotification {
		out.NotifyErr = s.notify(ctx, domain.NewNotification(out.Result))
		out.Notified = out.NotifyErr == nil
		if out.NotifyErr != nil {
			log.Warn().Err(out.NotifyErr).Msg("notification failed")
		}
	}
	return out, nil
}

// Submit adapts Analyze for session clients that only need the result.
func (s *Service) Submit(ctx context.Context, req domain.Request) (domain.Result, error) {
	out, err := s.Analyze(ctx, req)
	if err != nil {
		return domain.Result{}, err
	}
	return out.Result, nil
}

// Relay forwards a free-form message to the messaging sink verbatim.
func (s *Service) Relay(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	return s.notify(ctx, domain.NotificationMessage{Text: message})
}

// notify survives cancellation of the caller: the result already exists.
func (s *Service) notify(ctx context.Context, msg domain.NotificationMessage) error {
	if s.Notifier == nil {
		return &domain.NotificationError{Err: domain.ErrSinkNotConfigured}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	return s.Notifier.Notify(ctx, msg)
}
