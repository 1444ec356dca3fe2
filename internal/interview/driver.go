// Package interview implements the conversation driver: a small finite-state
// machine that asks an opening question, a bounded number of follow-ups and
// finally produces feedback, suspending for the candidate's answer between
// questions. Records are checkpointed after every suspension.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/ai-interviewer/internal/ai"
	"github.com/spigell/ai-interviewer/internal/checkpoint"
	"github.com/spigell/ai-interviewer/internal/logger"
	"github.com/spigell/ai-interviewer/internal/observe"
)

const (
	DefaultStepLimit    = 3
	DefaultMaxStepLimit = 20

	DefaultOpeningFallback  = "Tell me about yourself and what draws you to this role."
	DefaultFollowupFallback = "Could you walk me through a concrete example from your experience?"
	DefaultFeedbackFallback = "Thank you for your time. Detailed feedback could not be generated right now."

	kindOpening  = "opening"
	kindFollowup = "followup"
	kindFeedback = "feedback"
)

// Checkpointer is the blob store the driver persists records into.
type Checkpointer interface {
	Put(ctx context.Context, key string, blob []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Fallbacks are the fixed texts substituted when generation fails.
type Fallbacks struct {
	Opening  string `mapstructure:"opening"`
	Followup string `mapstructure:"followup"`
	Feedback string `mapstructure:"feedback"`
}

// Options configures a Driver.
type Options struct {
	// StepLimit is used when StartParams.StepLimit is not set.
	StepLimit int
	// MaxStepLimit caps StartParams.StepLimit.
	MaxStepLimit int
	Prompts      Prompts
	Fallbacks    Fallbacks
	MaxLogLength int
}

// Deps are the collaborators of a Driver.
type Deps struct {
	Store     Checkpointer
	Generator ai.Generator
	Logger    *zap.Logger
	Metrics   *observe.Metrics
}

// StartParams describes a new interview.
type StartParams struct {
	Subject       string
	InterviewType string
	// StepLimit overrides Options.StepLimit when positive.
	StepLimit int
}

// Driver advances interview records one suspension at a time.
type Driver struct {
	opts    Options
	store   Checkpointer
	gen     ai.Generator
	logger  *zap.Logger
	metrics *observe.Metrics
	locks   *sessionLocks

	newID func() string
	now   func() time.Time
}

// NewDriver creates a Driver, filling unset options with defaults.
func NewDriver(opts Options, deps Deps) *Driver {
	if opts.StepLimit <= 0 {
		opts.StepLimit = DefaultStepLimit
	}
	if opts.MaxStepLimit <= 0 {
		opts.MaxStepLimit = DefaultMaxStepLimit
	}
	if opts.StepLimit > opts.MaxStepLimit {
		opts.MaxStepLimit = opts.StepLimit
	}

	defaults := DefaultPrompts()
	if strings.TrimSpace(opts.Prompts.Opening) == "" {
		opts.Prompts.Opening = defaults.Opening
	}
	if strings.TrimSpace(opts.Prompts.Followup) == "" {
		opts.Prompts.Followup = defaults.Followup
	}
	if strings.TrimSpace(opts.Prompts.Feedback) == "" {
		opts.Prompts.Feedback = defaults.Feedback
	}

	opts.Fallbacks.Opening = nonBlank(opts.Fallbacks.Opening, DefaultOpeningFallback)
	opts.Fallbacks.Followup = nonBlank(opts.Fallbacks.Followup, DefaultFollowupFallback)
	opts.Fallbacks.Feedback = nonBlank(opts.Fallbacks.Feedback, DefaultFeedbackFallback)

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Driver{
		opts:    opts,
		store:   deps.Store,
		gen:     deps.Generator,
		logger:  log,
		metrics: deps.Metrics,
		locks:   newSessionLocks(),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

func nonBlank(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// Begin creates a session, asks the opening question and checkpoints the record.
func (d *Driver) Begin(ctx context.Context, params StartParams) (*Reply, error) {
	subject := strings.TrimSpace(params.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}

	limit := params.StepLimit
	if limit <= 0 {
		limit = d.opts.StepLimit
	}
	if limit > d.opts.MaxStepLimit {
		return nil, fmt.Errorf("%w: step limit %d exceeds maximum %d", ErrInvalidInput, limit, d.opts.MaxStepLimit)
	}

	now := d.now().UTC()
	rec := &Record{
		SessionID:     d.newID(),
		Subject:       subject,
		InterviewType: strings.TrimSpace(params.InterviewType),
		Turns:         []Turn{},
		StepLimit:     limit,
		State:         StateStart,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	log := logger.WithSession(d.logger, rec.SessionID, rec.Subject)
	log.Info("starting interview",
		zap.String("interview_type", rec.InterviewType),
		zap.Int("step_limit", rec.StepLimit),
	)

	if err := d.advance(ctx, rec, "", log); err != nil {
		return nil, err
	}

	if err := d.save(ctx, rec); err != nil {
		return nil, err
	}

	d.metrics.RecordStarted(ctx)

	return replyFor(rec), nil
}

// Resume feeds the candidate's answer into the session and runs it to the
// next question or to its feedback.
func (d *Driver) Resume(ctx context.Context, sessionID, answer string) (*Reply, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("%w: answer is required", ErrInvalidInput)
	}

	unlock := d.locks.lock(sessionID)
	defer unlock()

	rec, err := d.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	log := logger.WithSession(d.logger, rec.SessionID, rec.Subject)

	if rec.Terminal() {
		log.Warn("resume called on a completed interview")
		return nil, fmt.Errorf("%w: interview %s is already completed", ErrInvalidState, sessionID)
	}
	if _, ok := rec.PendingQuestion(); !ok {
		return nil, fmt.Errorf("%w: interview %s is not waiting for an answer", ErrInvalidState, sessionID)
	}

	if err := d.advance(ctx, rec, answer, log); err != nil {
		return nil, err
	}

	if err := d.save(ctx, rec); err != nil {
		return nil, err
	}

	if rec.Terminal() {
		d.metrics.RecordCompleted(ctx)
		log.Info("interview completed", zap.Int("turns", len(rec.Turns)))
	}

	return replyFor(rec), nil
}

// Snapshot returns a copy of the stored record.
func (d *Driver) Snapshot(ctx context.Context, sessionID string) (*Record, error) {
	rec, err := d.load(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, err
	}
	return rec.clone(), nil
}

// advance runs the state machine until the record suspends for input or
// reaches StateDone. answer is consumed by the first StateAskingFollowup.
func (d *Driver) advance(ctx context.Context, rec *Record, answer string, log *zap.Logger) error {
	for {
		switch rec.State {
		case StateStart:
			question := d.generate(ctx, kindOpening, d.opts.Prompts.opening(rec), d.opts.Fallbacks.Opening, log)
			rec.append(SpeakerInterviewer, question)
			rec.StepCount = 1
			rec.AwaitingInput = true
			rec.State = StateAskingFollowup
			d.metrics.RecordQuestion(ctx, kindOpening)
			log.Info("asked opening question", zap.Int("step", rec.StepCount))
			return nil

		case StateAskingFollowup:
			if answer == "" {
				return fmt.Errorf("%w: interview %s is waiting for an answer", ErrInvalidState, rec.SessionID)
			}
			rec.append(SpeakerCandidate, answer)
			rec.AwaitingInput = false
			answer = ""

			if rec.StepCount >= rec.StepLimit {
				rec.State = StateGivingFeedback
				continue
			}

			question := d.generate(ctx, kindFollowup, d.opts.Prompts.followup(rec), d.opts.Fallbacks.Followup, log)
			rec.append(SpeakerInterviewer, question)
			rec.StepCount++
			rec.AwaitingInput = true
			d.metrics.RecordQuestion(ctx, kindFollowup)
			log.Info("asked follow-up question",
				zap.Int("step", rec.StepCount),
				zap.Int("step_limit", rec.StepLimit),
			)
			return nil

		case StateGivingFeedback:
			feedback := d.generate(ctx, kindFeedback, d.opts.Prompts.feedback(rec), d.opts.Fallbacks.Feedback, log)
			rec.append(SpeakerSystem, feedback)
			rec.Feedback = feedback
			rec.AwaitingInput = false
			rec.State = StateDone
			return nil

		case StateDone:
			return fmt.Errorf("%w: interview %s is already completed", ErrInvalidState, rec.SessionID)

		default:
			return fmt.Errorf("%w: unknown state %q", ErrInvalidState, rec.State)
		}
	}
}

func (d *Driver) generate(ctx context.Context, kind, prompt, fallback string, log *zap.Logger) string {
	started := time.Now()
	res := ai.Generate(ctx, d.gen, ai.Request{
		Kind:     kind,
		System:   d.opts.Prompts.System,
		Prompt:   prompt,
		Fallback: fallback,
	}, log, d.opts.MaxLogLength)
	d.metrics.RecordLLM(ctx, kind, res.Degraded, time.Since(started).Seconds())
	return res.Text
}

func (d *Driver) load(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}

	blob, err := d.store.Get(ctx, sessionID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	return decodeRecord(sessionID, blob)
}

func (d *Driver) save(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = d.now().UTC()

	blob, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	if err := d.store.Put(ctx, rec.SessionID, blob); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// StepLimit returns the default step limit for new interviews.
func (d *Driver) StepLimit() int {
	return d.opts.StepLimit
}

// MaxStepLimit returns the largest step limit a caller may request.
func (d *Driver) MaxStepLimit() int {
	return d.opts.MaxStepLimit
}
