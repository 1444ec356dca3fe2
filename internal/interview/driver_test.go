package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/ai-interviewer/internal/checkpoint"
)

// scriptedGenerator answers with a numbered question or a feedback text
// depending on the prompt it receives.
type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (g *scriptedGenerator) GenerateContent(_ context.Context, _, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if strings.Contains(prompt, "feedback") {
		return "Strong answers overall.", nil
	}
	return fmt.Sprintf("Question %d?", len(g.prompts)), nil
}

func (g *scriptedGenerator) Model() string { return "scripted" }

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type failingStore struct {
	err error
}

func (s failingStore) Put(context.Context, string, []byte) error { return s.err }

func (s failingStore) Get(context.Context, string) ([]byte, error) { return nil, s.err }

func newTestDriver(t *testing.T, gen *scriptedGenerator, opts Options) (*Driver, *checkpoint.Memory) {
	t.Helper()

	store := checkpoint.NewMemory()
	d := NewDriver(opts, Deps{Store: store, Generator: gen, Logger: zap.NewNop()})

	var seq int
	d.newID = func() string {
		seq++
		return fmt.Sprintf("session-%d", seq)
	}
	d.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	return d, store
}

func TestDriverFullInterview(t *testing.T) {
	gen := &scriptedGenerator{}
	d, store := newTestDriver(t, gen, Options{})
	ctx := context.Background()

	reply, err := d.Begin(ctx, StartParams{Subject: "Backend Engineer", StepLimit: 3})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if reply.Status != StatusQuestion || reply.CurrentStep != 1 || reply.MaxSteps != 3 {
		t.Fatalf("unexpected first reply: %+v", reply)
	}
	if reply.Message != "Question 1?" {
		t.Fatalf("unexpected opening question: %q", reply.Message)
	}
	if store.Len() != 1 {
		t.Fatalf("expected record to be checkpointed, store has %d entries", store.Len())
	}

	steps := []struct {
		answer string
		status Status
		step   int
	}{
		{answer: "I build APIs in Go.", status: StatusQuestion, step: 2},
		{answer: "I profiled the hot path.", status: StatusQuestion, step: 3},
		{answer: "We cut latency in half.", status: StatusCompleted, step: 3},
	}

	for i, step := range steps {
		reply, err = d.Resume(ctx, reply.SessionID, step.answer)
		if err != nil {
			t.Fatalf("resume %d: %v", i, err)
		}
		if reply.Status != step.status || reply.CurrentStep != step.step {
			t.Fatalf("resume %d: unexpected reply %+v", i, reply)
		}
	}

	if reply.Message != "Strong answers overall." {
		t.Fatalf("unexpected feedback: %q", reply.Message)
	}

	rec, err := d.Snapshot(ctx, reply.SessionID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if rec.State != StateDone || rec.AwaitingInput {
		t.Fatalf("unexpected final record: %+v", rec)
	}
	if rec.Feedback == "" {
		t.Fatal("expected feedback on completed record")
	}

	// three questions, three answers, one feedback turn
	if len(rec.Turns) != 7 {
		t.Fatalf("expected 7 turns, got %d", len(rec.Turns))
	}
	wantSpeakers := []Speaker{
		SpeakerInterviewer, SpeakerCandidate,
		SpeakerInterviewer, SpeakerCandidate,
		SpeakerInterviewer, SpeakerCandidate,
		SpeakerSystem,
	}
	for i, speaker := range wantSpeakers {
		if rec.Turns[i].Speaker != speaker {
			t.Fatalf("turn %d: expected %s, got %s", i, speaker, rec.Turns[i].Speaker)
		}
	}

	if gen.calls() != 4 {
		t.Fatalf("expected 4 generator calls, got %d", gen.calls())
	}
	if !strings.Contains(gen.prompts[2], "candidate: I profiled the hot path.") {
		t.Fatalf("follow-up prompt is missing history: %q", gen.prompts[2])
	}
}

func TestDriverInvariantsHoldAtEverySuspension(t *testing.T) {
	gen := &scriptedGenerator{}
	d, _ := newTestDriver(t, gen, Options{StepLimit: 4})
	ctx := context.Background()

	reply, err := d.Begin(ctx, StartParams{Subject: "SRE"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	prevStep := 0
	for reply.Status != StatusCompleted {
		rec, err := d.Snapshot(ctx, reply.SessionID)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}

		if rec.StepCount < prevStep {
			t.Fatalf("step count decreased from %d to %d", prevStep, rec.StepCount)
		}
		if rec.StepCount > rec.StepLimit {
			t.Fatalf("step count %d exceeds limit %d", rec.StepCount, rec.StepLimit)
		}
		if !rec.AwaitingInput {
			t.Fatal("suspended record must await input")
		}
		if rec.Feedback != "" {
			t.Fatal("feedback must be empty before completion")
		}
		answers := len(rec.Turns) / 2
		if len(rec.Turns) != 2*answers+1 {
			t.Fatalf("unexpected turn count %d", len(rec.Turns))
		}
		prevStep = rec.StepCount

		reply, err = d.Resume(ctx, reply.SessionID, "an answer")
		if err != nil {
			t.Fatalf("resume: %v", err)
		}
	}

	if reply.CurrentStep != 4 || reply.MaxSteps != 4 {
		t.Fatalf("unexpected completed reply: %+v", reply)
	}
}

func TestDriverStepLimitOne(t *testing.T) {
	d, _ := newTestDriver(t, &scriptedGenerator{}, Options{})
	ctx := context.Background()

	reply, err := d.Begin(ctx, StartParams{Subject: "Designer", StepLimit: 1})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	reply, err = d.Resume(ctx, reply.SessionID, "I sketch a lot.")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if reply.Status != StatusCompleted || reply.CurrentStep != 1 {
		t.Fatalf("expected completion after one answer, got %+v", reply)
	}
}

func TestDriverFallsBackWhenGenerationFails(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	gen := &scriptedGenerator{err: errors.New("quota exhausted")}

	store := checkpoint.NewMemory()
	d := NewDriver(Options{StepLimit: 2}, Deps{Store: store, Generator: gen, Logger: zap.New(core)})
	ctx := context.Background()

	reply, err := d.Begin(ctx, StartParams{Subject: "Analyst"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if reply.Message != DefaultOpeningFallback {
		t.Fatalf("expected opening fallback, got %q", reply.Message)
	}

	reply, err = d.Resume(ctx, reply.SessionID, "first")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if reply.Message != DefaultFollowupFallback {
		t.Fatalf("expected follow-up fallback, got %q", reply.Message)
	}

	reply, err = d.Resume(ctx, reply.SessionID, "second")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if reply.Status != StatusCompleted || reply.Message != DefaultFeedbackFallback {
		t.Fatalf("expected feedback fallback, got %+v", reply)
	}

	if logs.Len() != 3 {
		t.Fatalf("expected 3 fallback warnings, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["session_id"]; got != reply.SessionID {
		t.Fatalf("expected session id on log entry, got %v", got)
	}
}

func TestDriverCustomFallbacks(t *testing.T) {
	d := NewDriver(Options{Fallbacks: Fallbacks{Opening: "Why this job?"}}, Deps{
		Store:     checkpoint.NewMemory(),
		Generator: &scriptedGenerator{err: errors.New("down")},
	})

	reply, err := d.Begin(context.Background(), StartParams{Subject: "Chef"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if reply.Message != "Why this job?" {
		t.Fatalf("unexpected fallback: %q", reply.Message)
	}
}

func TestDriverResumeErrors(t *testing.T) {
	d, _ := newTestDriver(t, &scriptedGenerator{}, Options{StepLimit: 1})
	ctx := context.Background()

	reply, err := d.Begin(ctx, StartParams{Subject: "QA"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := d.Resume(ctx, reply.SessionID, "done"); err != nil {
		t.Fatalf("resume: %v", err)
	}

	cases := []struct {
		name    string
		session string
		answer  string
		want    error
	}{
		{name: "unknown session", session: "missing", answer: "hi", want: ErrSessionNotFound},
		{name: "completed session", session: reply.SessionID, answer: "again", want: ErrInvalidState},
		{name: "blank answer", session: reply.SessionID, answer: "  ", want: ErrInvalidInput},
		{name: "blank session", session: "", answer: "hi", want: ErrInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Resume(ctx, tc.session, tc.answer)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDriverCompletedSessionIsUnchangedByResume(t *testing.T) {
	d, _ := newTestDriver(t, &scriptedGenerator{}, Options{StepLimit: 1})
	ctx := context.Background()

	reply, _ := d.Begin(ctx, StartParams{Subject: "QA"})
	if _, err := d.Resume(ctx, reply.SessionID, "done"); err != nil {
		t.Fatalf("resume: %v", err)
	}

	before, _ := d.Snapshot(ctx, reply.SessionID)
	if _, err := d.Resume(ctx, reply.SessionID, "more"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	after, _ := d.Snapshot(ctx, reply.SessionID)

	if len(before.Turns) != len(after.Turns) || before.Feedback != after.Feedback {
		t.Fatalf("completed record changed: %+v -> %+v", before, after)
	}
}

func TestDriverBeginValidates(t *testing.T) {
	d, store := newTestDriver(t, &scriptedGenerator{}, Options{MaxStepLimit: 5})

	cases := []struct {
		name   string
		params StartParams
	}{
		{name: "blank subject", params: StartParams{Subject: "   "}},
		{name: "limit over maximum", params: StartParams{Subject: "Dev", StepLimit: 6}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := d.Begin(context.Background(), tc.params); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}

	if store.Len() != 0 {
		t.Fatalf("rejected starts must not create sessions, store has %d", store.Len())
	}
}

func TestDriverStoreFailures(t *testing.T) {
	storeErr := errors.New("connection refused")
	d := NewDriver(Options{}, Deps{
		Store:     failingStore{err: storeErr},
		Generator: &scriptedGenerator{},
	})
	ctx := context.Background()

	if _, err := d.Begin(ctx, StartParams{Subject: "Dev"}); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error from begin, got %v", err)
	}
	if _, err := d.Resume(ctx, "id", "answer"); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error from resume, got %v", err)
	}
	if _, err := d.Snapshot(ctx, "id"); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error from snapshot, got %v", err)
	}
}

func TestDriverConcurrentResumesAreSerialised(t *testing.T) {
	gen := &scriptedGenerator{}
	d, _ := newTestDriver(t, gen, Options{StepLimit: 10, MaxStepLimit: 10})
	ctx := context.Background()

	reply, err := d.Begin(ctx, StartParams{Subject: "Dev"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	const workers = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := d.Resume(ctx, reply.SessionID, fmt.Sprintf("answer %d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("resume: %v", err)
	}

	rec, err := d.Snapshot(ctx, reply.SessionID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if rec.StepCount != 1+workers {
		t.Fatalf("expected step %d, got %d", 1+workers, rec.StepCount)
	}
	if len(rec.Turns) != 2*workers+1 {
		t.Fatalf("lost updates: %d turns", len(rec.Turns))
	}
	if d.locks.len() != 0 {
		t.Fatalf("expected session locks to be released, %d remain", d.locks.len())
	}
}

func TestDriverSnapshotIsACopy(t *testing.T) {
	d, _ := newTestDriver(t, &scriptedGenerator{}, Options{})
	ctx := context.Background()

	reply, _ := d.Begin(ctx, StartParams{Subject: "Dev"})
	rec, err := d.Snapshot(ctx, reply.SessionID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	rec.Turns[0].Text = "mutated"

	again, _ := d.Snapshot(ctx, reply.SessionID)
	if again.Turns[0].Text == "mutated" {
		t.Fatal("snapshot shares turns with the store")
	}
	if again.CreatedAt.IsZero() || again.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps on record: %+v", again)
	}
}
