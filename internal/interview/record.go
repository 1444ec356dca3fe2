package interview

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerInterviewer Speaker = "interviewer"
	SpeakerCandidate   Speaker = "candidate"
	SpeakerSystem      Speaker = "system"
)

// Turn is one utterance in the conversation.
type Turn struct {
	Speaker Speaker `json:"role"`
	Text    string  `json:"text"`
}

// State is the driver state a record will enter on its next resume.
type State string

const (
	StateStart          State = "start"
	StateAskingFollowup State = "asking_followup"
	StateGivingFeedback State = "giving_feedback"
	StateDone           State = "done"
)

// Status is the externally visible progress of a session.
type Status string

const (
	StatusQuestion  Status = "question"
	StatusCompleted Status = "completed"
)

// Record is the persisted form of one interview session.
type Record struct {
	SessionID     string    `json:"session_id"`
	Subject       string    `json:"subject"`
	InterviewType string    `json:"interview_type,omitempty"`
	Turns         []Turn    `json:"turns"`
	StepCount     int       `json:"step_count"`
	StepLimit     int       `json:"step_limit"`
	AwaitingInput bool      `json:"awaiting_input"`
	Feedback      string    `json:"feedback,omitempty"`
	State         State     `json:"state"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Terminal reports whether the interview has produced its feedback.
func (r *Record) Terminal() bool {
	return r.State == StateDone
}

// Status derives the externally visible status.
func (r *Record) Status() Status {
	if r.Terminal() {
		return StatusCompleted
	}
	return StatusQuestion
}

// LastTurn returns the most recent turn, if any.
func (r *Record) LastTurn() (Turn, bool) {
	if len(r.Turns) == 0 {
		return Turn{}, false
	}
	return r.Turns[len(r.Turns)-1], true
}

// PendingQuestion returns the interviewer question waiting for an answer.
func (r *Record) PendingQuestion() (string, bool) {
	if !r.AwaitingInput {
		return "", false
	}
	last, ok := r.LastTurn()
	if !ok || last.Speaker != SpeakerInterviewer {
		return "", false
	}
	return last.Text, true
}

// History renders the turns as "speaker: text" lines.
func (r *Record) History() string {
	lines := make([]string, 0, len(r.Turns))
	for _, turn := range r.Turns {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Speaker, turn.Text))
	}
	return strings.Join(lines, "\n")
}

func (r *Record) append(speaker Speaker, text string) {
	r.Turns = append(r.Turns, Turn{Speaker: speaker, Text: text})
}

// clone returns a deep copy so callers cannot mutate driver-owned turns.
func (r *Record) clone() *Record {
	out := *r
	out.Turns = append([]Turn(nil), r.Turns...)
	return &out
}

func encodeRecord(r *Record) ([]byte, error) {
	blob, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", r.SessionID, err)
	}
	return blob, nil
}

func decodeRecord(id string, blob []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(blob, &r); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	if r.SessionID == "" {
		r.SessionID = id
	}
	return &r, nil
}

// Reply is what Begin and Resume return to the caller.
type Reply struct {
	SessionID   string `json:"session_id"`
	Status      Status `json:"status"`
	Message     string `json:"message"`
	CurrentStep int    `json:"current_step"`
	MaxSteps    int    `json:"max_steps"`
}

func replyFor(r *Record) *Reply {
	reply := &Reply{
		SessionID:   r.SessionID,
		Status:      r.Status(),
		CurrentStep: r.StepCount,
		MaxSteps:    r.StepLimit,
	}

	if r.Terminal() {
		reply.Message = r.Feedback
	} else if question, ok := r.PendingQuestion(); ok {
		reply.Message = question
	}

	return reply
}
