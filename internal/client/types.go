package client

import (
	"fmt"
	"strings"
)

const (
	StatusQuestion  = "question"
	StatusCompleted = "completed"
)

// Reply is the server's answer to start and continue calls.
type Reply struct {
	ThreadID    string `json:"thread_id"`
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	CurrentStep int    `json:"current_step"`
	MaxSteps    int    `json:"max_steps"`
}

// ID returns the session id, falling back to thread_id.
func (r *Reply) ID() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.ThreadID
}

func (r *Reply) Completed() bool {
	return r.Status == StatusCompleted
}

// Turn is one utterance of a stored session.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Session is the debug view of a stored interview.
type Session struct {
	Record struct {
		SessionID string `json:"session_id"`
		Subject   string `json:"subject"`
		Turns     []Turn `json:"turns"`
		StepCount int    `json:"step_count"`
		StepLimit int    `json:"step_limit"`
		Feedback  string `json:"feedback"`
	} `json:"record"`
	NextState       string `json:"next_state"`
	PendingQuestion string `json:"pending_question"`
}

// Transcript renders the turns one per line.
func (s *Session) Transcript() string {
	var b strings.Builder
	for _, turn := range s.Record.Turns {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
	}
	return b.String()
}

// Problem is an RFC 7807 error body returned by the API.
type Problem struct {
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail"`
	Errors map[string]string `json:"errors"`
}

func (p *Problem) Error() string {
	msg := fmt.Sprintf("%d %s", p.Status, p.Title)
	if p.Detail != "" {
		msg += ": " + p.Detail
	}
	for field, reason := range p.Errors {
		msg += fmt.Sprintf("; %s: %s", field, reason)
	}
	return msg
}
