package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/ai-interviewer/internal/interview"
	"github.com/spigell/ai-interviewer/internal/logger"
)

// replyResponse is the wire form of a driver reply. thread_id mirrors
// session_id for older clients.
type replyResponse struct {
	ThreadID string `json:"thread_id"`
	*interview.Reply
}

type debugResponse struct {
	Record          *interview.Record `json:"record"`
	NextState       interview.State   `json:"next_state"`
	PendingQuestion string            `json:"pending_question,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeRequest(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	req.normalize()
	if err := req.validate(s.driver.MaxStepLimit()); err != nil {
		s.fail(w, r, err)
		return
	}

	reply, err := s.driver.Begin(r.Context(), interview.StartParams{
		Subject:       req.JobTitle,
		InterviewType: req.InterviewType,
		StepLimit:     req.MaxSteps,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, replyResponse{ThreadID: reply.SessionID, Reply: reply})
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	var req continueRequest
	if err := decodeRequest(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	req.normalize()
	if err := req.validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	reply, err := s.driver.Resume(r.Context(), req.SessionID, req.Answer)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, replyResponse{ThreadID: reply.SessionID, Reply: reply})
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	rec, err := s.driver.Snapshot(r.Context(), r.PathValue("session_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	pending, _ := rec.PendingQuestion()
	respondJSON(w, http.StatusOK, debugResponse{
		Record:          rec,
		NextState:       rec.State,
		PendingQuestion: pending,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			respondProblem(w, problem{Status: http.StatusServiceUnavailable, Detail: "checkpoint store is unreachable"})
			return
		}
	}

	respondJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err)

	log := logger.WithFields(s.logger, zap.String("path", r.URL.Path), zap.Error(err))
	if p.Status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Info("request rejected", zap.Int("status", p.Status))
	}

	respondProblem(w, p)
}
