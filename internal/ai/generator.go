package ai

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/spigell/ai-interviewer/internal/utils"
	"go.uber.org/zap"
)

// ErrUnavailable is returned by generators that cannot produce text at all.
var ErrUnavailable = errors.New("text generation is unavailable")

// Generator produces text for a prompt. Implementations own their retry
// budget; an error means the budget is exhausted.
type Generator interface {
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// Request is a single text-generation call with its degrade path.
type Request struct {
	// Kind labels the call in logs and metrics (opening, followup, feedback).
	Kind     string
	System   string
	Prompt   string
	Fallback string
}

// Result is the outcome of Generate.
type Result struct {
	Text string
	// Degraded is set when Text is the fallback.
	Degraded bool
	// Err holds the generator error that caused the degrade, if any.
	Err error
}

// Generate calls the generator and substitutes req.Fallback when it fails or
// returns only whitespace. It never returns an error to the caller.
func Generate(ctx context.Context, gen Generator, req Request, logger *zap.Logger, maxLogLen int) Result {
	if logger == nil {
		logger = zap.NewNop()
	}

	if gen == nil {
		return Result{Text: req.Fallback, Degraded: true, Err: ErrUnavailable}
	}

	logger.Debug("generate content request",
		zap.String("kind", req.Kind),
		zap.Int("prompt_length", utf8.RuneCountInString(req.Prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(req.Prompt, maxLogLen)),
	)

	text, err := gen.GenerateContent(ctx, req.System, req.Prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		logger.Warn("text generation failed, using fallback",
			zap.String("kind", req.Kind),
			zap.Error(err),
		)
		return Result{Text: req.Fallback, Degraded: true, Err: err}
	}

	text = strings.TrimSpace(text)
	logger.Debug("generate content response",
		zap.String("kind", req.Kind),
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", utils.TruncateForLog(text, maxLogLen)),
	)

	return Result{Text: text}
}

// Offline is a Generator that never produces text. Every interview message
// becomes the configured fallback.
type Offline struct{}

func (Offline) GenerateContent(context.Context, string, string) (string, error) {
	return "", ErrUnavailable
}

func (Offline) Model() string { return "offline" }
