package interview

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

const (
	placeholderSubject       = "{{SUBJECT}}"
	placeholderInterviewType = "{{INTERVIEW_TYPE}}"
	placeholderHistory       = "{{HISTORY}}"

	defaultInterviewType = "Mixed"
)

// InterviewTypes lists the interview flavours offered to candidates.
var InterviewTypes = []string{"Behavioral", "Technical", "System Design", defaultInterviewType}

// Prompts holds the templates used for each generation step.
type Prompts struct {
	System   string `yaml:"system"`
	Opening  string `yaml:"opening"`
	Followup string `yaml:"followup"`
	Feedback string `yaml:"feedback"`
}

// DefaultPrompts returns the embedded templates.
func DefaultPrompts() Prompts {
	var p Prompts
	if err := yaml.Unmarshal(defaultPromptsYAML, &p); err != nil {
		panic(fmt.Sprintf("embedded prompts are invalid: %v", err))
	}
	return p
}

// LoadPrompts returns the embedded templates overlaid with the non-empty
// templates found in path. An empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()

	path = strings.TrimSpace(path)
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompts file: %w", err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return prompts, fmt.Errorf("parse prompts file %s: %w", path, err)
	}

	if strings.TrimSpace(override.System) != "" {
		prompts.System = override.System
	}
	if strings.TrimSpace(override.Opening) != "" {
		prompts.Opening = override.Opening
	}
	if strings.TrimSpace(override.Followup) != "" {
		prompts.Followup = override.Followup
	}
	if strings.TrimSpace(override.Feedback) != "" {
		prompts.Feedback = override.Feedback
	}

	return prompts, nil
}

func (p Prompts) opening(r *Record) string {
	return render(p.Opening, r)
}

func (p Prompts) followup(r *Record) string {
	return render(p.Followup, r)
}

func (p Prompts) feedback(r *Record) string {
	return render(p.Feedback, r)
}

func render(template string, r *Record) string {
	interviewType := r.InterviewType
	if interviewType == "" {
		interviewType = defaultInterviewType
	}

	out := strings.ReplaceAll(template, placeholderSubject, r.Subject)
	out = strings.ReplaceAll(out, placeholderInterviewType, interviewType)
	out = strings.ReplaceAll(out, placeholderHistory, r.History())
	return strings.TrimSpace(out)
}
