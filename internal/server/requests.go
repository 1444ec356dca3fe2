package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mitchellh/mapstructure"

	"github.com/spigell/ai-interviewer/internal/interview"
	"github.com/spigell/ai-interviewer/internal/utils"
)

const (
	maxBodyBytes    = 64 << 10
	maxSubjectRunes = 200
	maxAnswerRunes  = 8000

	// Multipart starts may carry a cv file part. It is discarded, but the
	// body still has to be read.
	maxMultipartBytes = 10 << 20
	multipartMemBytes = 1 << 20
)

type startRequest struct {
	JobTitle      string `json:"job_title" form:"job_title"`
	Subject       string `json:"subject" form:"subject"`
	InterviewType string `json:"interview_type" form:"interview_type"`
	Difficulty    string `json:"difficulty" form:"difficulty"`
	MaxSteps      int    `json:"max_steps" form:"max_steps"`
}

func (r *startRequest) normalize() {
	r.JobTitle = strings.TrimSpace(utils.FirstNonEmpty(r.JobTitle, r.Subject))
	r.Subject = ""
	r.InterviewType = strings.TrimSpace(utils.FirstNonEmpty(r.InterviewType, r.Difficulty))
	r.Difficulty = ""
}

func (r *startRequest) validate(maxSteps int) error {
	types := make([]any, 0, len(interview.InterviewTypes))
	for _, t := range interview.InterviewTypes {
		types = append(types, t)
	}

	return validation.ValidateStruct(r,
		validation.Field(&r.JobTitle, validation.Required, validation.RuneLength(1, maxSubjectRunes)),
		validation.Field(&r.InterviewType, validation.In(types...)),
		validation.Field(&r.MaxSteps, validation.Min(1), validation.Max(maxSteps)),
	)
}

// continueRequest accepts both the thread_id/user_response names used by the
// browser front end and session_id/answer.
type continueRequest struct {
	ThreadID     string `json:"thread_id" form:"thread_id"`
	SessionID    string `json:"session_id" form:"session_id"`
	UserResponse string `json:"user_response" form:"user_response"`
	Answer       string `json:"answer" form:"answer"`
}

func (r *continueRequest) normalize() {
	r.SessionID = strings.TrimSpace(utils.FirstNonEmpty(r.SessionID, r.ThreadID))
	r.Answer = strings.TrimSpace(utils.FirstNonEmpty(r.Answer, r.UserResponse))
	r.ThreadID = ""
	r.UserResponse = ""
}

func (r *continueRequest) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SessionID, validation.Required),
		validation.Field(&r.Answer, validation.Required, validation.RuneLength(1, maxAnswerRunes)),
	)
}

// decodeRequest fills dst from a JSON body or from form values, depending on
// the request content type.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBytes)
		return decodeForm(r, dst)
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		return decodeForm(r, dst)
	default:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		return decodeJSON(r, dst)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &badRequestError{err: errors.New("request body is empty")}
		}
		return &badRequestError{err: fmt.Errorf("invalid JSON body: %w", err)}
	}
	return nil
}

func decodeForm(r *http.Request, dst any) error {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(multipartMemBytes)
		if r.MultipartForm != nil {
			// Only text fields are used; file parts are dropped.
			defer r.MultipartForm.RemoveAll()
		}
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return &badRequestError{err: fmt.Errorf("invalid form body: %w", err)}
	}

	values := make(map[string]any, len(r.PostForm))
	for key := range r.PostForm {
		values[key] = r.PostForm.Get(key)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		TagName:          "form",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build form decoder: %w", err)
	}

	if err := decoder.Decode(values); err != nil {
		return &badRequestError{err: fmt.Errorf("invalid form body: %w", err)}
	}
	return nil
}
