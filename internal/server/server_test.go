package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/ai-interviewer/internal/checkpoint"
	"github.com/spigell/ai-interviewer/internal/interview"
)

type countingGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *countingGenerator) GenerateContent(_ context.Context, _, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if strings.Contains(prompt, "feedback") {
		return "Good job.", nil
	}
	return fmt.Sprintf("Question %d?", g.calls), nil
}

func (g *countingGenerator) Model() string { return "counting" }

type pingStore struct {
	*checkpoint.Memory
	err error
}

func (p pingStore) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, opts Options) (*Server, *checkpoint.Memory) {
	t.Helper()

	store := checkpoint.NewMemory()
	driver := interview.NewDriver(interview.Options{MaxStepLimit: 5}, interview.Deps{
		Store:     store,
		Generator: &countingGenerator{},
	})

	return New(driver, store, opts, zap.NewNop(), nil), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func startWithForm(t *testing.T, h http.Handler, values url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/start_interview", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestInterviewOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := startWithForm(t, srv, url.Values{"job_title": {"Backend Engineer"}, "max_steps": {"2"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	started := decodeBody[map[string]any](t, rec)
	if started["thread_id"] != started["session_id"] || started["thread_id"] == "" {
		t.Fatalf("expected matching thread and session ids: %v", started)
	}
	if started["status"] != "question" || started["current_step"] != float64(1) || started["max_steps"] != float64(2) {
		t.Fatalf("unexpected start body: %v", started)
	}

	id := started["thread_id"].(string)

	rec = doJSON(t, srv, http.MethodPost, "/continue_interview", map[string]string{
		"thread_id":     id,
		"user_response": "I like Go.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("continue: unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody[map[string]any](t, rec); body["status"] != "question" || body["current_step"] != float64(2) {
		t.Fatalf("unexpected continue body: %v", body)
	}

	rec = doJSON(t, srv, http.MethodPost, "/continue_interview", map[string]string{
		"session_id": id,
		"answer":     "I wrote a scheduler.",
	})
	final := decodeBody[map[string]any](t, rec)
	if final["status"] != "completed" || final["message"] != "Good job." {
		t.Fatalf("unexpected final body: %v", final)
	}

	rec = doJSON(t, srv, http.MethodPost, "/continue_interview", map[string]string{
		"session_id": id,
		"answer":     "one more",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for completed interview, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestStartAcceptsJSON(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := doJSON(t, srv, http.MethodPost, "/start_interview", map[string]any{
		"job_title":      "SRE",
		"interview_type": "Technical",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody[map[string]any](t, rec); body["max_steps"] != float64(interview.DefaultStepLimit) {
		t.Fatalf("expected default step limit, got %v", body)
	}
}

func TestStartAcceptsFrontEndFields(t *testing.T) {
	cv := bytes.Repeat([]byte("x"), 200<<10)

	cases := []struct {
		name  string
		build func(t *testing.T) *http.Request
	}{
		{
			name: "urlencoded difficulty",
			build: func(t *testing.T) *http.Request {
				values := url.Values{"job_title": {"Backend Engineer"}, "difficulty": {"Technical"}}
				req := httptest.NewRequest(http.MethodPost, "/start_interview", strings.NewReader(values.Encode()))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return req
			},
		},
		{
			name: "multipart with cv",
			build: func(t *testing.T) *http.Request {
				var body bytes.Buffer
				mw := multipart.NewWriter(&body)
				for key, value := range map[string]string{"job_title": "Backend Engineer", "difficulty": "Technical"} {
					if err := mw.WriteField(key, value); err != nil {
						t.Fatalf("write field: %v", err)
					}
				}
				part, err := mw.CreateFormFile("cv", "cv.pdf")
				if err != nil {
					t.Fatalf("create file part: %v", err)
				}
				if _, err := part.Write(cv); err != nil {
					t.Fatalf("write file part: %v", err)
				}
				if err := mw.Close(); err != nil {
					t.Fatalf("close multipart: %v", err)
				}

				req := httptest.NewRequest(http.MethodPost, "/start_interview", &body)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				return req
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, Options{DebugEndpoints: true})

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, tc.build(t))
			if rec.Code != http.StatusOK {
				t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
			}

			id := decodeBody[map[string]any](t, rec)["session_id"].(string)
			debug := decodeBody[map[string]any](t, doJSON(t, srv, http.MethodGet, "/debug/"+id, nil))
			record, _ := debug["record"].(map[string]any)
			if record["interview_type"] != "Technical" || record["subject"] != "Backend Engineer" {
				t.Fatalf("unexpected record: %v", debug)
			}
		})
	}
}

func TestStartValidation(t *testing.T) {
	cases := []struct {
		name   string
		values url.Values
		field  string
	}{
		{name: "missing title", values: url.Values{}, field: "job_title"},
		{name: "blank title", values: url.Values{"job_title": {"   "}}, field: "job_title"},
		{name: "unknown type", values: url.Values{"job_title": {"Dev"}, "interview_type": {"Trivia"}}, field: "interview_type"},
		{name: "too many steps", values: url.Values{"job_title": {"Dev"}, "max_steps": {"6"}}, field: "max_steps"},
		{name: "negative steps", values: url.Values{"job_title": {"Dev"}, "max_steps": {"-1"}}, field: "max_steps"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, store := newTestServer(t, Options{})

			rec := startWithForm(t, srv, tc.values)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}

			body := decodeBody[map[string]any](t, rec)
			errs, ok := body["errors"].(map[string]any)
			if !ok || errs[tc.field] == nil {
				t.Fatalf("expected error for %s, got %v", tc.field, body)
			}
			if store.Len() != 0 {
				t.Fatal("rejected request created a session")
			}
		})
	}
}

func TestStartRejectsMalformedBodies(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	cases := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "broken json", body: `{"job_title":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/start_interview", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestContinueErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{name: "unknown session", body: map[string]string{"thread_id": "nope", "user_response": "hi"}, want: http.StatusNotFound},
		{name: "missing answer", body: map[string]string{"thread_id": "nope"}, want: http.StatusBadRequest},
		{name: "missing session", body: map[string]string{"answer": "hi"}, want: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/continue_interview", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDebugEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Options{DebugEndpoints: true})

	started := decodeBody[map[string]any](t, startWithForm(t, srv, url.Values{"job_title": {"Dev"}}))
	id := started["session_id"].(string)

	rec := doJSON(t, srv, http.MethodGet, "/debug/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	body := decodeBody[map[string]any](t, rec)
	if body["next_state"] != string(interview.StateAskingFollowup) || body["pending_question"] != "Question 1?" {
		t.Fatalf("unexpected debug body: %v", body)
	}

	if rec := doJSON(t, srv, http.MethodGet, "/debug/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}

	hidden, _ := newTestServer(t, Options{})
	if rec := doJSON(t, hidden, http.MethodGet, "/debug/"+id, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected debug route to be disabled, got %d", rec.Code)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	store := checkpoint.NewMemory()
	driver := interview.NewDriver(interview.Options{}, interview.Deps{Store: store})

	healthy := New(driver, pingStore{Memory: store}, Options{}, nil, nil)
	if rec := doJSON(t, healthy, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := doJSON(t, healthy, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}

	broken := New(driver, pingStore{Memory: store, err: errors.New("down")}, Options{}, nil, nil)
	if rec := doJSON(t, broken, http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsRouteAndCORS(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	srv, _ := newTestServer(t, Options{MetricsHandler: metrics, CORSOrigins: []string{"http://localhost:8501"}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Origin", "http://localhost:8501")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Body.String() != "# metrics" {
		t.Fatalf("unexpected metrics body %q", rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8501" {
		t.Fatalf("unexpected CORS header %q", got)
	}
}

type panickyDriver struct {
	Interviewer
}

func (panickyDriver) MaxStepLimit() int { return 3 }

func (panickyDriver) Begin(context.Context, interview.StartParams) (*interview.Reply, error) {
	panic("boom")
}

func (panickyDriver) Resume(context.Context, string, string) (*interview.Reply, error) {
	return nil, errors.New("redis: connection refused")
}

func TestRecoveryAndInternalErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	srv := New(panickyDriver{}, nil, Options{}, zap.New(core), nil)

	rec := startWithForm(t, srv, url.Values{"job_title": {"Dev"}})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatal("expected panic to be logged")
	}

	rec = doJSON(t, srv, http.MethodPost, "/continue_interview", map[string]string{"session_id": "a", "answer": "b"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "redis") {
		t.Fatalf("internal error text leaked: %s", rec.Body.String())
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx, "127.0.0.1:0")
	}()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}
