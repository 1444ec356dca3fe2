// Package client talks to the interview HTTP API. It backs the terminal
// front end.
package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultURL       = "http://localhost:8000"
	defaultUserAgent = "ai-interviewer-chat"

	startPath    = "/start_interview"
	continuePath = "/continue_interview"
	debugPath    = "/debug/"
)

type Client struct {
	// ctx used only for http requests right now
	ctx        context.Context
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

// New returns a client for the API served at apiURL. Generating a question can
// take several provider retries, so the timeout is generous.
func New(ctx context.Context, logger *zap.Logger, apiURL string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if apiURL == "" {
		apiURL = defaultURL
	}

	return &Client{
		ctx:    ctx,
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		UserAgent: defaultUserAgent,
		APIURL:    apiURL,
	}
}

// Start opens a new interview for jobTitle. maxSteps of zero uses the server default.
func (c *Client) Start(jobTitle, interviewType string, maxSteps int) (*Reply, error) {
	return c.start(jobTitle, interviewType, maxSteps)
}

// Continue sends the candidate's answer for the session.
func (c *Client) Continue(sessionID, answer string) (*Reply, error) {
	return c.postAnswer(sessionID, answer)
}

// Session fetches the stored record of a session from the debug endpoint.
func (c *Client) Session(sessionID string) (*Session, error) {
	var session Session
	if err := c.getJSON(c.APIURL+debugPath+url.PathEscape(sessionID), &session); err != nil {
		return nil, err
	}
	return &session, nil
}
