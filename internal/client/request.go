package client

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
)

func (c *Client) start(jobTitle, interviewType string, maxSteps int) (*Reply, error) {
	data := map[string]string{"job_title": jobTitle}
	if interviewType != "" {
		data["interview_type"] = interviewType
	}
	if maxSteps > 0 {
		data["max_steps"] = strconv.Itoa(maxSteps)
	}

	var reply Reply
	if err := c.postFormData(c.APIURL+startPath, data, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) postAnswer(sessionID, answer string) (*Reply, error) {
	payload, err := json.Marshal(map[string]string{
		"thread_id":     sessionID,
		"user_response": answer,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.APIURL+continuePath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	var reply Reply
	if err := c.do(req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) postFormData(url string, data map[string]string, target any) error {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for key, val := range data {
		field, err := w.CreateFormField(key)
		if err != nil {
			return err
		}

		_, err = io.Copy(field, strings.NewReader(val))
		if err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, url, &b)
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.do(req, target)
}

func (c *Client) getJSON(url string, target any) error {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	return c.do(req, target)
}

// do sends the request and decodes a 200 body into target. Other statuses are
// returned as *Problem when the body carries one.
func (c *Client) do(req *http.Request, target any) error {
	c.logger.Debug("make request", zap.String("method", req.Method), zap.String("url", req.URL.String()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var problem Problem
		if err := json.Unmarshal(data, &problem); err == nil && problem.Status != 0 {
			return &problem
		}
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	if target == nil {
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", contentType)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

// IsStatus reports whether err is an API problem with the given HTTP status.
func IsStatus(err error, status int) bool {
	var problem *Problem
	return errors.As(err, &problem) && problem.Status == status
}
