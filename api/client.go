// Package api is the typed client for the Uniteams platform API: study
// groups, tutor requests and session feedback. Every call is authenticated
// with the signed-in user's access token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/uniteams/uniteams/core"
	"github.com/uniteams/uniteams/core/auth"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
)

type (
	Options struct {
		BaseURL string

		// Tokens supplies the signed-in user's access token.
		Tokens auth.TokenSource

		HTTPClient *http.Client
		Logger     core.Logger
	}

	Client struct {
		baseURL string
		tokens  auth.TokenSource
		http    *http.Client
		log     core.Logger
	}
)

func NewClient(opts *Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = core.NewStdLogger(nil)
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		tokens:  opts.Tokens,
		http:    httpClient,
		log:     log,
	}
}

// study groups

func (c *Client) ListStudyGroups(ctx context.Context, course string) ([]StudyGroup, error) {
	path := "/v1/groups"
	if course != "" {
		path += "?course=" + url.QueryEscape(course)
	}
	var groups []StudyGroup
	if err := c.do(ctx, http.MethodGet, path, nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *Client) CreateStudyGroup(ctx context.Context, ng NewStudyGroup) (StudyGroup, error) {
	var group StudyGroup
	if err := ng.Validate(); err != nil {
		return group, err
	}
	err := c.do(ctx, http.MethodPost, "/v1/groups", ng, &group)
	return group, err
}

func (c *Client) JoinStudyGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "/v1/groups/"+url.PathEscape(groupID)+"/join", nil, nil)
}

func (c *Client) LeaveStudyGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "/v1/groups/"+url.PathEscape(groupID)+"/leave", nil, nil)
}

// tutor requests

func (c *Client) ApplyAsTutor(ctx context.Context, nr NewTutorRequest) (TutorRequest, error) {
	var req TutorRequest
	if err := nr.Validate(); err != nil {
		return req, err
	}
	err := c.do(ctx, http.MethodPost, "/v1/tutor-requests", nr, &req)
	return req, err
}

// ListTutorRequests returns pending applications; coordinators only.
func (c *Client) ListTutorRequests(ctx context.Context) ([]TutorRequest, error) {
	var reqs []TutorRequest
	if err := c.do(ctx, http.MethodGet, "/v1/tutor-requests", nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// ReviewTutorRequest approves or rejects an application; coordinators only.
func (c *Client) ReviewTutorRequest(ctx context.Context, requestID string, decision ReviewDecision) (TutorRequest, error) {
	var req TutorRequest
	err := c.do(ctx, http.MethodPost, "/v1/tutor-requests/"+url.PathEscape(requestID)+"/review", decision, &req)
	return req, err
}

// feedback

func (c *Client) SubmitFeedback(ctx context.Context, nf NewFeedback) (Feedback, error) {
	var fb Feedback
	if err := nf.Validate(); err != nil {
		return fb, err
	}
	err := c.do(ctx, http.MethodPost, "/v1/feedback", nf, &fb)
	return fb, err
}

// transport

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, ok := c.tokens()
	if !ok {
		return auth.ErrNotAuthenticated
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "platform API unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return parseAPIError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "decoding response")
		}
	}
	return nil
}

func parseAPIError(status int, data []byte) error {
	switch status {
	case http.StatusUnauthorized:
		return auth.ErrNotAuthenticated
	case http.StatusForbidden:
		return ErrPermissionDenied
	case http.StatusNotFound:
		return ErrNotFound
	}

	// field errors come back as {"field": "message", ...}
	if status == http.StatusBadRequest {
		var fields map[string]string
		if err := json.Unmarshal(data, &fields); err == nil && len(fields) > 0 {
			fieldErrs := make([]core.FieldError, 0, len(fields))
			for field, msg := range fields {
				fieldErrs = append(fieldErrs, core.FieldError{Field: field, Error: msg})
			}
			return core.NewValidationError(errors.New("invalid input"), fieldErrs...)
		}
	}

	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(data, &body)
	if body.Error != "" {
		return fmt.Errorf("platform API: %s (status %d)", body.Error, status)
	}
	return fmt.Errorf("platform API: %s", http.StatusText(status))
}
