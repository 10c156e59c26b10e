// Package client is a typed HTTP client for the exam API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type Client struct {
	base  string
	http  *http.Client
	token string
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func New(cfg Config) *Client {
	h := &http.Client{Timeout: 30 * time.Second}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{base: strings.TrimRight(cfg.BaseURL, "/"), http: h, token: cfg.Token}
}

// WithHTTPClient swaps the underlying transport, e.g. for httptest servers.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

func (c *Client) Token() string { return c.token }

// APIError is a non-2xx response. It unwraps to the matching apperrors
// sentinel so callers can use errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return apperrors.ErrValidationFailed
	case http.StatusUnauthorized:
		return apperrors.ErrUnauthenticated
	case http.StatusForbidden:
		return apperrors.ErrPermissionDenied
	case http.StatusNotFound:
		return apperrors.ErrResourceNotFound
	case http.StatusConflict:
		return apperrors.ErrConflict
	}
	return nil
}

type LoginResult struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	Role        string `json:"role"`
	UserID      string `json:"user_id"`
}

// Login authenticates and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var out LoginResult
	_, err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username, "password": password,
	}, &out)
	if err != nil {
		return LoginResult{}, err
	}
	c.token = out.AccessToken
	return out, nil
}

func (c *Client) ListExams(ctx context.Context, q string, limit, offset int) ([]exam.ExamSummary, error) {
	p := url.Values{}
	if q != "" {
		p.Set("q", q)
	}
	if limit > 0 {
		p.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		p.Set("offset", strconv.Itoa(offset))
	}
	var out []exam.ExamSummary
	_, err := c.do(ctx, http.MethodGet, withQuery("/exams", p), nil, &out)
	return out, err
}

func (c *Client) GetExam(ctx context.Context, id string) (exam.Exam, error) {
	var out exam.Exam
	_, err := c.do(ctx, http.MethodGet, "/exams/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) PutExam(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	var out exam.Exam
	_, err := c.do(ctx, http.MethodPost, "/exams", e, &out)
	return out, err
}

// StartAttempt creates or resumes the caller's attempt. created is false
// when an in-progress attempt was resumed.
func (c *Client) StartAttempt(ctx context.Context, examID string) (view exam.AttemptView, created bool, err error) {
	status, err := c.do(ctx, http.MethodPost, "/exams/"+url.PathEscape(examID)+"/attempts", nil, &view)
	return view, status == http.StatusCreated, err
}

func (c *Client) GetAttempt(ctx context.Context, id string) (exam.AttemptView, error) {
	var out exam.AttemptView
	_, err := c.do(ctx, http.MethodGet, "/attempts/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) SaveProgress(ctx context.Context, id string, p exam.ProgressUpdate) (exam.AttemptView, error) {
	var out exam.AttemptView
	_, err := c.do(ctx, http.MethodPut, "/attempts/"+url.PathEscape(id), p, &out)
	return out, err
}

func (c *Client) Submit(ctx context.Context, id string, req exam.SubmitRequest) (exam.AttemptView, error) {
	var out exam.AttemptView
	_, err := c.do(ctx, http.MethodPost, "/attempts/"+url.PathEscape(id)+"/submit", req, &out)
	return out, err
}

func (c *Client) Abandon(ctx context.Context, id string) (exam.AttemptView, error) {
	var out exam.AttemptView
	_, err := c.do(ctx, http.MethodPost, "/attempts/"+url.PathEscape(id)+"/abandon", nil, &out)
	return out, err
}

func (c *Client) ListAttempts(ctx context.Context, opts exam.AttemptListOpts) ([]exam.Attempt, error) {
	p := url.Values{}
	if opts.ExamID != "" {
		p.Set("exam_id", opts.ExamID)
	}
	if opts.StudentID != "" {
		p.Set("student_id", opts.StudentID)
	}
	if opts.Status != "" {
		p.Set("status", string(opts.Status))
	}
	if opts.Limit > 0 {
		p.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		p.Set("offset", strconv.Itoa(opts.Offset))
	}
	var out []exam.Attempt
	_, err := c.do(ctx, http.MethodGet, withQuery("/attempts", p), nil, &out)
	return out, err
}

func withQuery(path string, p url.Values) string {
	if len(p) == 0 {
		return path
	}
	return path + "?" + p.Encode()
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil && err != io.EOF {
		return res.StatusCode, fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if res.StatusCode/100 != 2 {
		apiErr := &APIError{Status: res.StatusCode, Message: res.Status}
		if env.Error != "" {
			apiErr.Message = env.Error
		}
		apiErr.Code, apiErr.Details = env.Code, env.Details
		return res.StatusCode, apiErr
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return res.StatusCode, fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return res.StatusCode, nil
}
