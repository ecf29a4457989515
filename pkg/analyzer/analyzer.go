package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"
)

// Error kinds, distinguishing retry-worthy transient failures from
// permanent rejections.
const (
	KindUnavailable = "unavailable" // connection refused, DNS, failed health probe
	KindTimeout     = "timeout"
	KindRejected    = "rejected" // 4xx: too large, unauthorized, bad input
	KindRemote      = "remote"   // 5xx
)

// Error is a classified analyzer failure.
type Error struct {
	Kind    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("analyzer %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("analyzer %s: %s", e.Kind, e.Message)
}

// Retryable reports whether resubmitting the same input could succeed.
func (e *Error) Retryable() bool {
	return e.Kind != KindRejected
}

// Classify extracts the analyzer error kind, treating unclassified errors
// as unavailable.
func Classify(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: KindUnavailable, Message: err.Error()}
}

type Request struct {
	Image      []byte
	Filename   string
	UserEmail  string
	AnalysisID string
	Keywords   []string
	Deep       bool // deep/batch analysis runs under the longer timeout
}

type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type Result struct {
	Confidence   float64      // normalized to [0,1]
	ProcessingMS int64
	Predictions  []Prediction
}

// Client talks to the external analysis service.
type Client struct {
	baseURL            string
	http               *http.Client
	interactiveTimeout time.Duration
	deepTimeout        time.Duration
	healthTimeout      time.Duration
}

func New(baseURL string, interactive, deep, health time.Duration) *Client {
	return &Client{
		baseURL:            strings.TrimRight(baseURL, "/"),
		http:               &http.Client{},
		interactiveTimeout: interactive,
		deepTimeout:        deep,
		healthTimeout:      health,
	}
}

// Health probes GET /health as a fast-fail check before the full dispatch.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return &Error{Kind: KindUnavailable, Message: err.Error()}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindUnavailable, Status: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}

// Analyze posts the artifact as multipart and returns the normalized
// result. Timeouts, connection errors and non-2xx responses all come back
// as a classified *Error.
func (c *Client) Analyze(ctx context.Context, r Request) (*Result, error) {
	timeout := c.interactiveTimeout
	if r.Deep {
		timeout = c.deepTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	filename := r.Filename
	if filename == "" {
		filename = "input.jpg"
	}
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: err.Error()}
	}
	if _, err := part.Write(r.Image); err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: err.Error()}
	}
	_ = w.WriteField("user_email", r.UserEmail)
	_ = w.WriteField("analysis_id", r.AnalysisID)
	if len(r.Keywords) > 0 {
		_ = w.WriteField("keywords", strings.Join(r.Keywords, ","))
	}
	if err := w.Close(); err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", &buf)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: err.Error()}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classifyTransport(err)
	}
	if resp.StatusCode >= 500 {
		return nil, &Error{Kind: KindRemote, Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{Kind: KindRejected, Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return parseResult(body)
}

func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "analysis timed out"}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Message: "analysis timed out"}
	}
	return &Error{Kind: KindUnavailable, Message: err.Error()}
}

// parseResult accepts both response shapes the service has been observed
// to return: a flat result object or a predictions array. Confidence may
// arrive on a 0..1 or 0..100 scale and is normalized to [0,1].
func parseResult(body []byte) (*Result, error) {
	var raw struct {
		Confidence     float64      `json:"confidence"`
		ProcessingTime float64      `json:"processing_time"` // seconds
		ProcessingMS   int64        `json:"processing_ms"`
		Predictions    []Prediction `json:"predictions"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Kind: KindRemote, Message: "malformed analyzer response"}
	}
	res := &Result{Predictions: raw.Predictions}
	res.Confidence = raw.Confidence
	if res.Confidence == 0 && len(raw.Predictions) > 0 {
		for _, p := range raw.Predictions {
			if p.Confidence > res.Confidence {
				res.Confidence = p.Confidence
			}
		}
	}
	res.Confidence = normalizeConfidence(res.Confidence)
	for i := range res.Predictions {
		res.Predictions[i].Confidence = normalizeConfidence(res.Predictions[i].Confidence)
	}
	if raw.ProcessingMS > 0 {
		res.ProcessingMS = raw.ProcessingMS
	} else {
		res.ProcessingMS = int64(raw.ProcessingTime * 1000)
	}
	return res, nil
}

func normalizeConfidence(v float64) float64 {
	if v > 1 {
		v = v / 100
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}
