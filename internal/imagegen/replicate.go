// Package imagegen generates images through the Replicate predictions API.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "black-forest-labs/flux-schnell"

var (
	// ErrNotConfigured is returned when no API token is set.
	ErrNotConfigured = errors.New("imagegen: api token not configured")
	// ErrFailed covers failed or cancelled predictions, transport errors and
	// unexpected output shapes.
	ErrFailed = errors.New("imagegen: generation failed")
)

// Result is a finished prediction.
type Result struct {
	ID       string
	ImageURL string
}

// Replicate runs predictions synchronously, polling when the API returns
// before the prediction has finished.
type Replicate struct {
	base     string
	token    string
	model    string
	http     *http.Client
	interval time.Duration
}

// NewReplicate builds a generator. An empty base uses the public endpoint and
// an empty model uses DefaultModel.
func NewReplicate(base, token, model string, timeout time.Duration) *Replicate {
	if base == "" {
		base = "https://api.replicate.com"
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Replicate{
		base:     strings.TrimRight(base, "/"),
		token:    token,
		model:    model,
		http:     &http.Client{Timeout: timeout},
		interval: time.Second,
	}
}

type predictionInput struct {
	Prompt     string `json:"prompt"`
	NumOutputs int    `json:"num_outputs"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// Generate creates a prediction for prompt and waits for its output URL.
func (r *Replicate) Generate(ctx context.Context, prompt string) (*Result, error) {
	if r.token == "" {
		return nil, ErrNotConfigured
	}
	payload, err := json.Marshal(map[string]any{
		"input": predictionInput{Prompt: prompt, NumOutputs: 1, Width: 1024, Height: 1024},
	})
	if err != nil {
		return nil, err
	}

	body, err := r.do(ctx, http.MethodPost, r.base+"/v1/models/"+r.model+"/predictions", payload)
	if err != nil {
		return nil, err
	}
	for {
		pred := gjson.ParseBytes(body)
		switch pred.Get("status").String() {
		case "succeeded":
			url := outputURL(pred.Get("output"))
			if url == "" {
				return nil, fmt.Errorf("%w: unexpected output %s", ErrFailed, pred.Get("output").Raw)
			}
			return &Result{ID: pred.Get("id").String(), ImageURL: url}, nil
		case "failed", "canceled":
			return nil, fmt.Errorf("%w: %s", ErrFailed, pred.Get("error").String())
		}

		poll := pred.Get("urls.get").String()
		if poll == "" {
			return nil, fmt.Errorf("%w: prediction %q has no poll url", ErrFailed, pred.Get("id").String())
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrFailed, ctx.Err())
		case <-time.After(r.interval):
		}
		if body, err = r.do(ctx, http.MethodGet, poll, nil); err != nil {
			return nil, err
		}
	}
}

// outputURL accepts a string, an array of strings or an object with url.
func outputURL(out gjson.Result) string {
	switch {
	case out.IsArray():
		return out.Get("0").String()
	case out.IsObject():
		return out.Get("url").String()
	default:
		return out.String()
	}
}

func (r *Replicate) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Prefer", "wait")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFailed, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrFailed, resp.StatusCode, gjson.GetBytes(body, "detail").String())
	}
	return body, nil
}
