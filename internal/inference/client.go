package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vehicle-anpr/internal/domain/anpr"
)

const (
	DefaultBaseURL = "https://detect.roboflow.com"
	DefaultTimeout = 15 * time.Second

	maxErrorBody = 512
)

// Detector runs one hosted object-detection model against an image.
type Detector interface {
	Detect(ctx context.Context, model, imageBase64 string) (anpr.PredictionList, []byte, error)
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to a Roboflow-compatible hosted inference API. The image goes
// in the body as un-prefixed base64 with a form-encoded content type.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Detect posts the image to the model endpoint. Any transport error, non-2xx
// status or undecodable body is a ServiceUnreachable error. The raw response
// body is returned alongside the decoded predictions.
func (c *Client) Detect(ctx context.Context, model, imageBase64 string) (anpr.PredictionList, []byte, error) {
	var list anpr.PredictionList
	op := "detect " + model

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s?api_key=%s", c.baseURL, model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(imageBase64))
	if err != nil {
		return list, nil, anpr.NewError(anpr.KindServiceUnreachable, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return list, nil, ctx.Err()
		}
		// the url.Error message would carry the api key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return list, nil, anpr.NewError(anpr.KindServiceUnreachable, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return list, nil, anpr.NewError(anpr.KindServiceUnreachable, op, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return list, nil, anpr.NewError(anpr.KindServiceUnreachable, op,
			fmt.Errorf("non-OK response %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if err := json.Unmarshal(body, &list); err != nil {
		return list, nil, anpr.NewError(anpr.KindServiceUnreachable, op, fmt.Errorf("decode predictions: %w", err))
	}
	return list, body, nil
}
