package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const DefaultHTTPTimeout = 10 * time.Second

// apiClient is the JSON-over-HTTPS plumbing shared by the providers.
type apiClient struct {
	baseURL  string
	http     *http.Client
	provider string
	auth     func(req *http.Request)
}

func newAPIClient(provider, baseURL string, timeout time.Duration, auth func(req *http.Request)) *apiClient {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &apiClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		provider: provider,
		auth:     auth,
	}
}

type apiError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description"`
	Error       *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (e apiError) text() string {
	switch {
	case e.Error != nil && e.Error.Description != "":
		return e.Error.Description
	case e.Message != "":
		return e.Message
	default:
		return e.Description
	}
}

// do sends in as JSON (if non-nil) and decodes the response into out (if non-nil).
func (c *apiClient) do(ctx context.Context, method, path string, in, out any, headers map[string]string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.auth != nil {
		c.auth(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrGatewayUnavailable, c.provider, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s %s: status=%d", ErrGatewayUnavailable, c.provider, path, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		_ = json.Unmarshal(raw, &ae)
		return fmt.Errorf("%w: %s %s: status=%d %s", ErrGatewayRejected, c.provider, path, resp.StatusCode, ae.text())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", c.provider, path, err)
	}
	return nil
}

// formatMajor renders paise as a rupee decimal, e.g. 9900 -> "99.00".
func formatMajor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// parseMajor converts a decimal rupee string to paise without going through
// float arithmetic.
func parseMajor(s string) (int64, error) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if s == "" {
		return 0, errors.New("empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		if strings.Trim(frac[2:], "0") != "" {
			return 0, fmt.Errorf("amount %q has sub-paise precision", s)
		}
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if strings.HasPrefix(whole, "-") {
		return w*100 - f, nil
	}
	return w*100 + f, nil
}
