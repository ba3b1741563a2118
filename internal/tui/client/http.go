package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/proctorai/proctor/internal/proctor"
)

// HTTPClient makes REST calls to the proctor server.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Health fetches /api/health.
func (c *HTTPClient) Health() (*Health, error) {
	var h Health
	if err := c.do(http.MethodGet, "/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Action posts one of start, stop, reset, examiner or warning to a session
// and returns the resulting state.
func (c *HTTPClient) Action(sessionID, action string) (*proctor.State, error) {
	var st proctor.State
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/" + action
	if err := c.do(http.MethodPost, path, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) do(method, path string, out interface{}) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, string(body))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
