package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.line.me"

// APIError is a non-2xx answer from the LINE platform.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LINE API error %d: %s", e.StatusCode, e.Message)
}

// Client talks to the LINE Messaging and Login APIs.
type Client struct {
	baseURL        string
	channelToken   string // Messaging API channel access token
	loginChannelID string // LINE Login channel, audience of ID tokens
	httpClient     *http.Client
	limiter        *rate.Limiter
}

// NewClient creates a client. baseURL may be empty for the public API.
func NewClient(baseURL, channelToken string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		channelToken: channelToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IsConfigured returns true if the client can push messages
func (c *Client) IsConfigured() bool {
	return c.channelToken != ""
}

// SetLoginChannelID enables ID token verification.
func (c *Client) SetLoginChannelID(id string) {
	c.loginChannelID = id
}

// SetRateLimit caps pushes per second. Zero or less removes the cap.
func (c *Client) SetRateLimit(perSec float64) {
	if perSec <= 0 {
		c.limiter = nil
		return
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// doRequest performs an HTTP request with a bearer token
func (c *Client) doRequest(ctx context.Context, method, path, token string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var ae apiError
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &ae) == nil && ae.text() != "" {
			msg = ae.text()
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return respBody, nil
}

// Push sends a single text message to a LINE user.
func (c *Client) Push(ctx context.Context, to, text string) error {
	if !c.IsConfigured() {
		return errors.New("LINE channel access token is not set")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	payload, err := json.Marshal(PushRequest{
		To:       to,
		Messages: []TextMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}

	if _, err := c.doRequest(ctx, http.MethodPost, "/v2/bot/message/push", c.channelToken, bytes.NewReader(payload), "application/json"); err != nil {
		return fmt.Errorf("push to %s: %w", to, err)
	}
	return nil
}

// GetProfile resolves a user access token.
func (c *Client) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/v2/profile", accessToken, nil, "")
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &p, nil
}

// VerifyIDToken checks an ID token against the login channel.
func (c *Client) VerifyIDToken(ctx context.Context, idToken string) (*IDTokenClaims, error) {
	if c.loginChannelID == "" {
		return nil, errors.New("LINE login channel id is not set")
	}
	form := url.Values{}
	form.Set("id_token", idToken)
	form.Set("client_id", c.loginChannelID)

	data, err := c.doRequest(ctx, http.MethodPost, "/oauth2/v2.1/verify", "",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	var claims IDTokenClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal verify: %w", err)
	}
	return &claims, nil
}
