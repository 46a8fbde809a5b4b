// Package crm provides an AlfaCRM API client with token caching and
// customer lookup by phone number.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	loginPath         = "/v2api/auth/login"
	customerIndexPath = "/v2api/3/customer/index"
	tokenTTL          = 12 * time.Hour
	requestTimeout    = 20 * time.Second
)

// ErrCustomerNotFound is returned when no customer matches the phone.
var ErrCustomerNotFound = errors.New("customer not found")

// Customer holds the fields the bot presents from a CRM record.
type Customer struct {
	LegalName       string   `json:"legal_name"`
	Balance         *float64 `json:"balance"`
	PaidLessonCount *int     `json:"paid_lesson_count"`
}

// Client is an AlfaCRM API client. The auth token is shared across all
// callers and refreshed under a single mutex: at most one login is in
// flight at a time, concurrent callers wait for it.
type Client struct {
	baseURL string
	email   string
	apiKey  string
	client  *http.Client

	mu      sync.Mutex
	token   string
	tokenAt time.Time
}

// New creates an AlfaCRM client. baseURL is the CRM host, without the
// /v2api suffix.
func New(baseURL, email, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   email,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// CustomerByPhone looks up a customer by a normalized 7XXXXXXXXXX phone.
// On an auth failure the cached token is dropped and the request retried
// once with a fresh login; other failures are not retried.
func (c *Client) CustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := c.postCustomerIndex(ctx, token, phone)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.invalidateToken()
		token, err = c.getToken(ctx)
		if err != nil {
			return nil, err
		}
		status, body, err = c.postCustomerIndex(ctx, token, phone)
		if err != nil {
			return nil, err
		}
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("customer/index failed: HTTP %d: %s", status, body)
	}

	var resp struct {
		Items []Customer `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode customer/index response: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, ErrCustomerNotFound
	}
	return &resp.Items[0], nil
}

// getToken returns the cached token while it is fresh, otherwise logs in.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Since(c.tokenAt) < tokenTTL {
		return c.token, nil
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.tokenAt = time.Now()
	return token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenAt = time.Time{}
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"email":   c.email,
		"api_key": c.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: HTTP %d: %s", resp.StatusCode, body)
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if data.Token == "" {
		return "", fmt.Errorf("login response has no token")
	}
	return data.Token, nil
}

func (c *Client) postCustomerIndex(ctx context.Context, token, phone string) (int, []byte, error) {
	payload, err := json.Marshal(map[string]string{"phone": phone})
	if err != nil {
		return 0, nil, fmt.Errorf("marshal customer/index payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+customerIndexPath, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create customer/index request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ALFACRM-TOKEN", token)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("customer/index request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read customer/index response: %w", err)
	}
	return resp.StatusCode, body, nil
}
