package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ModuleGrant mirrors the server's per-module grant shape as delivered by
// the verify endpoint.
type ModuleGrant struct {
	Enabled bool     `json:"enabled"`
	Actions []string `json:"actions"`
}

// User is the sanitized account the server returns.  Permissions carries the
// role's current module grants when the payload came from verify.
type User struct {
	ID                 uint64                 `json:"id"`
	Email              string                 `json:"email"`
	Mobile             string                 `json:"mobile"`
	FullName           string                 `json:"fullName"`
	Role               string                 `json:"role"`
	MustChangePassword bool                   `json:"mustChangePassword"`
	Permissions        map[string]ModuleGrant `json:"permissions,omitempty"`
}

// AuthResult is the login/register response body.
type AuthResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// TokenPair is the refresh response body.
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// API is the auth endpoint layer as seen from the client.  *Client is the
// HTTP implementation; tests substitute fakes and failure injectors.
type API interface {
	Login(ctx context.Context, email, password string) (AuthResult, error)
	Verify(ctx context.Context, accessToken string) (User, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

// Client talks JSON to the EVCORE auth endpoints.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a Client with a bounded default timeout so a dead backend
// fails over to the local fallback path instead of hanging the caller.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return AuthResult{}, err
	}
	if out.Token == "" || out.User.Role == "" {
		return AuthResult{}, fmt.Errorf("login: malformed response")
	}
	return out, nil
}

func (c *Client) Verify(ctx context.Context, accessToken string) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/api/auth/verify", accessToken, nil, &out)
	if err != nil {
		return User{}, err
	}
	// A 200 without a usable user object is a failure, not a success.
	if out.User.ID == 0 || out.User.Role == "" {
		return User{}, fmt.Errorf("verify: malformed response")
	}
	return out.User, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var out TokenPair
	err := c.do(ctx, http.MethodPost, "/api/auth/refresh", "",
		map[string]string{"refreshToken": refreshToken}, &out)
	if err != nil {
		return TokenPair{}, err
	}
	if out.Token == "" {
		return TokenPair{}, fmt.Errorf("refresh: malformed response")
	}
	return out, nil
}

func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	body := map[string]string{}
	if refreshToken != "" {
		body["refreshToken"] = refreshToken
	}
	return c.do(ctx, http.MethodPost, "/api/auth/logout", accessToken, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
