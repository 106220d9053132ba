package cli

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

	"github.com/gorilla/websocket"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

// APIError is a non-2xx response from the bingo server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client talks to the bingo HTTP and WebSocket API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		dialer:  websocket.DefaultDialer,
	}
}

type TokenResponse struct {
	Identity  string    `json:"identity"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type JoinResponse struct {
	Joined      bool               `json:"joined"`
	Participant models.Participant `json:"participant"`
}

// LiveMessage is any message the server sends on a live stream.
type LiveMessage struct {
	Type         string                  `json:"type"`
	Identity     string                  `json:"identity,omitempty"`
	Status       models.SessionStatus    `json:"status,omitempty"`
	Session      *models.Session         `json:"session,omitempty"`
	Participants []models.Participant    `json:"participants,omitempty"`
	Sessions     []models.SessionSummary `json:"sessions,omitempty"`
	Code         string                  `json:"code,omitempty"`
	Error        string                  `json:"error,omitempty"`
}

// Token asks the server for a bearer token. Without an existing token the
// server mints a fresh anonymous identity.
func (c *Client) Token(ctx context.Context) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/identity/token", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateSession(ctx context.Context, items string) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"items": items}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Session(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Recent(ctx context.Context) ([]models.SessionSummary, error) {
	var resp struct {
		Sessions []models.SessionSummary `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions/recent", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) Join(ctx context.Context, id string) (*JoinResponse, error) {
	var resp JoinResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/join", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Toggle(ctx context.Context, id string, index int) (*models.Participant, error) {
	var participant models.Participant
	path := "/api/sessions/" + url.PathEscape(id) + "/cells/" + strconv.Itoa(index)
	if err := c.do(ctx, http.MethodPut, path, nil, &participant); err != nil {
		return nil, err
	}
	return &participant, nil
}

func (c *Client) Rename(ctx context.Context, id, name string) (*models.Participant, error) {
	var participant models.Participant
	path := "/api/sessions/" + url.PathEscape(id) + "/name"
	if err := c.do(ctx, http.MethodPut, path, map[string]string{"name": name}, &participant); err != nil {
		return nil, err
	}
	return &participant, nil
}

// Watch streams live messages from path until ctx ends or the server
// closes the connection. A nil error means ctx ended the stream.
func (c *Client) Watch(ctx context.Context, path string, handle func(LiveMessage) error) error {
	wsURL, err := c.websocketURL(path)
	if err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, wsURL, c.headers())
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", path, err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var msg LiveMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("reading live message: %w", err)
		}
		if err := handle(msg); err != nil {
			return err
		}
	}
}

func (c *Client) websocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (c *Client) headers() http.Header {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	return header
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	for key, values := range c.headers() {
		req.Header[key] = values
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
