// Package remote is the request/response client for the chat service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adamavenir/parley/internal/types"
)

// ErrUnavailable wraps transport-level failures reaching the service.
var ErrUnavailable = errors.New("remote service unavailable")

// APIError is a response the service answered but did not accept: a non-2xx
// status, or a 2xx whose envelope reports success=false.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("remote error (%d)", e.Status)
}

// IsUnavailable reports whether err means the service could not be reached
// or failed on its side.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}

// envelope is the uniform response shape of every endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Client talks to the chat service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL, token string) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: normalized,
		token:   token,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}, nil
}

// NormalizeBaseURL trims a base URL and ensures it has a scheme.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("api url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	if parsed.Scheme == "" {
		return "", fmt.Errorf("api url must include scheme (https://)")
	}
	return strings.TrimRight(value, "/"), nil
}

// FetchConversations returns the user's conversation list.
func (c *Client) FetchConversations(ctx context.Context) ([]types.Conversation, error) {
	var convs []types.Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// SaveConversations replaces the stored conversation list.
func (c *Client) SaveConversations(ctx context.Context, convs []types.Conversation) error {
	req := struct {
		Conversations []types.Conversation `json:"conversations"`
	}{Conversations: convs}
	return c.doJSON(ctx, http.MethodPut, "/api/conversations", nil, req, nil)
}

// FetchHistory returns the messages exchanged between two users, or the
// messages of a group/channel when other is its conversation ID.
func (c *Client) FetchHistory(ctx context.Context, self, other string) ([]types.Message, error) {
	query := url.Values{}
	query.Set("user1", self)
	query.Set("user2", other)
	var msgs []types.Message
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/history", query, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SearchResult is one page of message search results.
type SearchResult struct {
	Messages []types.Message `json:"messages"`
	Total    int             `json:"total"`
}

// SearchMessages searches message text, optionally within one conversation.
func (c *Client) SearchMessages(ctx context.Context, text, conversationID string, limit, skip int) (SearchResult, error) {
	query := url.Values{}
	query.Set("q", text)
	if conversationID != "" {
		query.Set("conversation_id", conversationID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if skip > 0 {
		query.Set("skip", strconv.Itoa(skip))
	}
	var result SearchResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/search", query, nil, &result); err != nil {
		return SearchResult{}, err
	}
	return result, nil
}

// Channels lists a server's channels.
func (c *Client) Channels(ctx context.Context, serverID string) ([]types.Channel, error) {
	var channels []types.Channel
	if err := c.doJSON(ctx, http.MethodGet, serverPath(serverID, "channels"), nil, nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// CreateChannel creates a channel on a server.
func (c *Client) CreateChannel(ctx context.Context, serverID, name, topic string) (types.Channel, error) {
	req := types.Channel{ServerID: serverID, Name: name, Topic: topic}
	var channel types.Channel
	if err := c.doJSON(ctx, http.MethodPost, serverPath(serverID, "channels"), nil, req, &channel); err != nil {
		return types.Channel{}, err
	}
	return channel, nil
}

// DeleteChannel removes a channel from a server.
func (c *Client) DeleteChannel(ctx context.Context, serverID, channelID string) error {
	return c.doJSON(ctx, http.MethodDelete, serverPath(serverID, "channels", channelID), nil, nil, nil)
}

// Roles lists a server's roles.
func (c *Client) Roles(ctx context.Context, serverID string) ([]types.Role, error) {
	var roles []types.Role
	if err := c.doJSON(ctx, http.MethodGet, serverPath(serverID, "roles"), nil, nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// CreateRole creates a role on a server.
func (c *Client) CreateRole(ctx context.Context, serverID, name, color string) (types.Role, error) {
	req := types.Role{ServerID: serverID, Name: name, Color: color}
	var role types.Role
	if err := c.doJSON(ctx, http.MethodPost, serverPath(serverID, "roles"), nil, req, &role); err != nil {
		return types.Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role from a server.
func (c *Client) DeleteRole(ctx context.Context, serverID, roleID string) error {
	return c.doJSON(ctx, http.MethodDelete, serverPath(serverID, "roles", roleID), nil, nil, nil)
}

func serverPath(serverID string, parts ...string) string {
	segments := []string{"api", "servers", url.PathEscape(serverID)}
	for _, part := range parts {
		segments = append(segments, url.PathEscape(part))
	}
	return "/" + strings.Join(segments, "/")
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, respBody any) error {
	endpoint, err := c.buildURL(path, query)
	if err != nil {
		return err
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(respData, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil && env.Error != "" {
			apiErr.Message = env.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(respData))
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response from %s: %w", path, decodeErr)
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}

	if respBody == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, respBody)
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	endpoint := base.ResolveReference(ref)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	return endpoint.String(), nil
}
