package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
)

// Platform JSON error codes.
const (
	codeUnknownChannel    = 10003
	codeUnknownGuild      = 10004
	codeMissingAccess     = 50001
	codeInvalidOAuthToken = 50025
)

const (
	maxResponseBodyBytes   = 1 << 20
	defaultRequestTimeout  = 10 * time.Second
	defaultInviteMaxAgeSec = 300
)

// Client encapsulates outbound calls to the community platform.
type Client interface {
	ExchangeCode(ctx context.Context, code string) (*onboard.TokenGrant, error)
	FetchIdentity(ctx context.Context, accessToken string) (*onboard.Identity, error)
	ResolveGroup(ctx context.Context, groupID string) (*onboard.Group, error)
	AddMember(ctx context.Context, groupID, subjectID, accessToken string, roles []string) error
	AddRole(ctx context.Context, groupID, subjectID, roleID string) error
	CreateInvite(ctx context.Context, channelID string, maxAge time.Duration) (string, error)
}

// Options configures HTTPClient.
type Options struct {
	APIBase      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BotToken     string
	Timeout      time.Duration
}

// HTTPClient is the default HTTP implementation.
type HTTPClient struct {
	httpClient *http.Client
	opts       Options
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs the default Client. A nil http.Client gets one with opts.Timeout.
func NewHTTPClient(client *http.Client, opts Options) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	opts.APIBase = strings.TrimRight(opts.APIBase, "/")
	return &HTTPClient{httpClient: client, opts: opts}
}

// apiError is the platform's JSON error body.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ExchangeCode performs the authorization code exchange.
func (c *HTTPClient) ExchangeCode(ctx context.Context, code string) (*onboard.TokenGrant, error) {
	if strings.TrimSpace(c.opts.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.opts.RedirectURI)
	data.Set("client_id", c.opts.ClientID)
	data.Set("client_secret", c.opts.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}
	if status >= 300 {
		if isRetryable(status) {
			return nil, fmt.Errorf("%w: token exchange status=%d", onboard.ErrTransient, status)
		}
		return nil, fmt.Errorf("%w: token exchange rejected status=%d", onboard.ErrAuthentication, status)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	grant := &onboard.TokenGrant{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		TokenType:    stringValue(raw["token_type"]),
		Scope:        stringValue(raw["scope"]),
		ExpiresIn:    int64Value(raw["expires_in"]),
	}
	if grant.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response without access_token", onboard.ErrAuthentication)
	}
	return grant, nil
}

// FetchIdentity loads the profile of the token owner.
func (c *HTTPClient) FetchIdentity(ctx context.Context, accessToken string) (*onboard.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.APIBase+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request: %w", err)
	}
	if status >= 300 {
		return nil, classify(status, body, "fetch identity")
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	identity := &onboard.Identity{
		ID:       stringValue(raw["id"]),
		Username: stringValue(coalesce(raw["global_name"], raw["username"])),
		Avatar:   stringValue(raw["avatar"]),
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("identity response without id")
	}
	return identity, nil
}

// ResolveGroup fetches a group the bot belongs to.
func (c *HTTPClient) ResolveGroup(ctx context.Context, groupID string) (*onboard.Group, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, onboard.ErrGroupNotFound
	}
	req, err := c.botRequest(ctx, http.MethodGet, "/guilds/"+url.PathEscape(groupID), nil)
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve group: %w", err)
	}
	if status == http.StatusNotFound || status == http.StatusForbidden || errorCode(body) == codeUnknownGuild {
		return nil, fmt.Errorf("%w: %s", onboard.ErrGroupNotFound, groupID)
	}
	if status >= 300 {
		return nil, classify(status, body, "resolve group")
	}

	var payload struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		SystemChannelID string `json:"system_channel_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode group: %w", err)
	}
	return &onboard.Group{ID: payload.ID, Name: payload.Name, SystemChannelID: payload.SystemChannelID}, nil
}

// AddMember adds the subject to the group using the subject's own access token.
// A subject that is already a member yields ErrAlreadyMember.
func (c *HTTPClient) AddMember(ctx context.Context, groupID, subjectID, accessToken string, roles []string) error {
	payload := map[string]any{"access_token": accessToken}
	if len(roles) > 0 {
		payload["roles"] = roles
	}
	path := "/guilds/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(subjectID)
	req, err := c.botRequest(ctx, http.MethodPut, path, payload)
	if err != nil {
		return err
	}

	status, body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	switch {
	case status == http.StatusNoContent:
		return onboard.ErrAlreadyMember
	case status < 300:
		return nil
	default:
		return classify(status, body, "add member")
	}
}

// AddRole grants a role to an existing member.
func (c *HTTPClient) AddRole(ctx context.Context, groupID, subjectID, roleID string) error {
	path := "/guilds/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(subjectID) + "/roles/" + url.PathEscape(roleID)
	req, err := c.botRequest(ctx, http.MethodPut, path, nil)
	if err != nil {
		return err
	}

	status, body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	if status >= 300 {
		return classify(status, body, "add role")
	}
	return nil
}

// CreateInvite creates a temporary invite for a channel and returns its code.
func (c *HTTPClient) CreateInvite(ctx context.Context, channelID string, maxAge time.Duration) (string, error) {
	if strings.TrimSpace(channelID) == "" {
		return "", onboard.ErrChannelNotFound
	}
	seconds := int(maxAge / time.Second)
	if seconds <= 0 {
		seconds = defaultInviteMaxAgeSec
	}
	req, err := c.botRequest(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/invites", map[string]any{"max_age": seconds})
	if err != nil {
		return "", err
	}

	status, body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("create invite: %w", err)
	}
	if status == http.StatusNotFound || errorCode(body) == codeUnknownChannel {
		return "", fmt.Errorf("%w: %s", onboard.ErrChannelNotFound, channelID)
	}
	if status >= 300 {
		return "", classify(status, body, "create invite")
	}

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode invite: %w", err)
	}
	return payload.Code, nil
}

func (c *HTTPClient) botRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.APIBase+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.opts.BotToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes req and reads a bounded body. Transport failures and timeouts are transient.
func (c *HTTPClient) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %v", onboard.ErrTransient, err)
	}
	return resp.StatusCode, body, nil
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: timeout: %v", onboard.ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", onboard.ErrTransient, err)
}

// classify maps a non-success platform response onto the onboarding error taxonomy.
func classify(status int, body []byte, op string) error {
	code := errorCode(body)
	switch {
	case code == codeInvalidOAuthToken || code == codeMissingAccess:
		return fmt.Errorf("%w: %s: platform code %d", onboard.ErrCredentialInvalid, op, code)
	case status == http.StatusUnauthorized && op != "add member":
		return fmt.Errorf("%w: %s: status=%d", onboard.ErrCredentialInvalid, op, status)
	case isRetryable(status):
		return fmt.Errorf("%w: %s: status=%d", onboard.ErrTransient, op, status)
	default:
		return fmt.Errorf("%s failed: status=%d code=%d", op, status, code)
	}
}

func isRetryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func errorCode(body []byte) int {
	if len(body) == 0 {
		return 0
	}
	var payload apiError
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0
	}
	return payload.Code
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func coalesce(values ...any) any {
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return v
		}
	}
	return nil
}
