package spotify

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/exp/rand"
)

var scopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-private",
	"playlist-read-private",
	"playlist-modify-public",
	"playlist-modify-private",
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// AuthorizationURL builds the URL the owner needs to open to grant access,
// along with the state value to verify the redirect against. The state is
// remembered so ExchangeCode can reject redirects we never initiated.
func (c *Client) AuthorizationURL() (string, string) {
	state := generateRandomString(16)
	c.mu.Lock()
	c.pendingAuthState = state
	c.mu.Unlock()
	authorizeURL := fmt.Sprintf("%s?response_type=code&client_id=%s&scope=%s&redirect_uri=%s&state=%s",
		c.authURL, c.cfg.ClientId, url.QueryEscape(strings.Join(scopes, " ")), url.QueryEscape(c.cfg.RedirectUri), state)
	return authorizeURL, state
}

// ExchangeCode swaps an authorization code for tokens and caches them so the
// session survives a restart. The state from the redirect must match the one
// handed out by AuthorizationURL.
func (c *Client) ExchangeCode(code, state string) error {
	c.mu.Lock()
	expected := c.pendingAuthState
	c.mu.Unlock()
	if expected == "" || state != expected {
		return errors.New("authorization state mismatch: restart the auth flow")
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.cfg.RedirectUri)

	token, err := c.requestToken(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingAuthState = ""
	c.adoptTokenLocked(token)
	return nil
}

func (c *Client) requestToken(data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequest("POST", c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientId+":"+c.cfg.ClientSecret)))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token request failed: %s %s", resp.Status, string(body))
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, err
	}

	return &token, nil
}

// adoptTokenLocked updates in-memory state and the sqlite cache. Spotify
// only sometimes rotates the refresh token so a missing one keeps the old.
func (c *Client) adoptTokenLocked(token *TokenResponse) {
	c.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.refreshToken = token.RefreshToken
	}
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	if err := c.store.UpsertToken(accessTokenID, c.accessToken); err != nil {
		slog.With("error", err).Error("failed to save access token")
	}
	if err := c.store.UpsertToken(refreshTokenID, c.refreshToken); err != nil {
		slog.With("error", err).Error("failed to save refresh token")
	}
	if err := c.store.UpsertTokenMetadata(accessTokenID, time.Now().Unix(), int64(token.ExpiresIn)); err != nil {
		slog.With("error", err).Error("failed to save token metadata")
	}
}

// token hands back a usable access token, refreshing it first when it is
// about to expire. Never kicks off a browser handshake on its own.
func (c *Client) token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken == "" && c.refreshToken == "" {
		return "", ErrNotAuthenticated
	}

	if time.Until(c.tokenExpiry) <= time.Minute {
		if err := c.refreshTokensLocked(); err != nil {
			return "", err
		}
	}

	return c.accessToken, nil
}

func (c *Client) refreshTokensLocked() error {
	if c.refreshToken == "" {
		return ErrNotAuthenticated
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", c.refreshToken)

	token, err := c.requestToken(data)
	if err != nil {
		return err
	}

	c.adoptTokenLocked(token)

	slog.Info("Successfully refreshed tokens")

	return nil
}

func generateRandomString(length int) string {
	rand.Seed(uint64(time.Now().UnixNano()))
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
