// Package spotify is a thin client for the Spotify Web API. Tokens live in
// the sqlite store so a redeploy doesn't force a fresh browser handshake.
package spotify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aidanhq/bandmaster/config"
	"github.com/aidanhq/bandmaster/db"
)

const (
	defaultAuthURL  = "https://accounts.spotify.com/authorize"
	defaultTokenURL = "https://accounts.spotify.com/api/token"
	defaultAPIBase  = "https://api.spotify.com/v1"

	accessTokenID  = "spotify:accesstoken"
	refreshTokenID = "spotify:refreshtoken"

	// Read retries per the arbitration layer's resilience policy: 4 attempts
	// total with a doubling delay. Mutations are never blindly retried.
	maxReadRetries = 3
	retryBaseDelay = 250 * time.Millisecond
)

// ErrNotAuthenticated means there is no usable upstream session. Callers
// surface this verbatim; re-authentication only ever happens through the
// owner's /auth/start handshake.
var ErrNotAuthenticated = errors.New("not authenticated with Spotify: complete the /auth/start flow first")

type Client struct {
	cfg      config.SpotifyConfig
	store    db.Store
	http     *http.Client
	apiBase  string
	authURL  string
	tokenURL string

	mu               sync.Mutex
	accessToken      string
	refreshToken     string
	tokenExpiry      time.Time
	pendingAuthState string
}

func NewClient(cfg config.SpotifyConfig, store db.Store, httpClient *http.Client) *Client {
	c := &Client{
		cfg:      cfg,
		store:    store,
		http:     httpClient,
		apiBase:  defaultAPIBase,
		authURL:  defaultAuthURL,
		tokenURL: defaultTokenURL,
	}
	c.loadCachedTokens()
	return c
}

func (c *Client) loadCachedTokens() {
	access := c.store.GetTokenByID(accessTokenID)
	refresh := c.store.GetTokenByID(refreshTokenID)
	if access == "" && refresh == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
	meta := c.store.GetTokenMetadataByID(accessTokenID)
	if meta.ExpiresIn > 0 {
		c.tokenExpiry = meta.Expiry()
	}
	// A zero expiry forces a refresh on first use which is the safe default
	// when metadata has gone missing
}

// Track is the subset of track metadata the panel cares about.
type Track struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	ImageURL string `json:"image_url,omitempty"`
}

type Playlist struct {
	ID          string `json:"id"`
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	TrackCount  int    `json:"track_count"`
}

type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Product     string `json:"product"`
	URI         string `json:"uri"`
}

type NowPlaying struct {
	Song      string `json:"song"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	ImageURL  string `json:"image_url,omitempty"`
	IsPlaying bool   `json:"is_playing"`
}

type apiArtist struct {
	Name string `json:"name"`
}

type apiImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type apiAlbum struct {
	Name   string     `json:"name"`
	Images []apiImage `json:"images"`
}

type apiTrack struct {
	URI     string      `json:"uri"`
	Name    string      `json:"name"`
	Artists []apiArtist `json:"artists"`
	Album   apiAlbum    `json:"album"`
}

func (t apiTrack) toTrack() Track {
	track := Track{
		URI:   t.URI,
		Name:  t.Name,
		Album: t.Album.Name,
	}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
	}
	if len(t.Album.Images) > 0 {
		track.ImageURL = t.Album.Images[0].URL
	}
	return track
}

type apiPlaylist struct {
	ID          string `json:"id"`
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

func (p apiPlaylist) toPlaylist() Playlist {
	return Playlist{
		ID:          p.ID,
		URI:         p.URI,
		Name:        p.Name,
		Description: p.Description,
		Public:      p.Public,
		TrackCount:  p.Tracks.Total,
	}
}

type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// transientError marks failures worth retrying on idempotent reads, ie;
// network flakes, rate limits and upstream 5xx responses.
type transientError struct {
	err error
}

func (t transientError) Error() string {
	return t.err.Error()
}

func (t transientError) Unwrap() error {
	return t.err
}

func (c *Client) doOnce(method, path string, query url.Values, body interface{}, out interface{}) error {
	token, err := c.token()
	if err != nil {
		return err
	}

	endpoint := c.apiBase + path
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return transientError{err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized {
		return ErrNotAuthenticated
	}
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
		return transientError{err: fmt.Errorf("spotify responded with %s", res.Status)}
	}
	if res.StatusCode >= 400 {
		raw, _ := io.ReadAll(res.Body)
		var apiErr apiError
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("spotify rejected the request: %s", apiErr.Error.Message)
		}
		return fmt.Errorf("spotify rejected the request: %s", res.Status)
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// get wraps idempotent reads with the bounded retry policy. Anything marked
// transient is retried with a doubling delay until attempts run out.
func (c *Client) get(path string, query url.Values, out interface{}) error {
	operation := func() error {
		err := c.doOnce(http.MethodGet, path, query, nil, out)
		if err == nil {
			return nil
		}
		var transient transientError
		if errors.As(err, &transient) {
			return err
		}
		return backoff.Permanent(err)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryBaseDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	return backoff.Retry(operation, backoff.WithMaxRetries(bo, maxReadRetries))
}

func (c *Client) CurrentlyPlaying() (*NowPlaying, error) {
	var res struct {
		IsPlaying bool      `json:"is_playing"`
		Item      *apiTrack `json:"item"`
	}
	if err := c.get("/me/player/currently-playing", nil, &res); err != nil {
		return nil, err
	}
	// A 204 from Spotify means nothing is playing anywhere
	if res.Item == nil {
		return nil, nil
	}
	track := res.Item.toTrack()
	return &NowPlaying{
		Song:      track.Name,
		Artist:    track.Artist,
		Album:     track.Album,
		ImageURL:  track.ImageURL,
		IsPlaying: res.IsPlaying,
	}, nil
}

func (c *Client) Play(contextURI string) error {
	body := map[string]interface{}{"context_uri": contextURI}
	return c.doOnce(http.MethodPut, "/me/player/play", nil, body, nil)
}

func (c *Client) PlayTracks(uris []string) error {
	body := map[string]interface{}{"uris": uris}
	return c.doOnce(http.MethodPut, "/me/player/play", nil, body, nil)
}

func (c *Client) Resume() error {
	return c.doOnce(http.MethodPut, "/me/player/play", nil, nil, nil)
}

func (c *Client) Pause() error {
	return c.doOnce(http.MethodPut, "/me/player/pause", nil, nil, nil)
}

func (c *Client) SkipNext() error {
	return c.doOnce(http.MethodPost, "/me/player/next", nil, nil, nil)
}

func (c *Client) SkipPrevious() error {
	return c.doOnce(http.MethodPost, "/me/player/previous", nil, nil, nil)
}

func (c *Client) SetVolume(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", percent)
	}
	query := url.Values{}
	query.Set("volume_percent", strconv.Itoa(percent))
	return c.doOnce(http.MethodPut, "/me/player/volume", query, nil, nil)
}

func (c *Client) Search(query string, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	q.Set("limit", strconv.Itoa(limit))
	var res struct {
		Tracks struct {
			Items []apiTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := c.get("/search", q, &res); err != nil {
		return nil, err
	}
	tracks := make([]Track, 0, len(res.Tracks.Items))
	for _, item := range res.Tracks.Items {
		tracks = append(tracks, item.toTrack())
	}
	return tracks, nil
}

func (c *Client) Recommend(seedTracks, seedArtists, seedGenres []string, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = 20
	}
	q := url.Values{}
	if len(seedTracks) > 0 {
		q.Set("seed_tracks", strings.Join(seedTracks, ","))
	}
	if len(seedArtists) > 0 {
		q.Set("seed_artists", strings.Join(seedArtists, ","))
	}
	if len(seedGenres) > 0 {
		q.Set("seed_genres", strings.Join(seedGenres, ","))
	}
	if len(q) == 0 {
		return nil, fmt.Errorf("at least one seed track, artist or genre is required")
	}
	q.Set("limit", strconv.Itoa(limit))
	var res struct {
		Tracks []apiTrack `json:"tracks"`
	}
	if err := c.get("/recommendations", q, &res); err != nil {
		return nil, err
	}
	tracks := make([]Track, 0, len(res.Tracks))
	for _, item := range res.Tracks {
		tracks = append(tracks, item.toTrack())
	}
	return tracks, nil
}

func (c *Client) ListUserPlaylists(limit int) ([]Playlist, error) {
	if limit <= 0 {
		limit = 20
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	var res struct {
		Items []apiPlaylist `json:"items"`
	}
	if err := c.get("/me/playlists", q, &res); err != nil {
		return nil, err
	}
	playlists := make([]Playlist, 0, len(res.Items))
	for _, item := range res.Items {
		playlists = append(playlists, item.toPlaylist())
	}
	return playlists, nil
}

// ListPlaylistTracks pages through the whole playlist and hands back the
// fully materialised track list.
func (c *Client) ListPlaylistTracks(playlistID string) ([]Track, error) {
	const pageSize = 100
	var tracks []Track
	offset := 0
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("offset", strconv.Itoa(offset))
		var res struct {
			Items []struct {
				Track apiTrack `json:"track"`
			} `json:"items"`
			Total int `json:"total"`
		}
		if err := c.get(fmt.Sprintf("/playlists/%s/tracks", playlistID), q, &res); err != nil {
			return nil, err
		}
		for _, item := range res.Items {
			tracks = append(tracks, item.Track.toTrack())
		}
		offset += len(res.Items)
		if offset >= res.Total || len(res.Items) == 0 {
			break
		}
	}
	return tracks, nil
}

func (c *Client) Profile() (*UserProfile, error) {
	var profile UserProfile
	if err := c.get("/me", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) CreatePlaylist(name, description string, public bool) (*Playlist, error) {
	profile, err := c.Profile()
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"name":        name,
		"description": description,
		"public":      public,
	}
	var res apiPlaylist
	if err := c.doOnce(http.MethodPost, fmt.Sprintf("/users/%s/playlists", profile.ID), nil, body, &res); err != nil {
		return nil, err
	}
	playlist := res.toPlaylist()
	return &playlist, nil
}

func (c *Client) AddTracksToPlaylist(playlistID string, uris []string) error {
	if len(uris) == 0 {
		return fmt.Errorf("no track uris provided")
	}
	body := map[string]interface{}{"uris": uris}
	return c.doOnce(http.MethodPost, fmt.Sprintf("/playlists/%s/tracks", playlistID), nil, body, nil)
}
