package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanhq/bandmaster/config"
	"github.com/aidanhq/bandmaster/db"
	"github.com/aidanhq/bandmaster/identity"
	"github.com/aidanhq/bandmaster/panel"
	"github.com/aidanhq/bandmaster/session"
	"github.com/aidanhq/bandmaster/spotify"
)

type stubGateway struct {
	playCalls int
}

func (s *stubGateway) CurrentlyPlaying() (*spotify.NowPlaying, error) { return nil, nil }
func (s *stubGateway) Play(contextURI string) error {
	s.playCalls++
	return nil
}
func (s *stubGateway) PlayTracks(uris []string) error { return nil }
func (s *stubGateway) Pause() error { return nil }
func (s *stubGateway) Resume() error { return nil }
func (s *stubGateway) SkipNext() error { return nil }
func (s *stubGateway) SkipPrevious() error { return nil }
func (s *stubGateway) SetVolume(percent int) error { return nil }
func (s *stubGateway) Search(query string, limit int) ([]spotify.Track, error) {
	return nil, nil
}
func (s *stubGateway) Recommend(seedTracks, seedArtists, seedGenres []string, limit int) ([]spotify.Track, error) {
	return nil, nil
}
func (s *stubGateway) CreatePlaylist(name, description string, public bool) (*spotify.Playlist, error) {
	return &spotify.Playlist{}, nil
}
func (s *stubGateway) AddTracksToPlaylist(playlistID string, uris []string) error { return nil }
func (s *stubGateway) ListUserPlaylists(limit int) ([]spotify.Playlist, error) { return nil, nil }
func (s *stubGateway) ListPlaylistTracks(playlistID string) ([]spotify.Track, error) {
	return nil, nil
}
func (s *stubGateway) Profile() (*spotify.UserProfile, error) { return &spotify.UserProfile{}, nil }
func (s *stubGateway) AuthorizationURL() (string, string) { return "https://example.com/auth", "st" }
func (s *stubGateway) ExchangeCode(code, state string) error { return nil }

type nullStore struct{}

func (n *nullStore) InsertActivity(entry db.ActivityLog) error { return nil }
func (n *nullStore) RecentActivity(limit int) ([]db.ActivityLog, error) { return nil, nil }
func (n *nullStore) GetTokenByID(id string) string { return "" }
func (n *nullStore) GetTokenMetadataByID(id string) db.TokenMetadata { return db.TokenMetadata{} }
func (n *nullStore) UpsertToken(id, value string) error { return nil }
func (n *nullStore) UpsertTokenMetadata(id string, createdat, expiresin int64) error {
	return nil
}

func newTestHandler(t *testing.T) (http.Handler, *stubGateway) {
	t.Helper()
	cfg := config.Config{}
	cfg.Bandmaster.OwnerName = "Aidan"
	cfg.Bandmaster.OwnerAPIKey = "owner-key"
	cfg.Bandmaster.StorageDir = t.TempDir()
	cfg.Bandmaster.LogFetchCap = 100
	gateway := &stubGateway{}
	sessions := session.NewStore()
	resolver := identity.NewResolver(cfg.Bandmaster.OwnerAPIKey, cfg.Bandmaster.OwnerName)
	p := panel.New(gateway, sessions, &nullStore{}, resolver, cfg.Bandmaster.OwnerName, cfg.Bandmaster.LogFetchCap)
	return RegisterRoutes(http.NewServeMux(), cfg, p), gateway
}

func doRequest(t *testing.T, handler http.Handler, method, target, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthcheck(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bandmaster is running")

	rec = doRequest(t, handler, http.MethodHead, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = doRequest(t, handler, http.MethodGet, "/definitely_not_here", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGuestPlayIsQueuedNotExecuted(t *testing.T) {
	handler, gateway := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/play?playlist=spotify:playlist:abc", "guest-token-123")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["queued"])
	assert.Equal(t, float64(1), body["queue_length"])
	assert.Equal(t, 0, gateway.playCalls)
}

func TestOwnerPlayExecutesImmediately(t *testing.T) {
	handler, gateway := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/play?playlist=spotify:playlist:abc", "owner-key")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "playing playlist", body["status"])
	assert.Equal(t, 1, gateway.playCalls)
}

func TestQueueIsReadableWithoutAKey(t *testing.T) {
	handler, _ := newTestHandler(t)

	doRequest(t, handler, http.MethodGet, "/play_track?track=spotify:track:xyz", "someguest")

	rec := doRequest(t, handler, http.MethodGet, "/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var state session.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Len(t, state.Queue, 1)
	assert.Equal(t, "spotify:track:xyz", state.Queue[0].URI)
	assert.Equal(t, "Guest(somegu)", state.Queue[0].RequestedBy)
}

func TestOwnerOnlyRoutesRejectGuests(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, target := range []string{"/auth/start", "/auth/callback?code=abc", "/logs"} {
		rec := doRequest(t, handler, http.MethodGet, target, "guest-token")
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "not permitted", target)
	}
}

func TestVolumeRequiresANumber(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/volume?level=loud", "owner-key")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/volume?level=55", "owner-key")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaticCoverValidation(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/static/notacover.jpeg", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/static/cover.00000000-0000-0000-0000-000000000000.jpeg", "")
	assert.Equal(t, http.StatusGone, rec.Code)
}
