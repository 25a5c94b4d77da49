// Package panel is the arbitration layer between callers and the owner's
// Spotify account. The owner's requests hit the gateway straight away while
// guest requests that would change playback get parked in the owner's
// pending queue instead. Every handled action lands in the activity log on
// a best-effort basis.
package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aidanhq/bandmaster/db"
	"github.com/aidanhq/bandmaster/events"
	"github.com/aidanhq/bandmaster/identity"
	"github.com/aidanhq/bandmaster/session"
	"github.com/aidanhq/bandmaster/spotify"
)

// ErrForbidden is returned for owner-only actions attempted by anyone else.
var ErrForbidden = errors.New("this action is reserved for the owner")

// Gateway is the slice of the Spotify client the panel consumes. Kept as an
// interface so tests can swap in a fake without a network in sight.
type Gateway interface {
	CurrentlyPlaying() (*spotify.NowPlaying, error)
	Play(contextURI string) error
	PlayTracks(uris []string) error
	Pause() error
	Resume() error
	SkipNext() error
	SkipPrevious() error
	SetVolume(percent int) error
	Search(query string, limit int) ([]spotify.Track, error)
	Recommend(seedTracks, seedArtists, seedGenres []string, limit int) ([]spotify.Track, error)
	CreatePlaylist(name, description string, public bool) (*spotify.Playlist, error)
	AddTracksToPlaylist(playlistID string, uris []string) error
	ListUserPlaylists(limit int) ([]spotify.Playlist, error)
	ListPlaylistTracks(playlistID string) ([]spotify.Track, error)
	Profile() (*spotify.UserProfile, error)
	AuthorizationURL() (string, string)
	ExchangeCode(code, state string) error
}

type Result map[string]interface{}

type Panel struct {
	gateway  Gateway
	sessions *session.Store
	store    db.Store
	resolver *identity.Resolver
	owner    string
	logCap   int
}

func New(gateway Gateway, sessions *session.Store, store db.Store, resolver *identity.Resolver, owner string, logCap int) *Panel {
	return &Panel{
		gateway:  gateway,
		sessions: sessions,
		store:    store,
		resolver: resolver,
		owner:    owner,
		logCap:   logCap,
	}
}

func (p *Panel) Identify(apiKey string) identity.Identity {
	return p.resolver.Resolve(apiKey)
}

// Record lets collaborators outside the panel (ie; the notification
// endpoint) land entries in the same activity log.
func (p *Panel) Record(actor identity.Identity, action, details string, res Result) {
	p.record(actor, action, details, res)
}

// record appends one activity log row. Failures are swallowed so a broken
// log store can never fail the action that triggered it.
func (p *Panel) record(actor identity.Identity, action, details string, res Result) {
	entry := db.ActivityLog{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor:     actor.String(),
		Action:    action,
		Details:   details,
		Result:    summarise(res),
	}
	if err := p.store.InsertActivity(entry); err != nil {
		slog.With("error", err).Error("Failed to record activity log entry")
	}
}

func summarise(res Result) string {
	if msg, ok := res["error"].(string); ok {
		return "error: " + msg
	}
	if status, ok := res["status"].(string); ok {
		return status
	}
	if queued, ok := res["queued"].(bool); ok && queued {
		return "queued"
	}
	if msg, ok := res["message"].(string); ok {
		return msg
	}
	return "ok"
}

func errResult(err error) Result {
	return Result{"error": err.Error()}
}

// enqueue parks a guest's playback request in the owner's queue and hands
// back the queue as it now stands, oldest first.
func (p *Panel) enqueue(actor identity.Identity, uri string, kind session.ResourceKind) Result {
	queue := p.sessions.AppendToQueue(p.owner, uri, kind, actor.String())
	p.publishQueue(queue)
	return Result{
		"message":      fmt.Sprintf("%s asked to play %s. The request has been queued for %s.", actor, uri, p.owner),
		"queued":       true,
		"queue_length": len(queue),
		"queue":        queue,
	}
}

func (p *Panel) publishQueue(queue []session.PendingRequest) {
	payload, err := json.Marshal(map[string]interface{}{
		"queue_length": len(queue),
		"queue":        queue,
	})
	if err != nil {
		return
	}
	events.Publish(payload)
}

// playbackAction covers the shared owner-or-queue split for the three
// playback mutating operations.
func (p *Panel) playbackAction(actor identity.Identity, action, uri string, kind session.ResourceKind, execute func() Result) Result {
	var res Result
	if actor.IsOwner() {
		res = execute()
	} else {
		res = p.enqueue(actor, uri, kind)
	}
	p.record(actor, action, uri, res)
	return res
}

func (p *Panel) PlayPlaylist(actor identity.Identity, uri string) Result {
	if uri == "" {
		return errResult(errors.New("playlist uri is required"))
	}
	return p.playbackAction(actor, "play_playlist", uri, session.KindPlaylist, func() Result {
		if err := p.gateway.Play(uri); err != nil {
			return errResult(err)
		}
		return Result{"status": "playing playlist", "uri": uri}
	})
}

func (p *Panel) PlayTrack(actor identity.Identity, uri string) Result {
	if uri == "" {
		return errResult(errors.New("track uri is required"))
	}
	return p.playbackAction(actor, "play_track", uri, session.KindTrack, func() Result {
		if err := p.gateway.PlayTracks([]string{uri}); err != nil {
			return errResult(err)
		}
		return Result{"status": "playing track", "uri": uri}
	})
}

// PlaySongRadio has no upstream primitive. For the owner it asks for
// recommendations seeded by the song and plays the lot.
func (p *Panel) PlaySongRadio(actor identity.Identity, songURI string) Result {
	if songURI == "" {
		return errResult(errors.New("song uri is required"))
	}
	return p.playbackAction(actor, "play_song_radio", songURI, session.KindRadioSeed, func() Result {
		tracks, err := p.gateway.Recommend([]string{bareID(songURI)}, nil, nil, 25)
		if err != nil {
			return errResult(err)
		}
		if len(tracks) == 0 {
			return errResult(fmt.Errorf("no radio tracks found for %s", songURI))
		}
		uris := make([]string, 0, len(tracks))
		for _, track := range tracks {
			uris = append(uris, track.URI)
		}
		if err := p.gateway.PlayTracks(uris); err != nil {
			return errResult(err)
		}
		return Result{"status": "playing radio", "uri": songURI, "track_count": len(uris)}
	})
}

// bareID strips the "spotify:track:" prefix since the recommendations
// endpoint wants naked IDs as seeds.
func bareID(uri string) string {
	if idx := strings.LastIndex(uri, ":"); idx >= 0 {
		return uri[idx+1:]
	}
	return uri
}

// CurrentSong reports what's playing. When the owner asks and something is
// on, their presence state gets refreshed as a side effect.
func (p *Panel) CurrentSong(actor identity.Identity) Result {
	np, err := p.gateway.CurrentlyPlaying()
	var res Result
	switch {
	case err != nil:
		res = errResult(err)
	case np == nil:
		res = Result{"message": "No song currently playing"}
	default:
		if actor.IsOwner() {
			p.sessions.SetLastPlayed(p.owner, np.Song)
			p.sessions.SetOnline(p.owner, true)
		}
		res = Result{"song": np.Song, "artist": np.Artist}
	}
	p.record(actor, "current_song", "", res)
	return res
}

func (p *Panel) transport(actor identity.Identity, action string, execute func() error, status string) Result {
	var res Result
	if err := execute(); err != nil {
		res = errResult(err)
	} else {
		res = Result{"status": status}
	}
	p.record(actor, action, "", res)
	return res
}

func (p *Panel) Next(actor identity.Identity) Result {
	return p.transport(actor, "next", p.gateway.SkipNext, "skipped to next track")
}

func (p *Panel) Previous(actor identity.Identity) Result {
	return p.transport(actor, "previous", p.gateway.SkipPrevious, "skipped to previous track")
}

func (p *Panel) Resume(actor identity.Identity) Result {
	return p.transport(actor, "resume", p.gateway.Resume, "resumed playback")
}

func (p *Panel) Pause(actor identity.Identity) Result {
	return p.transport(actor, "pause", p.gateway.Pause, "paused playback")
}

func (p *Panel) SetVolume(actor identity.Identity, level int) Result {
	var res Result
	if err := p.gateway.SetVolume(level); err != nil {
		res = errResult(err)
	} else {
		res = Result{"status": fmt.Sprintf("volume set to %d", level)}
	}
	p.record(actor, "set_volume", fmt.Sprintf("%d", level), res)
	return res
}

func (p *Panel) Search(actor identity.Identity, query string, limit int) Result {
	if query == "" {
		return errResult(errors.New("query is required"))
	}
	var res Result
	tracks, err := p.gateway.Search(query, limit)
	if err != nil {
		res = errResult(err)
	} else {
		res = Result{"tracks": tracks}
	}
	p.record(actor, "search", query, res)
	return res
}

func (p *Panel) Recommendations(actor identity.Identity, seedTracks, seedArtists, seedGenres []string, limit int) Result {
	var res Result
	tracks, err := p.gateway.Recommend(seedTracks, seedArtists, seedGenres, limit)
	if err != nil {
		res = errResult(err)
	} else {
		res = Result{"tracks": tracks}
	}
	details := strings.Join(append(append(append([]string{}, seedTracks...), seedArtists...), seedGenres...), ",")
	p.record(actor, "recommendations", details, res)
	return res
}

func (p *Panel) Playlists(actor identity.Identity, limit int) Result {
	var res Result
	playlists, err := p.gateway.ListUserPlaylists(limit)
	if err != nil {
		res = errResult(err)
	} else {
		res = Result{"playlists": playlists}
	}
	p.record(actor, "playlists", "", res)
	return res
}

func (p *Panel) PlaylistTracks(actor identity.Identity, playlistID string) Result {
	if playlistID == "" {
		return errResult(errors.New("playlist_id is required"))
	}
	var res Result
	tracks, err := p.gateway.ListPlaylistTracks(playlistID)
	if err != nil {
		res = errResult(err)
	} else {
		res = Result{"tracks": tracks}
	}
	p.record(actor, "playlist_tracks", playlistID, res)
	return res
}

func (p *Panel) Me(actor identity.Identity) Result {
	var res Result
	profile, err := p.gateway.Profile()
	if err != nil {
		res = errResult(err)
	} else {
		res = Result{"profile": profile}
	}
	p.record(actor, "me", "", res)
	return res
}

// CreatePlaylist and AddToPlaylist delegate for everyone. Playlist editing
// is deliberately not queue-gated, unlike the playback endpoints.
func (p *Panel) CreatePlaylist(actor identity.Identity, name, description string, public bool) Result {
	if name == "" {
		return errResult(errors.New("playlist name is required"))
	}
	var res Result
	playlist, err := p.gateway.CreatePlaylist(name, description, public)
	if err != nil {
		res = errResult(err)
	} else {
		res = Result{"status": "playlist created", "playlist": playlist}
	}
	p.record(actor, "create_playlist", name, res)
	return res
}

func (p *Panel) AddToPlaylist(actor identity.Identity, playlistID string, uris []string) Result {
	if playlistID == "" {
		return errResult(errors.New("playlist_id is required"))
	}
	var res Result
	if err := p.gateway.AddTracksToPlaylist(playlistID, uris); err != nil {
		res = errResult(err)
	} else {
		res = Result{"status": "tracks added", "added": len(uris)}
	}
	p.record(actor, "add_to_playlist", playlistID, res)
	return res
}

// OwnerState exposes the pending queue, last played track and online flag
// for display. Read-only; nothing here drains the queue.
func (p *Panel) OwnerState() session.State {
	return p.sessions.GetState(p.owner)
}

// AuthStart kicks off the authorization handshake. Owner only.
func (p *Panel) AuthStart(actor identity.Identity) (Result, error) {
	if !actor.IsOwner() {
		return nil, ErrForbidden
	}
	authorizeURL, state := p.gateway.AuthorizationURL()
	res := Result{"auth_url": authorizeURL, "state": state}
	p.record(actor, "auth_start", "", res)
	return res, nil
}

// AuthCallback completes the handshake with the code and state Spotify
// redirected back with. Owner only.
func (p *Panel) AuthCallback(actor identity.Identity, code, state string) (Result, error) {
	if !actor.IsOwner() {
		return nil, ErrForbidden
	}
	var res Result
	if code == "" {
		res = errResult(errors.New("no authorization code provided"))
	} else if err := p.gateway.ExchangeCode(code, state); err != nil {
		res = errResult(err)
	} else {
		res = Result{"status": "authenticated"}
	}
	p.record(actor, "auth_callback", "", res)
	return res, nil
}

// Logs returns recent activity entries, newest first. Owner only and the
// limit is capped so nobody asks for the whole table.
func (p *Panel) Logs(actor identity.Identity, limit int) ([]db.ActivityLog, error) {
	if !actor.IsOwner() {
		return nil, ErrForbidden
	}
	if limit <= 0 || limit > p.logCap {
		limit = p.logCap
	}
	return p.store.RecentActivity(limit)
}
