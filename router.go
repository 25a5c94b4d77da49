package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gregdel/pushover"
	"github.com/rs/cors"

	"github.com/aidanhq/bandmaster/config"
	"github.com/aidanhq/bandmaster/events"
	"github.com/aidanhq/bandmaster/panel"
	"github.com/aidanhq/bandmaster/utils"
)

const apiKeyHeader = "X-API-Key"

func renderJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func renderJSONMessage(w http.ResponseWriter, status int, message string) {
	renderJSON(w, status, map[string]string{"message": message})
}

// renderResult keeps the one-shape-per-handler contract: panel results come
// back as-is and permission failures turn into a 403.
func renderResult(w http.ResponseWriter, res panel.Result, err error) {
	if errors.Is(err, panel.ErrForbidden) {
		renderJSONMessage(w, http.StatusForbidden, "You are not permitted to perform this action")
		return
	}
	if err != nil {
		renderJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}
	renderJSON(w, http.StatusOK, res)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func RegisterRoutes(mux *http.ServeMux, cfg config.Config, p *panel.Panel) http.Handler {

	pushoverApp := pushover.New(cfg.Pushover.Token)
	pushoverRecipient := pushover.NewRecipient(cfg.Pushover.Recipient)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			renderJSONMessage(w, http.StatusNotFound, "There is nothing here")
			return
		}
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		renderJSON(w, http.StatusOK, map[string]string{"status": "Bandmaster is running"})
	})

	mux.HandleFunc("/notify", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		msg := r.URL.Query().Get("msg")
		if msg == "" {
			msg = "hello world"
		}
		message := &pushover.Message{
			Message:   msg,
			Title:     "Bandmaster Notification",
			Timestamp: time.Now().Unix(),
		}
		resp, err := pushoverApp.SendMessage(message, pushoverRecipient)
		if err != nil {
			res := panel.Result{"error": err.Error()}
			p.Record(actor, "notify", msg, res)
			renderJSON(w, http.StatusOK, res)
			return
		}
		res := panel.Result{
			"message_sent": msg,
			"result":       map[string]interface{}{"status": resp.Status, "id": resp.ID},
		}
		p.Record(actor, "notify", msg, res)
		renderJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/auth/start", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		res, err := p.AuthStart(actor)
		if err == nil {
			// Ping the owner's phone so remote reauth doesn't need a
			// terminal. Best effort only.
			if authURL, ok := res["auth_url"].(string); ok {
				message := &pushover.Message{
					Message:  "Bandmaster needs you to reauthenticate with Spotify",
					Title:    "Please auth with Spotify for Bandmaster",
					Priority: pushover.PriorityHigh,
					URL:      authURL,
					URLTitle: "Auth with Spotify",
				}
				pushoverApp.SendMessage(message, pushoverRecipient)
			}
		}
		renderResult(w, res, err)
	})

	mux.HandleFunc("/auth/callback", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		q := r.URL.Query()
		res, err := p.AuthCallback(actor, q.Get("code"), q.Get("state"))
		renderResult(w, res, err)
	})

	mux.HandleFunc("/song", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		renderJSON(w, http.StatusOK, p.CurrentSong(actor))
	})

	mux.HandleFunc("/play", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		renderJSON(w, http.StatusOK, p.PlayPlaylist(actor, r.URL.Query().Get("playlist")))
	})

	mux.HandleFunc("/play_track", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		renderJSON(w, http.StatusOK, p.PlayTrack(actor, r.URL.Query().Get("track")))
	})

	mux.HandleFunc("/play_song_radio", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		renderJSON(w, http.StatusOK, p.PlaySongRadio(actor, r.URL.Query().Get("song")))
	})

	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		renderJSON(w, http.StatusOK, p.Next(actor))
	})

	mux.HandleFunc("/previous", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		renderJSON(w, http.StatusOK, p.Previous(actor))
	})

	mux.HandleFunc("/resume", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		renderJSON(w, http.StatusOK, p.Resume(actor))
	})

	mux.HandleFunc("/pause", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		renderJSON(w, http.StatusOK, p.Pause(actor))
	})

	mux.HandleFunc("/volume", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		level, err := strconv.Atoi(r.URL.Query().Get("level"))
		if err != nil {
			renderJSON(w, http.StatusBadRequest, map[string]string{"error": "level must be a number between 0 and 100"})
			return
		}
		renderJSON(w, http.StatusOK, p.SetVolume(actor, level))
	})

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		renderJSON(w, http.StatusOK, p.Search(actor, r.URL.Query().Get("query"), limit))
	})

	mux.HandleFunc("/recommend", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		renderJSON(w, http.StatusOK, p.Recommendations(actor,
			splitList(q.Get("seed_tracks")),
			splitList(q.Get("seed_artists")),
			splitList(q.Get("seed_genres")),
			limit,
		))
	})

	mux.HandleFunc("/playlists", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		renderJSON(w, http.StatusOK, p.Playlists(actor, limit))
	})

	mux.HandleFunc("/playlist_tracks", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		renderJSON(w, http.StatusOK, p.PlaylistTracks(actor, r.URL.Query().Get("playlist_id")))
	})

	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		renderJSON(w, http.StatusOK, p.Me(actor))
	})

	mux.HandleFunc("/create_playlist", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		q := r.URL.Query()
		public, _ := strconv.ParseBool(q.Get("public"))
		renderJSON(w, http.StatusOK, p.CreatePlaylist(actor, q.Get("name"), q.Get("description"), public))
	})

	mux.HandleFunc("/add_to_playlist", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		q := r.URL.Query()
		renderJSON(w, http.StatusOK, p.AddToPlaylist(actor, q.Get("playlist_id"), splitList(q.Get("track_uris"))))
	})

	mux.HandleFunc("/queue", func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, http.StatusOK, p.OwnerState())
	})

	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		actor := p.Identify(r.Header.Get(apiKeyHeader))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := p.Logs(actor, limit)
		if errors.Is(err, panel.ErrForbidden) {
			renderJSONMessage(w, http.StatusForbidden, "You are not permitted to perform this action")
			return
		}
		if err != nil {
			// Fail closed rather than exposing a partial view
			renderJSON(w, http.StatusOK, map[string]string{"error": "activity log is currently unavailable"})
			return
		}
		renderJSON(w, http.StatusOK, map[string]interface{}{"logs": entries})
	})

	mux.HandleFunc("/static/", func(w http.ResponseWriter, r *http.Request) {
		cover := strings.ReplaceAll(r.URL.Path, "/static/", "")
		// cover.<guid>.jpeg
		coverSegments := strings.Split(cover, ".")
		if len(coverSegments) != 3 || coverSegments[0] != "cover" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		guid := coverSegments[1]
		extension := coverSegments[2]
		image, err := utils.LoadCover(cfg.Bandmaster.StorageDir, guid, extension)
		if err != nil {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=31622400")
		w.Header().Set("Content-Type", fmt.Sprintf("image/%s", extension))
		w.Write([]byte(image))
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		events.Server.ServeHTTP(w, r)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:8080", "http://localhost:1313"},
		AllowedMethods: []string{"GET", "HEAD"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", apiKeyHeader},
	})

	handler := c.Handler(mux)

	return handler
}
