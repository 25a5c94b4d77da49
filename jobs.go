package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-co-op/gocron/v2"
	"github.com/gregdel/pushover"

	"github.com/aidanhq/bandmaster/config"
	"github.com/aidanhq/bandmaster/events"
	"github.com/aidanhq/bandmaster/identity"
	"github.com/aidanhq/bandmaster/panel"
	"github.com/aidanhq/bandmaster/session"
	"github.com/aidanhq/bandmaster/spotify"
	"github.com/aidanhq/bandmaster/utils"
)

// presencePoller keeps the owner's session state warm by watching what is
// actually playing, independent of anyone hitting /song.
type presencePoller struct {
	cfg         config.Config
	gateway     panel.Gateway
	sessions    *session.Store
	pushoverApp *pushover.Pushover
	recipient   *pushover.Recipient
	lastHash    uint64
}

func (pp *presencePoller) poll() {
	np, err := pp.gateway.CurrentlyPlaying()
	if err != nil {
		if errors.Is(err, spotify.ErrNotAuthenticated) {
			slog.Debug("Skipping presence poll until someone completes the auth flow")
			return
		}
		slog.Error("Failed to poll current playback",
			slog.String("stack", err.Error()),
		)
		return
	}

	owner := pp.cfg.Bandmaster.OwnerName

	if np == nil || !np.IsPlaying {
		pp.sessions.SetOnline(owner, false)
		return
	}

	pp.sessions.SetLastPlayed(owner, np.Song)
	pp.sessions.SetOnline(owner, true)

	hash := xxhash.Sum64String(np.Song + "-" + np.Artist)
	if hash == pp.lastHash {
		return
	}
	pp.lastHash = hash

	payload := map[string]interface{}{
		"song":   np.Song,
		"artist": np.Artist,
		"album":  np.Album,
	}

	if np.ImageURL != "" {
		image, extension, domColours, err := utils.ExtractImageContent(np.ImageURL)
		if err != nil {
			slog.Error("Failed to extract image content",
				slog.String("stack", err.Error()),
				slog.String("image_url", np.ImageURL),
			)
		} else {
			imageLocation, guid := utils.BytesToGUIDLocation(image, extension)
			if err := utils.SaveCover(pp.cfg.Bandmaster.StorageDir, guid.String(), image, extension); err != nil {
				slog.Error("Failed to save cover",
					slog.String("stack", err.Error()),
					slog.String("guid", guid.String()),
				)
			} else {
				payload["image"] = imageLocation
				payload["dominant_colours"] = domColours
			}
		}
	}

	data, err := json.Marshal(payload)
	if err == nil {
		events.Publish(data)
	}

	if pp.cfg.Bandmaster.WatchedSong != "" && np.Song == pp.cfg.Bandmaster.WatchedSong {
		message := &pushover.Message{
			Message:   np.Song + " by " + np.Artist,
			Title:     "Now Playing",
			Timestamp: time.Now().Unix(),
		}
		if _, err := pp.pushoverApp.SendMessage(message, pp.recipient); err != nil {
			slog.Error("Failed to send watched song alert",
				slog.String("stack", err.Error()),
			)
		}
	}
}

func SetupInBackground(cfg config.Config, p *panel.Panel, gateway panel.Gateway, sessions *session.Store) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	poller := &presencePoller{
		cfg:         cfg,
		gateway:     gateway,
		sessions:    sessions,
		pushoverApp: pushover.New(cfg.Pushover.Token),
		recipient:   pushover.NewRecipient(cfg.Pushover.Recipient),
	}

	s.NewJob(
		gocron.DurationJob(time.Second*30),
		gocron.NewTask(poller.poll),
	)

	if cfg.Bandmaster.MorningPlaylist != "" {
		ownerIdentity := identity.Identity{Kind: identity.KindOwner, Label: cfg.Bandmaster.OwnerName}
		s.NewJob(
			gocron.CronJob("0 9 * * *", false),
			gocron.NewTask(func() {
				res := p.PlayPlaylist(ownerIdentity, cfg.Bandmaster.MorningPlaylist)
				if msg, ok := res["error"]; ok {
					slog.Error("Morning playlist failed to start",
						slog.Any("error", msg),
					)
				}
			}),
		)
	}

	return s, nil
}
