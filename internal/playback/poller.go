/*
Package playback polls the Spotify currently-playing endpoint for connected
users, keeps each user's last known playback snapshot, and notifies
registered listeners when a user's playback changes.
*/
package playback

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"NowListeningBot/internal/db"
	"NowListeningBot/pkg/spotifyapi"
)

// Store is the subset of the database layer the poller needs
type Store interface {
	GetUsersWithValidAccess() ([]db.SpotifyUser, error)
	GetPlayingData(userID int64) (db.PlayingData, error)
	PutPlayingData(data db.PlayingData) error
}

// Music is the subset of the Spotify client the poller needs
type Music interface {
	CurrentlyPlaying(ctx context.Context, accessToken string) (*spotifyapi.CurrentlyPlaying, error)
}

// Poller fetches playback states and tracks changes
type Poller struct {
	store Store
	music Music

	listeners []func(userID int64)
	now       func() int64
}

// NewPoller initializes a poller on the given store and Spotify client
func NewPoller(store Store, music Music) *Poller {
	return &Poller{
		store: store,
		music: music,
		now:   func() int64 { return time.Now().Unix() },
	}
}

// OnChange registers a listener invoked with the user's ID whenever a poll
// observes that the user's playback changed; listeners run synchronously on
// the polling goroutine
func (p *Poller) OnChange(fn func(userID int64)) {
	p.listeners = append(p.listeners, fn)
}

// PollUser fetches a user's current playback and updates their stored
// snapshot; it returns the snapshot now on record, or nil when the user has
// never been observed playing, and whether the snapshot changed
func (p *Poller) PollUser(ctx context.Context, user db.SpotifyUser) (*db.PlayingData, bool, error) {
	playing, err := p.music.CurrentlyPlaying(ctx, user.AccessToken)
	if err != nil {
		return nil, false, err
	}

	prev, err := p.store.GetPlayingData(user.TelegramUserID)
	hasPrev := err == nil
	if err != nil && !errors.Is(err, db.ErrPlayingDataNotFound) {
		return nil, false, err
	}

	var next db.PlayingData
	switch {
	case playing != nil && playing.IsPlaying && playing.Item != nil:
		next = db.PlayingData{
			TelegramUserID: user.TelegramUserID,
			TrackName:      playing.Item.Name,
			TrackArtist:    playing.Item.JoinedArtists(),
			TrackURL:       playing.Item.OpenURL(),
			LastChecked:    p.now(),
			Playing:        true,
		}
	case hasPrev:
		// nothing is playing, keep the last track on record but mark it stopped
		next = prev
		next.Playing = false
		next.LastChecked = p.now()
	default:
		// never seen playing, nothing to record
		return nil, false, nil
	}

	if err = p.store.PutPlayingData(next); err != nil {
		return nil, false, err
	}

	changed := !hasPrev || !next.Equal(prev)
	if changed {
		for _, fn := range p.listeners {
			fn(user.TelegramUserID)
		}
	}
	return &next, changed, nil
}

// PollAll polls every user holding a valid access token; a failure for one
// user does not stop the sweep
func (p *Poller) PollAll(ctx context.Context) (polled, changed int, err error) {
	users, err := p.store.GetUsersWithValidAccess()
	if err != nil {
		return 0, 0, err
	}
	for _, user := range users {
		_, didChange, err := p.PollUser(ctx, user)
		if err != nil {
			log.WithField("UID", user.TelegramUserID).Errorf("playback: failed to poll: %v", err)
			continue
		}
		polled++
		if didChange {
			changed++
		}
	}
	return polled, changed, nil
}
