package playback

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"NowListeningBot/internal/db"
	"NowListeningBot/pkg/spotifyapi"
)

type fakeStore struct {
	users    []db.SpotifyUser
	snapshot map[int64]db.PlayingData
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshot: make(map[int64]db.PlayingData)}
}

func (s *fakeStore) GetUsersWithValidAccess() ([]db.SpotifyUser, error) {
	return s.users, nil
}

func (s *fakeStore) GetPlayingData(userID int64) (db.PlayingData, error) {
	data, ok := s.snapshot[userID]
	if !ok {
		return db.PlayingData{}, db.ErrPlayingDataNotFound
	}
	return data, nil
}

func (s *fakeStore) PutPlayingData(data db.PlayingData) error {
	s.snapshot[data.TelegramUserID] = data
	return nil
}

type fakeMusic struct {
	byToken map[string]*spotifyapi.CurrentlyPlaying
	errs    map[string]error
}

func (m *fakeMusic) CurrentlyPlaying(_ context.Context, accessToken string) (*spotifyapi.CurrentlyPlaying, error) {
	if err, ok := m.errs[accessToken]; ok {
		return nil, err
	}
	return m.byToken[accessToken], nil
}

func playingTrack(name, artist, url string) *spotifyapi.CurrentlyPlaying {
	return &spotifyapi.CurrentlyPlaying{
		IsPlaying: true,
		Item: &spotifyapi.Track{
			Name:         name,
			Artists:      []spotifyapi.Artist{{Name: artist}},
			ExternalURLs: map[string]string{"spotify": url},
		},
	}
}

func newTestPoller(store *fakeStore, music *fakeMusic) *Poller {
	p := NewPoller(store, music)
	p.now = func() int64 { return 12345 }
	return p
}

func TestPollUserRecordsNewTrack(t *testing.T) {
	store := newFakeStore()
	music := &fakeMusic{byToken: map[string]*spotifyapi.CurrentlyPlaying{
		"tok": playingTrack("Time", "Pink Floyd", "https://open.spotify.com/track/t"),
	}}
	p := newTestPoller(store, music)

	var notified []int64
	p.OnChange(func(userID int64) { notified = append(notified, userID) })

	data, changed, err := p.PollUser(context.Background(), db.SpotifyUser{TelegramUserID: 1, AccessToken: "tok"})
	if err != nil {
		t.Fatalf("PollUser() error: %v", err)
	}
	if !changed {
		t.Error("PollUser() changed = false, want true for a first observation")
	}
	want := db.PlayingData{
		TelegramUserID: 1,
		TrackName:      "Time",
		TrackArtist:    "Pink Floyd",
		TrackURL:       "https://open.spotify.com/track/t",
		LastChecked:    12345,
		Playing:        true,
	}
	if diff := cmp.Diff(&want, data); diff != "" {
		t.Errorf("PollUser() snapshot mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, store.snapshot[1]); diff != "" {
		t.Errorf("stored snapshot mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1}, notified); diff != "" {
		t.Errorf("listener notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestPollUserUnchangedTrackDoesNotNotify(t *testing.T) {
	store := newFakeStore()
	store.snapshot[1] = db.PlayingData{
		TelegramUserID: 1,
		TrackName:      "Time",
		TrackArtist:    "Pink Floyd",
		TrackURL:       "https://open.spotify.com/track/t",
		LastChecked:    100,
		Playing:        true,
	}
	music := &fakeMusic{byToken: map[string]*spotifyapi.CurrentlyPlaying{
		"tok": playingTrack("Time", "Pink Floyd", "https://open.spotify.com/track/t"),
	}}
	p := newTestPoller(store, music)

	var notified []int64
	p.OnChange(func(userID int64) { notified = append(notified, userID) })

	_, changed, err := p.PollUser(context.Background(), db.SpotifyUser{TelegramUserID: 1, AccessToken: "tok"})
	if err != nil {
		t.Fatalf("PollUser() error: %v", err)
	}
	if changed {
		t.Error("PollUser() changed = true for the same track")
	}
	if len(notified) != 0 {
		t.Errorf("listeners notified %v, want none", notified)
	}
	// the stored snapshot still advances its checked time
	if got := store.snapshot[1].LastChecked; got != 12345 {
		t.Errorf("stored LastChecked = %d, want 12345", got)
	}
}

func TestPollUserStoppedPlaybackKeepsLastTrack(t *testing.T) {
	store := newFakeStore()
	store.snapshot[1] = db.PlayingData{
		TelegramUserID: 1,
		TrackName:      "Time",
		TrackArtist:    "Pink Floyd",
		TrackURL:       "https://open.spotify.com/track/t",
		LastChecked:    100,
		Playing:        true,
	}
	music := &fakeMusic{byToken: map[string]*spotifyapi.CurrentlyPlaying{}}
	p := newTestPoller(store, music)

	data, changed, err := p.PollUser(context.Background(), db.SpotifyUser{TelegramUserID: 1, AccessToken: "tok"})
	if err != nil {
		t.Fatalf("PollUser() error: %v", err)
	}
	if !changed {
		t.Error("PollUser() changed = false after playback stopped")
	}
	if data.Playing {
		t.Error("snapshot still marked playing after playback stopped")
	}
	if data.TrackName != "Time" {
		t.Errorf("snapshot TrackName = %q, want the last played track", data.TrackName)
	}
}

func TestPollUserNeverObservedPlaying(t *testing.T) {
	store := newFakeStore()
	music := &fakeMusic{byToken: map[string]*spotifyapi.CurrentlyPlaying{}}
	p := newTestPoller(store, music)

	data, changed, err := p.PollUser(context.Background(), db.SpotifyUser{TelegramUserID: 1, AccessToken: "tok"})
	if err != nil {
		t.Fatalf("PollUser() error: %v", err)
	}
	if data != nil || changed {
		t.Errorf("PollUser() = (%+v, %v), want (nil, false)", data, changed)
	}
	if len(store.snapshot) != 0 {
		t.Errorf("snapshot stored for a user never observed playing: %+v", store.snapshot)
	}
}

func TestPollAllIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	store.users = []db.SpotifyUser{
		{TelegramUserID: 1, AccessToken: "ok"},
		{TelegramUserID: 2, AccessToken: "broken"},
		{TelegramUserID: 3, AccessToken: "quiet"},
	}
	music := &fakeMusic{
		byToken: map[string]*spotifyapi.CurrentlyPlaying{
			"ok": playingTrack("Time", "Pink Floyd", "https://open.spotify.com/track/t"),
		},
		errs: map[string]error{"broken": errors.New("api down")},
	}
	p := newTestPoller(store, music)

	polled, changed, err := p.PollAll(context.Background())
	if err != nil {
		t.Fatalf("PollAll() error: %v", err)
	}
	if polled != 2 || changed != 1 {
		t.Errorf("PollAll() = (%d polled, %d changed), want (2, 1)", polled, changed)
	}
}
