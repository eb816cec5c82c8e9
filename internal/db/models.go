package db

import "errors"

// errors
var (
	ErrAuthStateNotFound   = errors.New("db: auth state not found")
	ErrUserNotFound        = errors.New("db: spotify user not found")
	ErrPlayingDataNotFound = errors.New("db: playing data not found")
	ErrMessageNotFound     = errors.New("db: now-listening message not found")
)

// SpotifyUser represents a user's Spotify OAuth credential
// tokens are withheld from data exports
type SpotifyUser struct {
	TelegramUserID int64  `json:"telegram_user"`
	LanguageCode   string `json:"language_code,omitempty"`
	AccessToken    string `json:"-"`
	TokenType      string `json:"token_type"`
	Scope          string `json:"scope"`
	ExpiryDate     int64  `json:"expiry_date"`
	RefreshToken   string `json:"-"`
}

// PlayingData represents a user's last known playback state
type PlayingData struct {
	TelegramUserID int64  `json:"telegram_user"`
	TrackName      string `json:"track_name"`
	TrackArtist    string `json:"track_artist"`
	TrackURL       string `json:"track_url"`
	LastChecked    int64  `json:"last_checked"`
	Playing        bool   `json:"playing"`
}

// Equal reports whether two playback states are the same, ignoring when they
// were last checked
func (d PlayingData) Equal(o PlayingData) bool {
	d.LastChecked = 0
	o.LastChecked = 0
	return d == o
}

// NowListeningMessage represents an inline message that reflects a user's playback
type NowListeningMessage struct {
	ID              int64  `json:"id"`
	TelegramUserID  int64  `json:"telegram_user"`
	InlineMessageID string `json:"inline_message_id"`
	TimeAdded       int64  `json:"time_added"`
	Enabled         bool   `json:"enabled"`
	Permanent       bool   `json:"permanent"`
}
