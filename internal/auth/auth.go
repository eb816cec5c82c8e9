/*
Package auth manages Spotify OAuth credentials for Telegram users: issuing
authorization URLs, completing the code exchange, refreshing expiring tokens
and purging everything a user has stored.
*/
package auth

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"NowListeningBot/internal/db"
	"NowListeningBot/pkg/spotifyapi"
)

// Store is the subset of the database layer the manager needs
type Store interface {
	GetAuthState(userID int64) (string, error)
	DeleteAuthState(userID int64) error
	GetSpotifyUser(userID int64) (db.SpotifyUser, error)
	PutSpotifyUser(user db.SpotifyUser) error
	DeleteSpotifyUser(userID int64) error
	GetUsersRequiringRefresh() ([]db.SpotifyUser, error)
	DeletePlayingData(userID int64) error
	DeleteAllMessages(userID int64) error
}

// API is the subset of the Spotify client the manager needs
type API interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code string) (spotifyapi.Token, error)
	Refresh(ctx context.Context, refreshToken string) (spotifyapi.Token, error)
}

// Manager handles the OAuth credential lifecycle
type Manager struct {
	store Store
	api   API
}

// NewManager initializes a credential manager on the given store and Spotify client
func NewManager(store Store, api API) *Manager {
	return &Manager{store: store, api: api}
}

// AuthorizationURL returns the Spotify consent URL for the given user,
// carrying the user's auth state so the redirect can be attributed
func (m *Manager) AuthorizationURL(userID int64) (string, error) {
	state, err := m.store.GetAuthState(userID)
	if err != nil {
		return "", err
	}
	return m.api.AuthorizationURL(state), nil
}

// CompleteAuthorization exchanges an authorization code and stores the
// resulting credential for the user
func (m *Manager) CompleteAuthorization(ctx context.Context, userID int64, languageCode, code string) error {
	token, err := m.api.Exchange(ctx, code)
	if err != nil {
		return err
	}

	prior, err := m.store.GetSpotifyUser(userID)
	if err != nil && !errors.Is(err, db.ErrUserNotFound) {
		return err
	}
	return m.store.PutSpotifyUser(applyToken(prior, userID, languageCode, token))
}

// applyToken merges a freshly obtained token into a user's stored credential,
// retaining the prior refresh token when the provider omitted a new one and
// the prior language code when none was given
func applyToken(prior db.SpotifyUser, userID int64, languageCode string, token spotifyapi.Token) db.SpotifyUser {
	user := db.SpotifyUser{
		TelegramUserID: userID,
		LanguageCode:   languageCode,
		AccessToken:    token.AccessToken,
		TokenType:      token.TokenType,
		Scope:          token.Scope,
		ExpiryDate:     token.ExpiryDate,
		RefreshToken:   token.RefreshToken,
	}
	if user.RefreshToken == "" {
		user.RefreshToken = prior.RefreshToken
	}
	if user.LanguageCode == "" {
		user.LanguageCode = prior.LanguageCode
	}
	return user
}

// RefreshExpiring refreshes the credentials of every user whose access token
// has expired, purging users whose refresh token was revoked; it returns how
// many credentials were refreshed and how many users were purged
func (m *Manager) RefreshExpiring(ctx context.Context) (refreshed, revoked int, err error) {
	users, err := m.store.GetUsersRequiringRefresh()
	if err != nil {
		return 0, 0, err
	}
	for _, user := range users {
		token, err := m.api.Refresh(ctx, user.RefreshToken)
		if err != nil {
			if errors.Is(err, spotifyapi.ErrRefreshTokenRevoked) {
				m.purge(user.TelegramUserID)
				revoked++
				continue
			}
			log.WithField("UID", user.TelegramUserID).Errorf("auth: failed to refresh token: %v", err)
			continue
		}
		if err = m.store.PutSpotifyUser(applyToken(user, user.TelegramUserID, user.LanguageCode, token)); err != nil {
			log.WithField("UID", user.TelegramUserID).Errorf("auth: failed to store refreshed token: %v", err)
			continue
		}
		refreshed++
	}
	return refreshed, revoked, nil
}

// DeleteAllData removes everything stored about a user: credential, playback
// snapshot, messages and auth state
func (m *Manager) DeleteAllData(userID int64) {
	m.purge(userID)
	if err := m.store.DeleteAuthState(userID); err != nil {
		log.WithField("UID", userID).Errorf("auth: failed to delete auth state: %v", err)
	}
}

// purge removes a user's credential and everything depending on it; each
// deletion is attempted independently so one failure does not strand the rest
func (m *Manager) purge(userID int64) {
	if err := m.store.DeleteSpotifyUser(userID); err != nil {
		log.WithField("UID", userID).Errorf("auth: failed to delete credential: %v", err)
	}
	if err := m.store.DeletePlayingData(userID); err != nil {
		log.WithField("UID", userID).Errorf("auth: failed to delete playing data: %v", err)
	}
	if err := m.store.DeleteAllMessages(userID); err != nil {
		log.WithField("UID", userID).Errorf("auth: failed to delete messages: %v", err)
	}
}
