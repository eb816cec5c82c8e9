package spotifyapi

import "fmt"

// URLs
const (
	oAuthAuthURL  = "https://accounts.spotify.com/authorize"
	oAuthTokenURL = "https://accounts.spotify.com/api/token"

	apiBaseURL           = "https://api.spotify.com/v1"
	currentlyPlayingPath = "/me/player/currently-playing"
)

// scope requested on every authorization
const oAuthScope = "user-read-currently-playing user-read-playback-state"

const (
	// substring of the token endpoint's response when the refresh token has
	// been revoked by the user
	oAuthRefreshTokenRevokedResponse = "Refresh token revoked"
	// substring of the token endpoint's response when the authorization code
	// is invalid or already used
	oAuthInvalidAuthorizationCodeResponse = "invalid_grant"
)

// errors
var (
	ErrInvalidAuthorizationCode = fmt.Errorf("spotifyapi: invalid authorization code")
	ErrRefreshTokenRevoked      = fmt.Errorf("spotifyapi: refresh token revoked")
	ErrAuthorizationExpired     = fmt.Errorf("spotifyapi: authorization expired")
	ErrRateLimited              = fmt.Errorf("spotifyapi: rate limited")
	ErrUnknown                  = fmt.Errorf("spotifyapi: unknown error")
)
