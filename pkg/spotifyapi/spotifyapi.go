/*
Package spotifyapi implements a small client for the parts of the Spotify Web
API the bot needs: OAuth authorization and the currently-playing endpoint.
*/
package spotifyapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Config represents a configuration for the Spotify OAuth application
type Config struct {
	OAuthClientID     string `toml:"oauth_client_id"`
	OAuthClientSecret string `toml:"oauth_client_secret"`
	OAuthRedirectURI  string `toml:"oauth_redirect_URI"`
}

// Client represents a Spotify Web API client
type Client struct {
	conf    *oauth2.Config
	http    *http.Client
	baseURL string
}

// New initializes a Spotify Web API client with the given OAuth application configuration
func New(config Config) *Client {
	return &Client{
		conf: &oauth2.Config{
			ClientID:     config.OAuthClientID,
			ClientSecret: config.OAuthClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   oAuthAuthURL,
				TokenURL:  oAuthTokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			RedirectURL: config.OAuthRedirectURI,
			Scopes:      strings.Fields(oAuthScope),
		},
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: apiBaseURL,
	}
}

// Token represents an OAuth token as stored per user; the refresh token may
// be empty when the provider's response omitted it
type Token struct {
	AccessToken  string
	TokenType    string
	Scope        string
	RefreshToken string
	ExpiryDate   int64
}

// AuthorizationURL generates an authorization URL with the given state; the
// consent screen is always shown so a re-linking user sees what they grant
func (c *Client) AuthorizationURL(state string) string {
	return c.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

// Exchange trades an authorization code for a fresh token
func (c *Client) Exchange(ctx context.Context, code string) (Token, error) {
	token, err := c.conf.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response.StatusCode == http.StatusBadRequest &&
			strings.Contains(string(retrieveErr.Body), oAuthInvalidAuthorizationCodeResponse) {
			return Token{}, ErrInvalidAuthorizationCode
		}
		return Token{}, err
	}
	return fromOAuth2Token(token), nil
}

// Refresh requests a new token using the given refresh token; a provider
// response reporting the refresh token revoked maps to ErrRefreshTokenRevoked
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	token, err := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response.StatusCode == http.StatusBadRequest &&
			strings.Contains(string(retrieveErr.Body), oAuthRefreshTokenRevokedResponse) {
			return Token{}, ErrRefreshTokenRevoked
		}
		return Token{}, err
	}
	return fromOAuth2Token(token), nil
}

func fromOAuth2Token(token *oauth2.Token) Token {
	scope, _ := token.Extra("scope").(string)
	return Token{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		Scope:        scope,
		RefreshToken: token.RefreshToken,
		ExpiryDate:   token.Expiry.Unix(),
	}
}
