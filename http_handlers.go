package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"NowListeningBot/internal/auth"
	"NowListeningBot/internal/bot"
	"NowListeningBot/internal/db"
	rl "NowListeningBot/internal/ratelimiters"
	"NowListeningBot/pkg/spotifyapi"
)

// response bodies
const (
	InternalErrorResponseBody       = "Internal error"
	RateLimitedResponseBody         = "Rate limited"
	TelegramRequestTokenHeader      = "X-Telegram-Bot-Api-Secret-Token"
	InvalidOAuthRequestResponseBody = "Authorization failed (invalid request)"
)

// server wires the HTTP handlers to the bot and its collaborators
type server struct {
	config *Config
	bot    *bot.Bot
	auth   *auth.Manager
	store  *db.DB
}

// HandleBotUpdate handles an incoming Telegram bot Update request
func (s *server) HandleBotUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// check if request is legit from Telegram
	if s.config.TelegramBot.WebhookSecretToken != "" &&
		r.Header.Get(TelegramRequestTokenHeader) != s.config.TelegramBot.WebhookSecretToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Errorf("failed to read request body: %v", err)
		return
	}
	if len(body) == 0 {
		return
	}

	var update bot.Update
	if err = json.Unmarshal(body, &update); err != nil {
		log.WithField("IP", r.RemoteAddr).Errorf("invalid update: %v", err)
		return
	}

	var userID int64
	switch {
	case update.Message != nil && update.Message.Sender != nil:
		userID = update.Message.Sender.ID
	case update.Callback != nil && update.Callback.Sender != nil:
		userID = update.Callback.Sender.ID
	case update.Query != nil && update.Query.Sender != nil:
		userID = update.Query.Sender.ID
	case update.InlineResult != nil && update.InlineResult.Sender != nil:
		userID = update.InlineResult.Sender.ID
	default:
		log.WithField("IP", r.RemoteAddr).Debug("ignoring update with no handled payload")
		return
	}
	if userID != 0 && !rl.BotUpdateAllowed(userID) {
		log.WithField("UID", userID).Info("rate limited")
		return
	}

	// handle the update in the background and respond to the webhook request ASAP
	go s.bot.HandleUpdate(update)
}

// HandleOAuthRedirect handles an incoming Spotify OAuth redirect request
func (s *server) HandleOAuthRedirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		fmt.Fprintln(w, InvalidOAuthRequestResponseBody)
		return
	}

	query := r.URL.Query()
	state := query.Get("state")
	code := query.Get("code")
	if errorParam := query.Get("error"); errorParam != "" || code == "" || state == "" {
		// the user denied the consent screen, or the request is malformed
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, InvalidOAuthRequestResponseBody)
		return
	}

	if !rl.OAuthRedirectRequestAllowed(r.RemoteAddr) {
		log.WithField("IP", r.RemoteAddr).Info("rate limited")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprintln(w, RateLimitedResponseBody)
		return
	}

	userID, err := s.store.GetUserIDByAuthState(state)
	if errors.Is(err, db.ErrAuthStateNotFound) {
		log.WithFields(log.Fields{
			"IP":    r.RemoteAddr,
			"state": state,
		}).Info("invalid OAuth redirect request: unknown state")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintln(w, InvalidOAuthRequestResponseBody)
		return
	} else if err != nil {
		log.WithField("IP", r.RemoteAddr).Errorf("failed to look up auth state: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, InternalErrorResponseBody)
		return
	}

	if err = s.auth.CompleteAuthorization(context.Background(), userID, "", code); err != nil {
		logger := log.WithFields(log.Fields{
			"IP":  r.RemoteAddr,
			"UID": userID,
		})
		if errors.Is(err, spotifyapi.ErrInvalidAuthorizationCode) {
			logger.Info("invalid OAuth redirect request: invalid authorization code")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, InvalidOAuthRequestResponseBody)
		} else {
			logger.Errorf("failed to authorize: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintln(w, InternalErrorResponseBody)
		}
		return
	}

	log.Infof("user %d connected their Spotify account", userID)
	s.bot.SendMessage(userID, fmt.Sprintf(
		"Your Spotify account is connected! Type <code>@%s</code> in any chat to share what you're listening to.",
		s.bot.Username()))

	// let the user back to the chat using the Telegram URI scheme
	http.Redirect(w, r, "tg://resolve?domain="+s.bot.Username(), http.StatusMovedPermanently)
}

// middleware provides some useful middlewares for the server
func middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() { // returns an HTTP 500 response if the next handler got panicked
			if err := recover(); err != nil {
				log.Errorf("error recovered in request \"%s %s\": %v", r.Method, r.URL.Path, err)
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintln(w, InternalErrorResponseBody)
				return
			}
		}()

		// gets client's real IP if serving behind Cloudflare
		if ip := r.Header.Get("Cf-Connecting-Ip"); ip != "" {
			r.RemoteAddr = ip
		}

		next.ServeHTTP(w, r)
	})
}
