/*
Package bot implements the Telegram bot: command and inline query handlers,
and the fan-out that keeps every subscribed inline message showing what its
owner is currently listening to.
*/
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	tb "gopkg.in/telebot.v3"

	"NowListeningBot/internal/db"
)

// Update represents a Telegram bot Update
type Update struct {
	tb.Update
}

// Config represents a configuration for the Telegram bot
type Config struct {
	Token              string `toml:"token"`
	WebhookURL         string `toml:"webhook_URL"`
	WebhookSecretToken string `toml:"webhook_secret_token,omitempty"`
	AdminUserID        int64  `toml:"admin_UID,omitempty"`
}

// Store is the subset of the database layer the bot needs
type Store interface {
	GetSpotifyUser(userID int64) (db.SpotifyUser, error)
	GetPlayingData(userID int64) (db.PlayingData, error)
	GetMessages(userID int64) ([]db.NowListeningMessage, error)
	GetEnabledMessages(userID int64) ([]db.NowListeningMessage, error)
	GetExpiredEnabledMessages() ([]db.NowListeningMessage, error)
	GetMessage(userID int64, inlineMessageID string) (db.NowListeningMessage, error)
	AddMessage(userID int64, inlineMessageID string, permanent bool) error
	EnableMessage(message db.NowListeningMessage) error
	DisableMessages(messages []db.NowListeningMessage) error
	DeleteMessage(message db.NowListeningMessage) error
	GetAllUserIDs() ([]int64, error)
}

// Authorizer is the subset of the credential manager the bot needs
type Authorizer interface {
	AuthorizationURL(userID int64) (string, error)
	DeleteAllData(userID int64)
}

// Poller is the subset of the playback poller the bot needs
type Poller interface {
	PollUser(ctx context.Context, user db.SpotifyUser) (*db.PlayingData, bool, error)
}

// Bot represents the Telegram bot
type Bot struct {
	tb     *tb.Bot
	store  Store
	auth   Authorizer
	poller Poller

	// edit pushes an inline message edit to Telegram, send delivers a chat
	// message to a user
	edit func(inlineMessageID, text string, markup *tb.ReplyMarkup) error
	send func(userID int64, message string) error

	username    string
	adminUserID int64
}

// sending options
var sendHTMLMessageOption = &tb.SendOptions{ParseMode: tb.ModeHTML, DisableWebPagePreview: true}

// New initializes the bot and registers its handlers
func New(config Config, store Store, auth Authorizer, poller Poller) (*Bot, error) {
	_b, err := tb.NewBot(tb.Settings{
		Token:       config.Token,
		Synchronous: true,                             // for webhook mode
		Verbose:     log.GetLevel() >= log.DebugLevel, // for debugging only
	})
	if err != nil {
		return nil, err
	}

	b := &Bot{
		tb:          _b,
		store:       store,
		auth:        auth,
		poller:      poller,
		username:    _b.Me.Username,
		adminUserID: config.AdminUserID,
	}
	b.edit = b.telegramEdit
	b.send = b.telegramSend

	// command handlers
	b.tb.Handle("/start", b.start)
	b.tb.Handle("/privacy", b.privacy)
	b.tb.Handle("/broadcast", b.broadcast)

	// inline query and chosen-result handlers
	b.tb.Handle(tb.OnQuery, b.onQuery)
	b.tb.Handle(tb.OnInlineResult, b.onInlineResult)

	// inline keyboard button handlers
	resumeMenu := &tb.ReplyMarkup{}
	resumeButton := resumeMenu.Data(resumeButtonText, resumeButtonUnique)
	b.tb.Handle(&resumeButton, b.onResume)

	// update webhook URL
	if err = setWebhook(config.Token, config.WebhookURL, config.WebhookSecretToken); err != nil {
		return nil, err
	}

	log.Info("Bot OK") // all done, start serving
	return b, nil
}

// Username returns the bot's Telegram username
func (b *Bot) Username() string {
	return b.username
}

// HandleUpdate handles a Telegram bot Update
func (b *Bot) HandleUpdate(u Update) {
	b.tb.ProcessUpdate(u.Update)
}

// SendMessage sends the given HTML message to a Telegram user with the given ID
func (b *Bot) SendMessage(userID int64, message string) {
	if err := b.send(userID, message); err != nil {
		log.Error(err)
	}
}

// telegramSend delivers a chat message through the Telegram Bot API
func (b *Bot) telegramSend(userID int64, message string) error {
	_, err := b.tb.Send(&tb.Chat{ID: userID}, message, sendHTMLMessageOption)
	return err
}

// setWebhook sets the Telegram bot webhook URL to the given one
func setWebhook(token, URL, secretToken string) error {
	requestURL := fmt.Sprintf("https://api.telegram.org/bot%s/setWebhook?url=%s", token, URL)
	if secretToken != "" {
		requestURL += "&secret_token=" + secretToken
	}
	resp, err := http.Get(requestURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("error setting webhook (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var r struct {
		OK          bool   `json:"ok"`
		Result      bool   `json:"result,omitempty"`
		ErrorCode   int    `json:"error_code,omitempty"`
		Description string `json:"description"`
	}
	if err = json.Unmarshal(body, &r); err != nil {
		return err
	}
	if r.OK && r.Result && (r.Description == "Webhook was set" || r.Description == "Webhook is already set") {
		return nil
	}
	return fmt.Errorf("error setting webhook: (code %d) %s", r.ErrorCode, r.Description)
}
