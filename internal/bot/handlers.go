package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	log "github.com/sirupsen/logrus"
	tb "gopkg.in/telebot.v3"

	"NowListeningBot/internal/db"
)

// inline query result IDs, reported back in chosen-result feedback
const (
	resultIDUpdateForever = "NowListeningUpdateForever"
	resultIDUpdateADay    = "NowListeningUpdateADay"
	resultIDNoUpdate      = "NowListeningNoUpdate"
)

// switchPMParameter is carried through the connect-with-Spotify deep link
const switchPMParameter = "AuthSpotify"

// on command `/start`
// start greets the user, or replies a Spotify authorization link if they
// haven't connected their account yet
func (b *Bot) start(c tb.Context) error {
	userID := c.Sender().ID

	user, err := b.store.GetSpotifyUser(userID)
	if err != nil && !errors.Is(err, db.ErrUserNotFound) {
		log.WithField("UID", userID).Error(err)
		return c.Send("Something went wrong, please try again later.")
	}
	if err == nil && user.RefreshToken != "" {
		// already connected
		return c.Send(fmt.Sprintf("Your Spotify account is already connected. Type <code>@%s</code> in any chat to share what you're listening to!", b.username), sendHTMLMessageOption)
	}

	authorizationURL, err := b.auth.AuthorizationURL(userID)
	if err != nil {
		log.WithField("UID", userID).Error(err)
		return c.Send("Something went wrong, please try again later.")
	}
	return c.Send(fmt.Sprintf("Hi! I can show what you're listening to on Spotify in any chat.\n\n<a href=\"%s\">Connect your Spotify account</a> to get started.", authorizationURL), sendHTMLMessageOption)
}

// on command `/privacy`
// privacy replies an export of everything stored about the user, or deletes
// it all when asked with `/privacy delete confirm`
func (b *Bot) privacy(c tb.Context) error {
	userID := c.Sender().ID

	switch c.Message().Payload {
	case "":
		export, err := b.exportUserData(userID)
		if err != nil {
			log.WithField("UID", userID).Error(err)
			return c.Send("Something went wrong, please try again later.")
		}
		return c.Send(fmt.Sprintf("Here is everything stored about you (tokens withheld):\n\n<pre>%s</pre>\n\nSend <code>/privacy delete</code> to delete it all.", html.EscapeString(export)), sendHTMLMessageOption)
	case "delete":
		return c.Send("This will disconnect your Spotify account and delete all your data, and every shared message will stop updating. Send <code>/privacy delete confirm</code> to proceed.", sendHTMLMessageOption)
	case "delete confirm":
		b.auth.DeleteAllData(userID)
		return c.Send("All your data has been deleted. Send /start to connect again.")
	default:
		return c.Send("Unknown option. Send /privacy to see your data, or <code>/privacy delete</code> to delete it.", sendHTMLMessageOption)
	}
}

// exportUserData marshals everything stored about the user; token fields are
// excluded from serialization
func (b *Bot) exportUserData(userID int64) (string, error) {
	var export struct {
		SpotifyUser *db.SpotifyUser          `json:"spotify_user,omitempty"`
		PlayingData *db.PlayingData          `json:"playing_data,omitempty"`
		Messages    []db.NowListeningMessage `json:"messages,omitempty"`
	}

	user, err := b.store.GetSpotifyUser(userID)
	if err == nil {
		export.SpotifyUser = &user
	} else if !errors.Is(err, db.ErrUserNotFound) {
		return "", err
	}
	data, err := b.store.GetPlayingData(userID)
	if err == nil {
		export.PlayingData = &data
	} else if !errors.Is(err, db.ErrPlayingDataNotFound) {
		return "", err
	}
	if export.Messages, err = b.store.GetMessages(userID); err != nil {
		return "", err
	}

	serialized, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", err
	}
	return string(serialized), nil
}

// on command `/broadcast`
// broadcast sends an announcement from the admin to every stored user
func (b *Bot) broadcast(c tb.Context) error {
	if b.adminUserID == 0 || c.Sender().ID != b.adminUserID {
		return nil
	}

	message := strings.TrimSpace(c.Message().Payload)
	if message == "" {
		return c.Send("Usage: <code>/broadcast &lt;message&gt;</code>", sendHTMLMessageOption)
	}

	sent, total, err := b.broadcastToAll(message)
	if err != nil {
		log.Error(err)
		return c.Send("Something went wrong, please try again later.")
	}
	return c.Send(fmt.Sprintf("Broadcast sent successfully to %d/%d users.", sent, total))
}

// broadcastToAll delivers the message to every stored user, skipping over
// users it cannot reach
func (b *Bot) broadcastToAll(message string) (sent, total int, err error) {
	userIDs, err := b.store.GetAllUserIDs()
	if err != nil {
		return 0, 0, err
	}

	for _, userID := range userIDs {
		if err := b.send(userID, message); err != nil {
			log.WithField("UID", userID).Errorf("bot: failed to broadcast: %v", err)
			continue
		}
		sent++
	}
	return sent, len(userIDs), nil
}

// on inline queries
// onQuery replies the now-listening article results, or a connect-with-Spotify
// prompt for users who haven't connected their account
func (b *Bot) onQuery(c tb.Context) error {
	userID := c.Sender().ID

	user, err := b.store.GetSpotifyUser(userID)
	if err != nil || user.RefreshToken == "" {
		if err != nil && !errors.Is(err, db.ErrUserNotFound) {
			log.WithField("UID", userID).Error(err)
		}
		return c.Answer(&tb.QueryResponse{
			IsPersonal:        true,
			CacheTime:         1,
			SwitchPMText:      "Connect with Spotify",
			SwitchPMParameter: switchPMParameter,
		})
	}

	// poll right away so the result reflects the freshest state, falling back
	// to the stored snapshot when Spotify is unreachable
	data, _, err := b.poller.PollUser(context.Background(), user)
	if err != nil {
		log.WithField("UID", userID).Errorf("bot: failed to poll on inline query: %v", err)
		data = b.snapshot(userID)
	}

	text, markup := messageText(data, true), messageKeyboard(data, true)
	results := tb.Results{
		newArticleResult(resultIDUpdateForever, "Share and keep updating", "The message will update with your playback indefinitely.", text, markup),
		newArticleResult(resultIDUpdateADay, "Share and update for a day", "The message will update with your playback for 24 hours.", text, markup),
		newArticleResult(resultIDNoUpdate, "Share a one-off snapshot", "The message will never update.", text, markup),
	}
	return c.Answer(&tb.QueryResponse{
		Results:    results,
		IsPersonal: true,
		CacheTime:  1,
	})
}

func newArticleResult(id, title, description, text string, markup *tb.ReplyMarkup) *tb.ArticleResult {
	result := &tb.ArticleResult{
		Title:       title,
		Description: description,
	}
	result.SetResultID(id)
	result.SetContent(&tb.InputTextMessageContent{
		Text:           text,
		ParseMode:      tb.ModeHTML,
		DisablePreview: true,
	})
	result.SetReplyMarkup(markup)
	return result
}

// on chosen inline results
// onInlineResult records the sent message for fan-out according to which
// result the user chose
func (b *Bot) onInlineResult(c tb.Context) error {
	result := c.InlineResult()
	if result.MessageID == "" {
		// no inline_message_id means the message can never be edited
		return nil
	}

	switch result.ResultID {
	case resultIDUpdateForever:
		return b.subscribe(result.Sender.ID, result.MessageID, true)
	case resultIDUpdateADay:
		return b.subscribe(result.Sender.ID, result.MessageID, false)
	default:
		return nil
	}
}

// on callbacks of the resume button
// onResume re-enables a stopped message for its owner
func (b *Bot) onResume(c tb.Context) error {
	callback := c.Callback()
	if callback.MessageID == "" {
		return c.Respond()
	}

	err := b.ResumeUpdates(callback.Sender.ID, callback.MessageID)
	if errors.Is(err, db.ErrMessageNotFound) {
		// someone other than the owner pressed the button
		return c.Respond(&tb.CallbackResponse{Text: "Only the person who shared this message can resume it."})
	} else if err != nil {
		log.WithField("UID", callback.Sender.ID).Error(err)
		return c.Respond(&tb.CallbackResponse{Text: "Something went wrong, please try again later."})
	}
	return c.Respond(&tb.CallbackResponse{Text: "This message will keep updating for another day."})
}
