package bot

import (
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	tb "gopkg.in/telebot.v3"

	"NowListeningBot/internal/db"
)

// EditStatus classifies the outcome of an inline message edit
type EditStatus int

const (
	// EditOK means the edit was applied
	EditOK EditStatus = iota
	// EditUnchanged means the message already showed the pushed content
	EditUnchanged
	// EditNotFound means the inline message no longer exists
	EditNotFound
	// EditFailed covers every other failure
	EditFailed
)

// Telegram Bot API response descriptions the fan-out reacts to
const (
	editNotModifiedResponse      = "message is not modified"
	editMessageIDInvalidResponse = "MESSAGE_ID_INVALID"
	editMessageGoneResponse      = "message to edit not found"
)

// classifyEditError maps an edit error to an EditStatus
func classifyEditError(err error) EditStatus {
	if err == nil {
		return EditOK
	}
	var tbErr *tb.Error
	if errors.As(err, &tbErr) {
		switch {
		case strings.Contains(tbErr.Description, editNotModifiedResponse):
			return EditUnchanged
		case strings.Contains(tbErr.Description, editMessageIDInvalidResponse),
			strings.Contains(tbErr.Description, editMessageGoneResponse):
			return EditNotFound
		}
	}
	return EditFailed
}

// telegramEdit pushes an inline message edit through the Telegram Bot API
func (b *Bot) telegramEdit(inlineMessageID, text string, markup *tb.ReplyMarkup) error {
	_, err := b.tb.Edit(tb.StoredMessage{MessageID: inlineMessageID}, text, sendHTMLMessageOption, markup)
	return err
}

// pushEdit pushes the given content to one subscribed message, dropping the
// message's row when Telegram reports the inline message gone
func (b *Bot) pushEdit(message db.NowListeningMessage, text string, markup *tb.ReplyMarkup) {
	err := b.edit(message.InlineMessageID, text, markup)
	switch classifyEditError(err) {
	case EditOK, EditUnchanged:
	case EditNotFound:
		if err = b.store.DeleteMessage(message); err != nil {
			log.WithField("UID", message.TelegramUserID).Errorf("bot: failed to delete gone message: %v", err)
		}
	default:
		log.WithField("UID", message.TelegramUserID).Errorf("bot: failed to edit message: %v", err)
	}
}

// snapshot returns the user's last known playback snapshot, or nil when the
// user has never been observed playing
func (b *Bot) snapshot(userID int64) *db.PlayingData {
	data, err := b.store.GetPlayingData(userID)
	if err != nil {
		if !errors.Is(err, db.ErrPlayingDataNotFound) {
			log.WithField("UID", userID).Errorf("bot: failed to get playing data: %v", err)
		}
		return nil
	}
	return &data
}

// UpdateEnabledMessages pushes the user's current playback to every enabled
// message the user has; it is registered as a playback change listener
func (b *Bot) UpdateEnabledMessages(userID int64) {
	messages, err := b.store.GetEnabledMessages(userID)
	if err != nil {
		log.WithField("UID", userID).Errorf("bot: failed to get enabled messages: %v", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	data := b.snapshot(userID)
	text, markup := messageText(data, true), messageKeyboard(data, true)
	for _, message := range messages {
		b.pushEdit(message, text, markup)
	}
}

// DisableExpired pushes a final stopped-updating render to every enabled
// non-permanent message older than a day, then disables them; it returns how
// many messages were disabled
func (b *Bot) DisableExpired() (int, error) {
	expired, err := b.store.GetExpiredEnabledMessages()
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	byUser := make(map[int64][]db.NowListeningMessage)
	for _, message := range expired {
		byUser[message.TelegramUserID] = append(byUser[message.TelegramUserID], message)
	}
	for userID, messages := range byUser {
		data := b.snapshot(userID)
		text, markup := messageText(data, false), messageKeyboard(data, false)
		for _, message := range messages {
			b.pushEdit(message, text, markup)
		}
	}

	if err = b.store.DisableMessages(expired); err != nil {
		return 0, err
	}
	return len(expired), nil
}

// ResumeUpdates re-enables a disabled message for another day and pushes the
// user's current playback to it
func (b *Bot) ResumeUpdates(userID int64, inlineMessageID string) error {
	message, err := b.store.GetMessage(userID, inlineMessageID)
	if err != nil {
		return err
	}
	if err = b.store.EnableMessage(message); err != nil {
		return err
	}

	data := b.snapshot(userID)
	b.pushEdit(message, messageText(data, true), messageKeyboard(data, true))
	return nil
}

// subscribe records a freshly chosen inline message and brings it up to date
func (b *Bot) subscribe(userID int64, inlineMessageID string, permanent bool) error {
	if err := b.store.AddMessage(userID, inlineMessageID, permanent); err != nil {
		return err
	}
	b.UpdateEnabledMessages(userID)
	return nil
}
