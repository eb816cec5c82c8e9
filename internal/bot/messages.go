package bot

import (
	"fmt"
	"html"

	tb "gopkg.in/telebot.v3"

	"NowListeningBot/internal/db"
)

// message texts
const (
	notListeningText     = "I'm not listening to Spotify right now 🔇"
	listeningTextFormat  = "🎵 I'm listening to <b>%s</b> by <i>%s</i> 🎵"
	lastPlayedTextFormat = "🎵 I was last listening to <b>%s</b> by <i>%s</i> 🎵"
	stoppedUpdatingText  = "<i>This message has stopped updating.</i>"
)

// button texts
const (
	openInSpotifyButtonText = "Open in Spotify"
	shareButtonText         = "Share what you're listening to"
	resumeButtonText        = "Continue getting updates"
)

// resumeButtonUnique routes resume button callbacks
const resumeButtonUnique = "resume_updates"

// messageText renders a now-listening message body for the given playback
// snapshot; a nil snapshot means the user has never been observed playing
func messageText(data *db.PlayingData, enabled bool) string {
	var text string
	switch {
	case data == nil:
		text = notListeningText
	case data.Playing:
		text = fmt.Sprintf(listeningTextFormat, html.EscapeString(data.TrackName), html.EscapeString(data.TrackArtist))
	default:
		text = notListeningText + "\n\n" +
			fmt.Sprintf(lastPlayedTextFormat, html.EscapeString(data.TrackName), html.EscapeString(data.TrackArtist))
	}
	if !enabled {
		text += "\n\n" + stoppedUpdatingText
	}
	return text
}

// messageKeyboard renders the inline keyboard accompanying a now-listening
// message; a disabled message carries only the resume button
func messageKeyboard(data *db.PlayingData, enabled bool) *tb.ReplyMarkup {
	markup := &tb.ReplyMarkup{}
	if !enabled {
		markup.Inline(markup.Row(markup.Data(resumeButtonText, resumeButtonUnique)))
		return markup
	}

	var rows []tb.Row
	if data != nil && data.TrackURL != "" {
		rows = append(rows, markup.Row(markup.URL(openInSpotifyButtonText, data.TrackURL)))
	}
	rows = append(rows, markup.Row(markup.Query(shareButtonText, "")))
	markup.Inline(rows...)
	return markup
}
