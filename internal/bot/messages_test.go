package bot

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"NowListeningBot/internal/db"
)

func TestMessageText(t *testing.T) {
	playing := &db.PlayingData{
		TelegramUserID: 1,
		TrackName:      "Shine On You Crazy Diamond (Parts I-V) <live>",
		TrackArtist:    "Pink Floyd & Friends",
		TrackURL:       "https://open.spotify.com/track/abc",
		LastChecked:    100,
		Playing:        true,
	}
	stopped := *playing
	stopped.Playing = false

	tests := []struct {
		name    string
		data    *db.PlayingData
		enabled bool
		want    string
	}{
		{
			"never observed playing",
			nil,
			true,
			"I'm not listening to Spotify right now 🔇",
		},
		{
			"currently playing escapes HTML",
			playing,
			true,
			"🎵 I'm listening to <b>Shine On You Crazy Diamond (Parts I-V) &lt;live&gt;</b> by <i>Pink Floyd &amp; Friends</i> 🎵",
		},
		{
			"stopped playing keeps last track",
			&stopped,
			true,
			"I'm not listening to Spotify right now 🔇\n\n🎵 I was last listening to <b>Shine On You Crazy Diamond (Parts I-V) &lt;live&gt;</b> by <i>Pink Floyd &amp; Friends</i> 🎵",
		},
		{
			"disabled appends the stopped-updating note",
			playing,
			false,
			"🎵 I'm listening to <b>Shine On You Crazy Diamond (Parts I-V) &lt;live&gt;</b> by <i>Pink Floyd &amp; Friends</i> 🎵\n\n<i>This message has stopped updating.</i>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messageText(tt.data, tt.enabled); got != tt.want {
				t.Error(cmp.Diff(tt.want, got))
			}
		})
	}
}

func TestMessageKeyboard(t *testing.T) {
	playing := &db.PlayingData{
		TrackURL: "https://open.spotify.com/track/abc",
		Playing:  true,
	}

	t.Run("enabled with track", func(t *testing.T) {
		markup := messageKeyboard(playing, true)
		if len(markup.InlineKeyboard) != 2 {
			t.Fatalf("keyboard has %d rows, want 2", len(markup.InlineKeyboard))
		}
		if got := markup.InlineKeyboard[0][0].URL; got != playing.TrackURL {
			t.Errorf("first row URL = %q, want the track URL", got)
		}
		if markup.InlineKeyboard[1][0].InlineQuery != "" {
			t.Errorf("share button query = %q, want empty", markup.InlineKeyboard[1][0].InlineQuery)
		}
	})

	t.Run("enabled without snapshot", func(t *testing.T) {
		markup := messageKeyboard(nil, true)
		if len(markup.InlineKeyboard) != 1 {
			t.Fatalf("keyboard has %d rows, want only the share row", len(markup.InlineKeyboard))
		}
	})

	t.Run("disabled carries only the resume button", func(t *testing.T) {
		markup := messageKeyboard(playing, false)
		if len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 1 {
			t.Fatalf("keyboard = %+v, want a single resume button", markup.InlineKeyboard)
		}
		if got := markup.InlineKeyboard[0][0].Text; got != resumeButtonText {
			t.Errorf("button text = %q", got)
		}
	})
}
