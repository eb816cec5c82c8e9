package bot

import (
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	tb "gopkg.in/telebot.v3"

	"NowListeningBot/internal/db"
)

type fakeStore struct {
	snapshot map[int64]db.PlayingData
	messages []db.NowListeningMessage
	expired  []db.NowListeningMessage
	userIDs  []int64

	deleted  []db.NowListeningMessage
	enabled  []db.NowListeningMessage
	disabled []db.NowListeningMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshot: make(map[int64]db.PlayingData)}
}

func (s *fakeStore) GetSpotifyUser(int64) (db.SpotifyUser, error) {
	return db.SpotifyUser{}, db.ErrUserNotFound
}

func (s *fakeStore) GetAllUserIDs() ([]int64, error) {
	return s.userIDs, nil
}

func (s *fakeStore) GetPlayingData(userID int64) (db.PlayingData, error) {
	data, ok := s.snapshot[userID]
	if !ok {
		return db.PlayingData{}, db.ErrPlayingDataNotFound
	}
	return data, nil
}

func (s *fakeStore) GetMessages(userID int64) ([]db.NowListeningMessage, error) {
	return s.GetEnabledMessages(userID)
}

func (s *fakeStore) GetEnabledMessages(userID int64) ([]db.NowListeningMessage, error) {
	var out []db.NowListeningMessage
	for _, m := range s.messages {
		if m.TelegramUserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) GetExpiredEnabledMessages() ([]db.NowListeningMessage, error) {
	return s.expired, nil
}

func (s *fakeStore) GetMessage(userID int64, inlineMessageID string) (db.NowListeningMessage, error) {
	for _, m := range s.messages {
		if m.TelegramUserID == userID && m.InlineMessageID == inlineMessageID {
			return m, nil
		}
	}
	return db.NowListeningMessage{}, db.ErrMessageNotFound
}

func (s *fakeStore) AddMessage(userID int64, inlineMessageID string, permanent bool) error {
	s.messages = append(s.messages, db.NowListeningMessage{
		TelegramUserID:  userID,
		InlineMessageID: inlineMessageID,
		Enabled:         true,
		Permanent:       permanent,
	})
	return nil
}

func (s *fakeStore) EnableMessage(message db.NowListeningMessage) error {
	s.enabled = append(s.enabled, message)
	return nil
}

func (s *fakeStore) DisableMessages(messages []db.NowListeningMessage) error {
	s.disabled = append(s.disabled, messages...)
	return nil
}

func (s *fakeStore) DeleteMessage(message db.NowListeningMessage) error {
	s.deleted = append(s.deleted, message)
	return nil
}

// recordedEdit captures a single pushed inline message edit
type recordedEdit struct {
	InlineMessageID string
	Text            string
}

func newTestBot(store *fakeStore) (*Bot, *[]recordedEdit) {
	var edits []recordedEdit
	b := &Bot{store: store}
	b.edit = func(inlineMessageID, text string, _ *tb.ReplyMarkup) error {
		edits = append(edits, recordedEdit{inlineMessageID, text})
		return nil
	}
	return b, &edits
}

func TestClassifyEditError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want EditStatus
	}{
		{"nil", nil, EditOK},
		{"not modified", &tb.Error{Code: 400, Description: "Bad Request: message is not modified"}, EditUnchanged},
		{"invalid message ID", &tb.Error{Code: 400, Description: "Bad Request: MESSAGE_ID_INVALID"}, EditNotFound},
		{"message gone", &tb.Error{Code: 400, Description: "Bad Request: message to edit not found"}, EditNotFound},
		{"other API error", &tb.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}, EditFailed},
		{"non-API error", errors.New("connection reset"), EditFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyEditError(tt.err); got != tt.want {
				t.Errorf("classifyEditError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdateEnabledMessagesPushesToEach(t *testing.T) {
	store := newFakeStore()
	store.snapshot[1] = db.PlayingData{TelegramUserID: 1, TrackName: "Dogs", TrackArtist: "Pink Floyd", Playing: true}
	store.messages = []db.NowListeningMessage{
		{TelegramUserID: 1, InlineMessageID: "msg-a", Enabled: true},
		{TelegramUserID: 1, InlineMessageID: "msg-b", Enabled: true},
		{TelegramUserID: 2, InlineMessageID: "msg-c", Enabled: true},
	}
	b, edits := newTestBot(store)

	b.UpdateEnabledMessages(1)

	wantText := messageText(&db.PlayingData{TelegramUserID: 1, TrackName: "Dogs", TrackArtist: "Pink Floyd", Playing: true}, true)
	want := []recordedEdit{
		{"msg-a", wantText},
		{"msg-b", wantText},
	}
	if diff := cmp.Diff(want, *edits); diff != "" {
		t.Errorf("pushed edits mismatch (-want +got):\n%s", diff)
	}
}

func TestPushEditDeletesGoneMessageRowOnly(t *testing.T) {
	store := newFakeStore()
	store.messages = []db.NowListeningMessage{
		{TelegramUserID: 1, InlineMessageID: "gone", Enabled: true},
		{TelegramUserID: 1, InlineMessageID: "alive", Enabled: true},
	}
	b, _ := newTestBot(store)
	b.edit = func(inlineMessageID, _ string, _ *tb.ReplyMarkup) error {
		if inlineMessageID == "gone" {
			return &tb.Error{Code: 400, Description: "Bad Request: MESSAGE_ID_INVALID"}
		}
		return nil
	}

	b.UpdateEnabledMessages(1)

	want := []db.NowListeningMessage{{TelegramUserID: 1, InlineMessageID: "gone", Enabled: true}}
	if diff := cmp.Diff(want, store.deleted); diff != "" {
		t.Errorf("deleted rows mismatch (-want +got):\n%s", diff)
	}
}

func TestPushEditUnchangedIsNotAFailure(t *testing.T) {
	store := newFakeStore()
	store.messages = []db.NowListeningMessage{{TelegramUserID: 1, InlineMessageID: "same", Enabled: true}}
	b, _ := newTestBot(store)
	b.edit = func(string, string, *tb.ReplyMarkup) error {
		return &tb.Error{Code: 400, Description: "Bad Request: message is not modified"}
	}

	b.UpdateEnabledMessages(1)

	if len(store.deleted) != 0 {
		t.Errorf("unchanged edit deleted rows: %+v", store.deleted)
	}
}

func TestDisableExpiredRendersOncePerUser(t *testing.T) {
	store := newFakeStore()
	store.snapshot[1] = db.PlayingData{TelegramUserID: 1, TrackName: "Sheep", TrackArtist: "Pink Floyd", Playing: true}
	store.expired = []db.NowListeningMessage{
		{TelegramUserID: 1, InlineMessageID: "msg-a", Enabled: true},
		{TelegramUserID: 1, InlineMessageID: "msg-b", Enabled: true},
		{TelegramUserID: 2, InlineMessageID: "msg-c", Enabled: true},
	}
	b, edits := newTestBot(store)

	disabled, err := b.DisableExpired()
	if err != nil {
		t.Fatalf("DisableExpired() error: %v", err)
	}
	if disabled != 3 {
		t.Errorf("DisableExpired() = %d, want 3", disabled)
	}

	var gotIDs []string
	for _, e := range *edits {
		gotIDs = append(gotIDs, e.InlineMessageID)
		if e.Text != messageText(b.snapshot(1), false) && e.Text != messageText(nil, false) {
			t.Errorf("edit to %s is not a stopped-updating render: %q", e.InlineMessageID, e.Text)
		}
	}
	sort.Strings(gotIDs)
	if diff := cmp.Diff([]string{"msg-a", "msg-b", "msg-c"}, gotIDs); diff != "" {
		t.Errorf("pushed edit targets mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(store.expired, store.disabled); diff != "" {
		t.Errorf("disabled rows mismatch (-want +got):\n%s", diff)
	}
}

func TestResumeUpdates(t *testing.T) {
	store := newFakeStore()
	store.snapshot[1] = db.PlayingData{TelegramUserID: 1, TrackName: "Pigs", TrackArtist: "Pink Floyd", Playing: true}
	store.messages = []db.NowListeningMessage{{TelegramUserID: 1, InlineMessageID: "msg-a", Enabled: false}}
	b, edits := newTestBot(store)

	if err := b.ResumeUpdates(1, "msg-a"); err != nil {
		t.Fatalf("ResumeUpdates() error: %v", err)
	}
	if len(store.enabled) != 1 || store.enabled[0].InlineMessageID != "msg-a" {
		t.Errorf("enabled rows = %+v, want msg-a", store.enabled)
	}
	if len(*edits) != 1 || (*edits)[0].InlineMessageID != "msg-a" {
		t.Fatalf("pushed edits = %+v, want one edit to msg-a", *edits)
	}
	wantText := messageText(b.snapshot(1), true)
	if got := (*edits)[0].Text; got != wantText {
		t.Error(cmp.Diff(wantText, got))
	}

	if err := b.ResumeUpdates(2, "msg-a"); !errors.Is(err, db.ErrMessageNotFound) {
		t.Errorf("ResumeUpdates() by a non-owner error = %v, want ErrMessageNotFound", err)
	}
}

func TestSubscribeRecordsAndPushes(t *testing.T) {
	store := newFakeStore()
	store.snapshot[1] = db.PlayingData{TelegramUserID: 1, TrackName: "Money", TrackArtist: "Pink Floyd", Playing: true}
	b, edits := newTestBot(store)

	if err := b.subscribe(1, "fresh", true); err != nil {
		t.Fatalf("subscribe() error: %v", err)
	}
	if len(store.messages) != 1 || !store.messages[0].Permanent {
		t.Errorf("recorded messages = %+v, want one permanent row", store.messages)
	}
	if len(*edits) != 1 || (*edits)[0].InlineMessageID != "fresh" {
		t.Errorf("pushed edits = %+v, want one edit to the fresh message", *edits)
	}
}
