package alert

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/carelyhq/carely/internal/store"
)

func TestStoreSink(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "carely.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer s.Close()

	userID, err := s.CreateUser(store.User{Name: "Margaret"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	sink := &StoreSink{Store: s}
	if err := sink.Create(Alert{
		UserID:      userID,
		AlertType:   "mood_concern",
		Title:       "Very negative sentiment",
		Description: "sentiment -0.85",
		Severity:    "high",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	alerts, err := s.RecentAlerts(userID, 5)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].AlertType != "mood_concern" {
		t.Errorf("alerts = %+v", alerts)
	}
}

type recordingSink struct {
	alerts []Alert
	err    error
}

func (r *recordingSink) Create(a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestMultiSinkSecondaryFailureSwallowed(t *testing.T) {
	primary := &recordingSink{}
	failing := &recordingSink{err: errors.New("network down")}

	m := &MultiSink{Primary: primary, Extra: []Sink{failing}}
	if err := m.Create(Alert{Title: "check in"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(primary.alerts) != 1 || len(failing.alerts) != 1 {
		t.Errorf("delivery counts: primary %d, extra %d", len(primary.alerts), len(failing.alerts))
	}
}

func TestMultiSinkPrimaryFailureSurfaces(t *testing.T) {
	primary := &recordingSink{err: errors.New("db locked")}
	m := &MultiSink{Primary: primary}
	if err := m.Create(Alert{Title: "check in"}); err == nil {
		t.Fatal("expected primary failure to surface")
	}
}

type fakeBot struct {
	sent []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramSinkFormatsMessage(t *testing.T) {
	bot := &fakeBot{}
	sink := &TelegramSink{bot: bot, chatID: 42}

	if err := sink.Create(Alert{
		Severity:    "high",
		Title:       "Emotional distress detected",
		Description: "sentiment -0.9",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages", len(bot.sent))
	}

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("unexpected chattable type %T", bot.sent[0])
	}
	if msg.ChatID != 42 {
		t.Errorf("chat id = %d", msg.ChatID)
	}
	for _, want := range []string{"HIGH", "Emotional distress detected", "sentiment -0.9"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("message missing %q: %q", want, msg.Text)
		}
	}
}
