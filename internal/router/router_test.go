package router

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/carelyhq/carely/internal/config"
	"github.com/carelyhq/carely/internal/memory"
	"github.com/carelyhq/carely/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "carely.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestUser(t *testing.T, s *store.Store) int64 {
	t.Helper()
	id, err := s.CreateUser(store.User{Name: "Margaret"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

type stubHandler struct {
	name string
	resp *Response
	err  error
	hits int
}

func (h *stubHandler) Name() string { return h.name }
func (h *stubHandler) Handle(context.Context, Request) (*Response, error) {
	h.hits++
	return h.resp, h.err
}

func TestRouteFirstMatchWins(t *testing.T) {
	first := &stubHandler{name: "first", resp: &Response{Text: "from first"}}
	second := &stubHandler{name: "second", resp: &Response{Text: "from second"}}

	r := New(first, second)
	resp := r.Route(context.Background(), Request{Message: "hello", Now: time.Now()})
	if resp == nil || resp.Text != "from first" {
		t.Fatalf("resp = %+v", resp)
	}
	if second.hits != 0 {
		t.Error("second handler ran after a match")
	}
}

func TestRouteHandlerErrorFallsThrough(t *testing.T) {
	broken := &stubHandler{name: "broken", err: errors.New("boom")}
	next := &stubHandler{name: "next", resp: &Response{Text: "recovered"}}

	r := New(broken, next)
	resp := r.Route(context.Background(), Request{Message: "hello", Now: time.Now()})
	if resp == nil || resp.Text != "recovered" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestRouteNoMatchReturnsNil(t *testing.T) {
	r := New(&stubHandler{name: "quiet"})
	if resp := r.Route(context.Background(), Request{Message: "hello", Now: time.Now()}); resp != nil {
		t.Errorf("resp = %+v, want nil", resp)
	}
}

func TestRouteEmergencyBypassesFastPaths(t *testing.T) {
	fast := &stubHandler{name: "fast", resp: &Response{Text: "utility answer"}}
	r := New(fast)

	resp := r.Route(context.Background(), Request{Message: "when's my next pill, I'm having chest pain", Now: time.Now()})
	if resp != nil {
		t.Fatalf("emergency message got fast-path answer: %+v", resp)
	}
	if fast.hits != 0 {
		t.Error("fast path ran for an emergency message")
	}
}

func TestMedicationTimingNextSlotToday(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	if _, err := s.AddMedication(store.Medication{
		UserID: userID, Name: "Lisinopril", Dosage: "10mg",
		ScheduleTimes: []string{"08:00", "20:00"},
	}); err != nil {
		t.Fatalf("AddMedication: %v", err)
	}

	h := &MedicationTimingHandler{Store: s}
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.Local)

	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "When should I take my next pill?", Now: now})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response")
	}
	if resp.ConversationType != "medication_schedule_query" {
		t.Errorf("conversation type = %q", resp.ConversationType)
	}
	if !strings.Contains(resp.Text, "Lisinopril") || !strings.Contains(resp.Text, "8:00 PM") || !strings.Contains(resp.Text, "today") {
		t.Errorf("resp = %q", resp.Text)
	}
	if n := len(strings.Split(strings.TrimRight(resp.Text, "."), ". ")); n != 1 {
		t.Errorf("expected a single sentence, got %d", n)
	}
}

func TestMedicationTimingRollsToTomorrow(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	if _, err := s.AddMedication(store.Medication{
		UserID: userID, Name: "Metformin", ScheduleTimes: []string{"8:00 AM"},
	}); err != nil {
		t.Fatalf("AddMedication: %v", err)
	}

	h := &MedicationTimingHandler{Store: s}
	now := time.Date(2026, 8, 25, 22, 0, 0, 0, time.Local)

	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "when do i take my next dose", Now: now})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp == nil || !strings.Contains(resp.Text, "tomorrow") {
		t.Errorf("resp = %+v, want rollover to tomorrow", resp)
	}
}

func TestMedicationTimingNoMedications(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)

	h := &MedicationTimingHandler{Store: s}
	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "when is my next dose", Now: time.Now()})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp == nil || !strings.Contains(resp.Text, "don't have any medications") {
		t.Errorf("resp = %+v", resp)
	}
}

func TestMedicationTimingIgnoresOtherMessages(t *testing.T) {
	h := &MedicationTimingHandler{Store: nil}
	resp, err := h.Handle(context.Background(), Request{Message: "lovely weather today", Now: time.Now()})
	if err != nil || resp != nil {
		t.Errorf("resp = %+v, err = %v", resp, err)
	}
}

func TestParseSlot(t *testing.T) {
	tests := []struct {
		in       string
		hour, mn int
		ok       bool
	}{
		{"08:00", 8, 0, true},
		{"20:30", 20, 30, true},
		{"8:00 AM", 8, 0, true},
		{"8:00 PM", 20, 0, true},
		{"12:00 AM", 0, 0, true},
		{"12:15 PM", 12, 15, true},
		{"9 PM", 21, 0, true},
		{"garbage", 0, 0, false},
		{"25:00", 0, 0, false},
	}
	for _, tt := range tests {
		hour, mn, ok := parseSlot(tt.in)
		if ok != tt.ok || hour != tt.hour || mn != tt.mn {
			t.Errorf("parseSlot(%q) = %d,%d,%v want %d,%d,%v", tt.in, hour, mn, ok, tt.hour, tt.mn, tt.ok)
		}
	}
}

func TestDateTimeHandler(t *testing.T) {
	now := time.Date(2026, 8, 25, 15, 30, 0, 0, time.Local)
	h := DateTimeHandler{}

	tests := []struct {
		name    string
		message string
		want    string
		match   bool
	}{
		{"time", "what time is it?", "3:30 PM", true},
		{"date", "what day is it today?", "Tuesday, August 25, 2026", true},
		{"excluded medication", "what time is my pill", "", false},
		{"unrelated", "I like soup", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.Handle(context.Background(), Request{Message: tt.message, Now: now})
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if tt.match != (resp != nil) {
				t.Fatalf("match = %v, want %v", resp != nil, tt.match)
			}
			if resp != nil && !strings.Contains(resp.Text, tt.want) {
				t.Errorf("resp = %q, want to contain %q", resp.Text, tt.want)
			}
		})
	}
}

func TestIntentHandlerAutoLogs(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	if _, err := s.AddMedication(store.Medication{UserID: userID, Name: "Blood Pressure Pill", Dosage: "5mg"}); err != nil {
		t.Fatalf("AddMedication: %v", err)
	}

	h := &MedicationIntentHandler{Store: s, Classifier: HeuristicClassifier{}}
	now := time.Now()

	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "I took my blood pressure pill just now", Now: now})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp == nil || !strings.Contains(resp.Text, "recorded") {
		t.Fatalf("resp = %+v", resp)
	}

	logs, err := s.MedicationLogsForDay(userID, now)
	if err != nil {
		t.Fatalf("MedicationLogsForDay: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
}

func TestIntentHandlerRedactsLogNotes(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	if _, err := s.AddMedication(store.Medication{UserID: userID, Name: "Metformin", Dosage: "500mg"}); err != nil {
		t.Fatalf("AddMedication: %v", err)
	}

	h := &MedicationIntentHandler{Store: s, Classifier: HeuristicClassifier{}}
	now := time.Now()

	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "I took my Metformin, call me back at 555-867-5309", Now: now})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp == nil || !strings.Contains(resp.Text, "recorded") {
		t.Fatalf("resp = %+v", resp)
	}

	logs, err := s.MedicationLogsForDay(userID, now)
	if err != nil {
		t.Fatalf("MedicationLogsForDay: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if strings.Contains(logs[0].Notes, "555-867-5309") {
		t.Errorf("log notes retain PII: %q", logs[0].Notes)
	}
	if !strings.Contains(logs[0].Notes, "[REDACTED PHONE]") {
		t.Errorf("log notes not redacted: %q", logs[0].Notes)
	}
}

func TestIntentHandlerLowExtractionAsksConfirmation(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	if _, err := s.AddMedication(store.Medication{UserID: userID, Name: "Blood Pressure Pill"}); err != nil {
		t.Fatalf("AddMedication: %v", err)
	}

	h := &MedicationIntentHandler{Store: s, Classifier: HeuristicClassifier{}}
	now := time.Now()

	// Only one of three name words appears, so extraction stays below
	// the auto-log gate.
	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "I took the pill", Now: now})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp == nil || !strings.Contains(resp.Text, "make sure") {
		t.Fatalf("resp = %+v, want confirmation prompt", resp)
	}

	logs, _ := s.MedicationLogsForDay(userID, now)
	if len(logs) != 0 {
		t.Error("low-confidence extraction must not auto-log")
	}
}

func TestIntentHandlerUnknownMedicationAsksForName(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	if _, err := s.AddMedication(store.Medication{UserID: userID, Name: "Metformin"}); err != nil {
		t.Fatalf("AddMedication: %v", err)
	}

	h := &MedicationIntentHandler{Store: s, Classifier: HeuristicClassifier{}}
	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "I took it earlier", Now: time.Now()})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp == nil || !strings.Contains(resp.Text, "Metformin") {
		t.Fatalf("resp = %+v, want list of medication names", resp)
	}
}

func TestIntentHandlerAnswersAsk(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	if _, err := s.AddMedication(store.Medication{UserID: userID, Name: "Lisinopril", Dosage: "10mg", ScheduleTimes: []string{"08:00"}}); err != nil {
		t.Fatalf("AddMedication: %v", err)
	}

	h := &MedicationIntentHandler{Store: s, Classifier: HeuristicClassifier{}}
	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "did i take everything, which medication is left", Now: time.Now()})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp == nil || !strings.Contains(resp.Text, "Lisinopril") {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.ConversationType != "medication_query" {
		t.Errorf("conversation type = %q", resp.ConversationType)
	}
}

type fixedClassifier struct {
	d Decision
}

func (c fixedClassifier) Classify(context.Context, string) (Decision, error) { return c.d, nil }

func TestIntentHandlerConfidenceGate(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	if _, err := s.AddMedication(store.Medication{UserID: userID, Name: "Metformin"}); err != nil {
		t.Fatalf("AddMedication: %v", err)
	}

	h := &MedicationIntentHandler{
		Store:      s,
		Classifier: fixedClassifier{Decision{Intent: IntentLogMedication, Confidence: 0.5}},
	}
	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "I took my metformin", Now: time.Now()})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp != nil {
		t.Errorf("below-gate confidence produced a response: %+v", resp)
	}
}

func TestSafeClassifyFallsBackToHeuristic(t *testing.T) {
	// Model errors degrade to the keyword heuristic, which still
	// recognizes intake phrasing.
	d := SafeClassify(context.Background(), erringClassifier{}, "I took my pill this morning")
	if d.Intent != IntentLogMedication {
		t.Errorf("intent = %q, want %q", d.Intent, IntentLogMedication)
	}

	d = SafeClassify(context.Background(), nil, "hello")
	if d.Intent != IntentGeneralChat {
		t.Errorf("intent = %q", d.Intent)
	}
}

type erringClassifier struct{}

func (erringClassifier) Classify(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("model down")
}

func TestRecapHandler(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.Local)
	yesterday := now.AddDate(0, 0, -1)

	if err := s.SaveDailySummary(store.DailySummary{
		UserID: userID, Date: yesterday.Format("2006-01-02"),
		Summary: "A gentle day with a long walk.", KeyTopics: []string{"activities"},
	}); err != nil {
		t.Fatalf("SaveDailySummary: %v", err)
	}

	h := &RelativeDayRecapHandler{Episodic: memory.NewEpisodicMemory(s, nil)}

	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "what did we talk about yesterday?", Now: now})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp == nil || !strings.Contains(resp.Text, "gentle day") {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.ConversationType != "daily_recap" {
		t.Errorf("conversation type = %q", resp.ConversationType)
	}

	// "yesterday" without a talk/summary verb is not a recap.
	resp, err = h.Handle(context.Background(), Request{UserID: userID, Message: "yesterday was sunny", Now: now})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp != nil {
		t.Errorf("verb-less message matched recap: %+v", resp)
	}
}

func TestRecapDayBeforeYesterday(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.Local)
	target := now.AddDate(0, 0, -2)

	if err := s.SaveDailySummary(store.DailySummary{
		UserID: userID, Date: target.Format("2006-01-02"), Summary: "Bingo night recap.",
	}); err != nil {
		t.Fatalf("SaveDailySummary: %v", err)
	}

	h := &RelativeDayRecapHandler{Episodic: memory.NewEpisodicMemory(s, nil)}
	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "what happened the day before yesterday", Now: now})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp == nil || !strings.Contains(resp.Text, "Bingo night") {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestPartialEventHandler(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.Local)

	mustAdd := func(title, eventType string, when time.Time) {
		t.Helper()
		if _, err := s.AddEvent(store.PersonalEvent{UserID: userID, Title: title, EventType: eventType, EventDate: when}); err != nil {
			t.Fatalf("AddEvent: %v", err)
		}
	}
	mustAdd("Dentist appointment", "appointment", now.AddDate(0, 0, 2).Add(5*time.Hour))
	mustAdd("Cardiologist appointment", "appointment", now.AddDate(0, 0, 4))
	mustAdd("Next month checkup", "appointment", now.AddDate(0, 0, 20))

	h := &PartialEventHandler{Structured: memory.NewStructuredMemory(s)}

	t.Run("single match answers", func(t *testing.T) {
		resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "when is my dentist appointment?", Now: now})
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if resp == nil || !strings.Contains(resp.Text, "Dentist appointment") || !strings.Contains(resp.Text, "in 2 days") {
			t.Fatalf("resp = %+v", resp)
		}
	})

	t.Run("multiple matches disambiguate", func(t *testing.T) {
		resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "when is my appointment?", Now: now})
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if resp == nil || !strings.Contains(resp.Text, "which one") {
			t.Fatalf("resp = %+v", resp)
		}
		if !strings.Contains(resp.Text, "Dentist appointment") || !strings.Contains(resp.Text, "Cardiologist appointment") {
			t.Errorf("candidates missing: %q", resp.Text)
		}
		if strings.Contains(resp.Text, "Next month checkup") {
			t.Errorf("event outside the 7-day window listed: %q", resp.Text)
		}
	})

	t.Run("no match falls through", func(t *testing.T) {
		resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "when is my choir meeting?", Now: now})
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if resp != nil {
			t.Errorf("resp = %+v, want fall-through", resp)
		}
	})
}

func TestMemoryRecallHandler(t *testing.T) {
	s := newTestStore(t)
	userID := newTestUser(t, s)
	if _, err := s.AddMedication(store.Medication{UserID: userID, Name: "Metformin", Dosage: "500mg"}); err != nil {
		t.Fatalf("AddMedication: %v", err)
	}

	mgr := newTestManager(t, s)
	h := &MemoryRecallHandler{Memory: mgr}

	resp, err := h.Handle(context.Background(), Request{UserID: userID, Message: "do you remember my medication schedule", Now: time.Now()})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp == nil || !strings.Contains(resp.Text, "Metformin") {
		t.Fatalf("resp = %+v", resp)
	}

	resp, err = h.Handle(context.Background(), Request{UserID: userID, Message: "how about that weather", Now: time.Now()})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp != nil {
		t.Errorf("non-recall message matched: %+v", resp)
	}
}

func newTestManager(t *testing.T, s *store.Store) *memory.Manager {
	t.Helper()
	emb, err := memory.NewEmbedder(config.EmbeddingConfig{Provider: "local", Dimension: 64, CacheSize: 128})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	lt, err := memory.NewLongTermStore(filepath.Join(t.TempDir(), "vectors"), emb)
	if err != nil {
		t.Fatalf("NewLongTermStore: %v", err)
	}
	return memory.NewManager(
		memory.NewStructuredMemory(s),
		memory.NewShortTermMemory(s, 8),
		memory.NewEpisodicMemory(s, nil),
		lt,
		memory.ManagerOptions{},
	)
}
