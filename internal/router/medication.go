package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/carelyhq/carely/internal/safety"
	"github.com/carelyhq/carely/internal/store"
)

var medicationTimingKeywords = []string{
	"next dose", "next pill", "next medication",
	"when do i take", "when should i take", "when is my medication",
	"what time is my pill", "what time do i take",
}

// MedicationTimingHandler answers "when is my next dose" from the
// schedule alone: the nearest future time-of-day slot across all active
// medications, rolling past slots to tomorrow.
type MedicationTimingHandler struct {
	Store *store.Store
}

func (h *MedicationTimingHandler) Name() string { return "medication_timing" }

func (h *MedicationTimingHandler) Handle(_ context.Context, req Request) (*Response, error) {
	lower := strings.ToLower(req.Message)
	if !containsAny(lower, medicationTimingKeywords...) {
		return nil, nil
	}

	meds, err := h.Store.GetMedications(req.UserID, true)
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}
	if len(meds) == 0 {
		return &Response{
			Text:             "You don't have any medications scheduled right now.",
			ConversationType: "medication_schedule_query",
		}, nil
	}

	now := req.Now
	var bestMed *store.Medication
	var bestTime time.Time
	for i := range meds {
		for _, slot := range meds[i].ScheduleTimes {
			t, ok := nextOccurrence(slot, now)
			if !ok {
				continue
			}
			if bestMed == nil || t.Before(bestTime) {
				bestMed = &meds[i]
				bestTime = t
			}
		}
	}

	if bestMed == nil {
		return &Response{
			Text:             "Your medications don't have scheduled times set. Would you like to add them?",
			ConversationType: "medication_schedule_query",
		}, nil
	}

	day := "today"
	if bestTime.Day() != now.Day() {
		day = "tomorrow"
	}
	return &Response{
		Text:             fmt.Sprintf("Your next medication is %s at %s %s.", bestMed.Name, bestTime.Format("3:04 PM"), day),
		ConversationType: "medication_schedule_query",
	}, nil
}

// nextOccurrence resolves a daily time-of-day slot ("08:00", "8:00 PM")
// to its next occurrence at or after now.
func nextOccurrence(slot string, now time.Time) (time.Time, bool) {
	hour, minute, ok := parseSlot(slot)
	if !ok {
		return time.Time{}, false
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if t.Before(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}

func parseSlot(slot string) (int, int, bool) {
	s := strings.ToUpper(strings.TrimSpace(slot))

	meridiem := ""
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(s, suffix) {
			meridiem = suffix
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}

	parts := strings.SplitN(s, ":", 2)
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	minute := 0
	if len(parts) == 2 {
		if minute, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
			return 0, 0, false
		}
	}

	switch meridiem {
	case "PM":
		if hour < 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// MedicationIntentHandler runs the intent classifier and answers
// ask/log medication intents from authoritative data. Low-confidence
// classifications fall through to the next handler.
type MedicationIntentHandler struct {
	Store      *store.Store
	Classifier Classifier
}

const (
	askConfidenceGate        = 0.6
	logConfidenceGate        = 0.75
	extractionConfidenceGate = 0.7
)

func (h *MedicationIntentHandler) Name() string { return "medication_intent" }

func (h *MedicationIntentHandler) Handle(ctx context.Context, req Request) (*Response, error) {
	d := SafeClassify(ctx, h.Classifier, req.Message)

	switch {
	case d.Intent == IntentAskMedication && d.Confidence > askConfidenceGate:
		return h.answerAsk(req)
	case d.Intent == IntentLogMedication && d.Confidence > logConfidenceGate:
		return h.logIntake(req)
	default:
		return nil, nil
	}
}

// answerAsk reports the schedule plus what was already taken today. The
// data is authoritative; no generation involved.
func (h *MedicationIntentHandler) answerAsk(req Request) (*Response, error) {
	meds, err := h.Store.GetMedications(req.UserID, true)
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}
	if len(meds) == 0 {
		return &Response{
			Text:             "You don't have any medications on your list right now.",
			ConversationType: "medication_query",
		}, nil
	}

	var sb strings.Builder
	sb.WriteString("Here's your medication list:\n")
	for _, m := range meds {
		fmt.Fprintf(&sb, "• %s (%s)", m.Name, m.Dosage)
		if len(m.ScheduleTimes) > 0 {
			fmt.Fprintf(&sb, " at %s", strings.Join(m.ScheduleTimes, ", "))
		}
		sb.WriteString("\n")
	}

	logs, err := h.Store.MedicationLogsForDay(req.UserID, req.Now)
	if err == nil && len(logs) > 0 {
		names := medNames(meds)
		sb.WriteString("\nAlready taken today:\n")
		for _, l := range logs {
			if name, ok := names[l.MedicationID]; ok {
				fmt.Fprintf(&sb, "• %s at %s\n", name, l.TakenTime.Format("3:04 PM"))
			}
		}
	}

	return &Response{Text: sb.String(), ConversationType: "medication_query"}, nil
}

func (h *MedicationIntentHandler) logIntake(req Request) (*Response, error) {
	meds, err := h.Store.GetMedications(req.UserID, true)
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}
	if len(meds) == 0 {
		return &Response{
			Text:             "I don't have any medications on your list yet, so I can't log that. Would you like to add one?",
			ConversationType: "medication_log",
		}, nil
	}

	med, confidence := extractMedication(req.Message, meds)
	switch {
	case med == nil:
		names := make([]string, len(meds))
		for i, m := range meds {
			names[i] = m.Name
		}
		return &Response{
			Text:             fmt.Sprintf("Which medication did you take? Your list has: %s.", strings.Join(names, ", ")),
			ConversationType: "medication_log",
		}, nil

	case confidence > extractionConfidenceGate:
		if _, err := h.Store.LogMedication(store.MedicationLog{
			UserID:       req.UserID,
			MedicationID: med.ID,
			TakenTime:    req.Now,
			Status:       "taken",
			Notes:        safety.RedactPII(strings.TrimSpace(req.Message)),
		}); err != nil {
			return nil, fmt.Errorf("log medication: %w", err)
		}
		return &Response{
			Text:             fmt.Sprintf("Great! I've recorded that you took your %s (%s) at %s.", med.Name, med.Dosage, req.Now.Format("3:04 PM")),
			ConversationType: "medication_log",
		}, nil

	default:
		return &Response{
			Text:             fmt.Sprintf("Just to make sure — did you take your %s? Say yes and I'll log it.", med.Name),
			ConversationType: "medication_log",
		}, nil
	}
}

// extractMedication matches the message against the active list. A full
// name match is high confidence; partial word overlap scales down with
// the fraction of name words missing.
func extractMedication(message string, meds []store.Medication) (*store.Medication, float64) {
	lower := strings.ToLower(message)

	var best *store.Medication
	var bestConfidence float64
	for i := range meds {
		name := strings.ToLower(meds[i].Name)
		if strings.Contains(lower, name) {
			return &meds[i], 0.9
		}

		words := strings.Fields(name)
		matched := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		confidence := 0.6 * float64(matched) / float64(len(words))
		if confidence > bestConfidence {
			best = &meds[i]
			bestConfidence = confidence
		}
	}
	return best, bestConfidence
}

func medNames(meds []store.Medication) map[int64]string {
	names := make(map[int64]string, len(meds))
	for _, m := range meds {
		names[m.ID] = m.Name
	}
	return names
}
