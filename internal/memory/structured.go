package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/carelyhq/carely/internal/store"
)

// StructuredMemory answers from authoritative records: profile,
// medications, meal times, daily logs, upcoming events. It never uses
// similarity search, and missing data degrades to an informative string
// rather than an error.
type StructuredMemory struct {
	store *store.Store
}

func NewStructuredMemory(s *store.Store) *StructuredMemory {
	return &StructuredMemory{store: s}
}

// MedicationSchedule formats the active medication list.
func (m *StructuredMemory) MedicationSchedule(userID int64) string {
	meds, err := m.store.GetMedications(userID, true)
	if err != nil || len(meds) == 0 {
		return "You don't have any medications scheduled."
	}

	var sb strings.Builder
	sb.WriteString("Your medication schedule:\n\n")
	for _, med := range meds {
		fmt.Fprintf(&sb, "• %s - %s\n", med.Name, med.Dosage)
		if med.Frequency != "" {
			fmt.Fprintf(&sb, "  Frequency: %s\n", med.Frequency)
		}
		if len(med.ScheduleTimes) > 0 {
			fmt.Fprintf(&sb, "  Times: %s\n", strings.Join(med.ScheduleTimes, ", "))
		}
		if med.Instructions != "" {
			fmt.Fprintf(&sb, "  Instructions: %s\n", med.Instructions)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// MealTime returns the configured time for a meal (breakfast, lunch,
// dinner) from the user's preferences, or "" when not configured.
func (m *StructuredMemory) MealTime(userID int64, meal string) string {
	user, err := m.store.GetUser(userID)
	if err != nil || user == nil || user.Preferences == "" {
		return ""
	}

	var prefs struct {
		MealTimes map[string]string `json:"meal_times"`
	}
	if err := json.Unmarshal([]byte(user.Preferences), &prefs); err != nil {
		return ""
	}
	return prefs.MealTimes[strings.ToLower(meal)]
}

// DailyLogs aggregates one civil day's meal mentions, taken medications
// and activity mentions from the conversation record. excludeMessage
// keeps the in-flight user message out of its own recall.
type DailyLogs struct {
	Date             string
	Meals            []string
	MedicationsTaken []string
	Activities       []string
	Conversations    int
}

func (m *StructuredMemory) DailyLogs(userID int64, day time.Time, excludeMessage string) DailyLogs {
	logs := DailyLogs{Date: day.Format("2006-01-02")}

	turns, err := m.store.TurnsForDay(userID, day)
	if err == nil {
		logs.Conversations = len(turns)
		exclude := strings.TrimSpace(strings.ToLower(excludeMessage))
		seenMeals := make(map[string]bool)
		for _, t := range turns {
			if exclude != "" && strings.TrimSpace(strings.ToLower(t.Message)) == exclude {
				continue
			}
			text := strings.ToLower(t.Message + " " + t.Response)
			for _, meal := range []string{"breakfast", "lunch", "dinner"} {
				if strings.Contains(text, meal) && !seenMeals[meal] {
					seenMeals[meal] = true
					logs.Meals = append(logs.Meals, meal)
				}
			}
			for _, word := range []string{"walk", "exercise", "activity"} {
				if strings.Contains(text, word) {
					logs.Activities = append(logs.Activities, t.Message)
					break
				}
			}
		}
	}

	medLogs, err := m.store.MedicationLogsForDay(userID, day)
	if err == nil && len(medLogs) > 0 {
		meds, _ := m.store.GetMedications(userID, false)
		names := make(map[int64]store.Medication, len(meds))
		for _, med := range meds {
			names[med.ID] = med
		}
		for _, l := range medLogs {
			if med, ok := names[l.MedicationID]; ok {
				logs.MedicationsTaken = append(logs.MedicationsTaken,
					fmt.Sprintf("%s (%s) at %s", med.Name, med.Dosage, l.TakenTime.Format("3:04 PM")))
			}
		}
	}

	return logs
}

// UpcomingEvents returns events within the horizon, soonest first.
func (m *StructuredMemory) UpcomingEvents(userID int64, days int, now time.Time) []store.PersonalEvent {
	events, err := m.store.UpcomingEvents(userID, days, now)
	if err != nil {
		return nil
	}
	return events
}

// FormattedProfile builds the profile section handed to generation:
// name, preferences, active medications, and upcoming events within 30
// days labeled by proximity.
func (m *StructuredMemory) FormattedProfile(userID int64, now time.Time) string {
	user, err := m.store.GetUser(userID)
	if err != nil || user == nil {
		return "User profile not found."
	}

	var sb strings.Builder
	sb.WriteString("User Profile:\n")
	fmt.Fprintf(&sb, "Name: %s\n", user.Name)

	if strings.TrimSpace(user.Preferences) != "" && user.Preferences != "{}" {
		fmt.Fprintf(&sb, "Preferences: %s\n", user.Preferences)
	}

	if meds, err := m.store.GetMedications(userID, true); err == nil && len(meds) > 0 {
		fmt.Fprintf(&sb, "\nActive Medications (%d):\n", len(meds))
		for _, med := range meds {
			fmt.Fprintf(&sb, "  • %s - %s\n", med.Name, med.Dosage)
		}
	}

	if events := m.UpcomingEvents(userID, 30, now); len(events) > 0 {
		sb.WriteString("\nUpcoming Events and Important Dates:\n")
		if len(events) > 10 {
			events = events[:10]
		}
		for _, e := range events {
			fmt.Fprintf(&sb, "  • %s (%s) - %s", e.Title, e.EventType, RelativeDayLabel(e.EventDate, now))
			if e.Description != "" {
				fmt.Fprintf(&sb, " - %s", e.Description)
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// RelativeDayLabel renders an event date as TODAY, TOMORROW, "in N days"
// inside a week, else the calendar date.
func RelativeDayLabel(eventDate, now time.Time) string {
	eventDay := time.Date(eventDate.Year(), eventDate.Month(), eventDate.Day(), 0, 0, 0, 0, eventDate.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := int(eventDay.Sub(today).Hours() / 24)

	switch {
	case days == 0:
		return "TODAY"
	case days == 1:
		return "TOMORROW"
	case days < 7:
		return fmt.Sprintf("in %d days", days)
	default:
		return eventDate.Format("January 2, 2006")
	}
}
