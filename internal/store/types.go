package store

import "time"

// User is a care recipient profile row.
type User struct {
	ID               int64
	Name             string
	Email            string
	Phone            string
	EmergencyContact string
	// Preferences is a free-form JSON object; meal_times lives under the
	// "meal_times" key ({"breakfast": "8:00 AM", ...}).
	Preferences string
	CreatedAt   time.Time
}

// Medication is one scheduled medication.
type Medication struct {
	ID            int64
	UserID        int64
	Name          string
	Dosage        string
	Frequency     string
	ScheduleTimes []string // daily time-of-day slots, e.g. "08:00", "8:00 PM"
	Instructions  string
	Active        bool
}

// MedicationLog records one intake event.
type MedicationLog struct {
	ID            int64
	UserID        int64
	MedicationID  int64
	ScheduledTime time.Time
	TakenTime     time.Time
	Status        string // "taken", "missed", "skipped"
	Notes         string
}

// PersonalEvent is an upcoming personal date (appointment, birthday, visit).
type PersonalEvent struct {
	ID          int64
	UserID      int64
	Title       string
	EventType   string
	Description string
	EventDate   time.Time
}

// Turn is one persisted conversation exchange. Message and Response hold
// the stored (possibly redacted) forms.
type Turn struct {
	ID               int64
	UserID           int64
	Message          string
	Response         string
	Timestamp        time.Time
	SentimentScore   float64
	SentimentLabel   string
	ConversationType string
}

// DailySummary is one narrative summary per user per civil day.
type DailySummary struct {
	ID        int64
	UserID    int64
	Date      string // YYYY-MM-DD, local civil day
	Summary   string
	KeyTopics []string
	CreatedAt time.Time
}

// CaregiverAlert is one outbound caregiver notification record.
type CaregiverAlert struct {
	ID          int64
	UserID      int64
	AlertType   string
	Title       string
	Description string
	Severity    string
	CreatedAt   time.Time
}
