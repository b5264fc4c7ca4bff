package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339

// Store is the durable SQLite backend: structured facts, conversation
// turns, daily summaries and caregiver alerts.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			emergency_contact TEXT NOT NULL DEFAULT '',
			preferences TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS medications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			dosage TEXT NOT NULL DEFAULT '',
			frequency TEXT NOT NULL DEFAULT '',
			schedule_times TEXT NOT NULL DEFAULT '[]',
			instructions TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_medications_user ON medications(user_id, active)`,
		`CREATE TABLE IF NOT EXISTS medication_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			medication_id INTEGER NOT NULL,
			scheduled_time TEXT NOT NULL,
			taken_time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'taken',
			notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_med_logs_user_time ON medication_logs(user_id, taken_time)`,
		`CREATE TABLE IF NOT EXISTS personal_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			event_type TEXT NOT NULL DEFAULT 'event',
			description TEXT NOT NULL DEFAULT '',
			event_date TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_date ON personal_events(user_id, event_date)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			message TEXT NOT NULL,
			response TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			sentiment_score REAL NOT NULL DEFAULT 0,
			sentiment_label TEXT NOT NULL DEFAULT 'neutral',
			conversation_type TEXT NOT NULL DEFAULT 'general'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_time ON conversations(user_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS daily_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			summary_date TEXT NOT NULL,
			summary TEXT NOT NULL,
			key_topics TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(user_id, summary_date)
		)`,
		`CREATE TABLE IF NOT EXISTS caregiver_alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			alert_type TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT 'medium',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user_time ON caregiver_alerts(user_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateUser(u User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := strings.TrimSpace(u.Preferences)
	if prefs == "" {
		prefs = "{}"
	}
	res, err := s.db.Exec(`
		INSERT INTO users (name, email, phone, emergency_contact, preferences)
		VALUES (?, ?, ?, ?, ?)
	`, strings.TrimSpace(u.Name), u.Email, u.Phone, u.EmergencyContact, prefs)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetUser(userID int64) (*User, error) {
	row := s.db.QueryRow(`
		SELECT id, name, email, phone, emergency_contact, preferences, created_at
		FROM users WHERE id = ?
	`, userID)

	var u User
	var created string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.EmergencyContact, &u.Preferences, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query(`
		SELECT id, name, email, phone, emergency_contact, preferences, created_at
		FROM users ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	result := make([]User, 0)
	for rows.Next() {
		var u User
		var created string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.EmergencyContact, &u.Preferences, &created); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt = parseTime(created)
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return result, nil
}

func (s *Store) AddMedication(m Medication) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	times, err := json.Marshal(m.ScheduleTimes)
	if err != nil {
		return 0, fmt.Errorf("marshal schedule times: %w", err)
	}
	res, err := s.db.Exec(`
		INSERT INTO medications (user_id, name, dosage, frequency, schedule_times, instructions, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.UserID, strings.TrimSpace(m.Name), m.Dosage, m.Frequency, string(times), m.Instructions, boolToInt(true))
	if err != nil {
		return 0, fmt.Errorf("add medication: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetMedications(userID int64, activeOnly bool) ([]Medication, error) {
	q := `
		SELECT id, user_id, name, dosage, frequency, schedule_times, instructions, active
		FROM medications WHERE user_id = ?
	`
	if activeOnly {
		q += ` AND active = 1`
	}
	q += ` ORDER BY id ASC`

	rows, err := s.db.Query(q, userID)
	if err != nil {
		return nil, fmt.Errorf("get medications: %w", err)
	}
	defer rows.Close()

	result := make([]Medication, 0)
	for rows.Next() {
		var m Medication
		var times string
		var active int
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Frequency, &times, &m.Instructions, &active); err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		m.Active = active == 1
		if err := json.Unmarshal([]byte(times), &m.ScheduleTimes); err != nil {
			m.ScheduleTimes = nil
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medications: %w", err)
	}
	return result, nil
}

func (s *Store) LogMedication(l MedicationLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := strings.TrimSpace(l.Status)
	if status == "" {
		status = "taken"
	}
	res, err := s.db.Exec(`
		INSERT INTO medication_logs (user_id, medication_id, scheduled_time, taken_time, status, notes)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.UserID, l.MedicationID, formatTime(l.ScheduledTime), formatTime(l.TakenTime), status, l.Notes)
	if err != nil {
		return 0, fmt.Errorf("log medication: %w", err)
	}
	return res.LastInsertId()
}

// MedicationLogsForDay returns "taken" logs whose taken_time falls inside
// the civil day containing day (local time).
func (s *Store) MedicationLogsForDay(userID int64, day time.Time) ([]MedicationLog, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	rows, err := s.db.Query(`
		SELECT id, user_id, medication_id, scheduled_time, taken_time, status, notes
		FROM medication_logs
		WHERE user_id = ? AND status = 'taken' AND taken_time >= ? AND taken_time < ?
		ORDER BY taken_time ASC
	`, userID, formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("medication logs for day: %w", err)
	}
	defer rows.Close()

	result := make([]MedicationLog, 0)
	for rows.Next() {
		var l MedicationLog
		var scheduled, taken string
		if err := rows.Scan(&l.ID, &l.UserID, &l.MedicationID, &scheduled, &taken, &l.Status, &l.Notes); err != nil {
			return nil, fmt.Errorf("scan medication log: %w", err)
		}
		l.ScheduledTime = parseTime(scheduled)
		l.TakenTime = parseTime(taken)
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medication logs: %w", err)
	}
	return result, nil
}

func (s *Store) AddEvent(e PersonalEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventType := strings.TrimSpace(e.EventType)
	if eventType == "" {
		eventType = "event"
	}
	res, err := s.db.Exec(`
		INSERT INTO personal_events (user_id, title, event_type, description, event_date)
		VALUES (?, ?, ?, ?, ?)
	`, e.UserID, strings.TrimSpace(e.Title), eventType, e.Description, formatTime(e.EventDate))
	if err != nil {
		return 0, fmt.Errorf("add event: %w", err)
	}
	return res.LastInsertId()
}

// UpcomingEvents returns events within [now, now+days), soonest first.
func (s *Store) UpcomingEvents(userID int64, days int, now time.Time) ([]PersonalEvent, error) {
	if days <= 0 {
		days = 30
	}
	horizon := now.AddDate(0, 0, days)

	rows, err := s.db.Query(`
		SELECT id, user_id, title, event_type, description, event_date
		FROM personal_events
		WHERE user_id = ? AND event_date >= ? AND event_date < ?
		ORDER BY event_date ASC
	`, userID, formatTime(now), formatTime(horizon))
	if err != nil {
		return nil, fmt.Errorf("upcoming events: %w", err)
	}
	defer rows.Close()

	result := make([]PersonalEvent, 0)
	for rows.Next() {
		var e PersonalEvent
		var date string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Title, &e.EventType, &e.Description, &date); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventDate = parseTime(date)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}

// SaveTurn persists one conversation turn and returns its id. The id is
// the upsert key fed to the long-term index.
func (s *Store) SaveTurn(t Turn) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	label := strings.TrimSpace(t.SentimentLabel)
	if label == "" {
		label = "neutral"
	}
	convType := strings.TrimSpace(t.ConversationType)
	if convType == "" {
		convType = "general"
	}
	res, err := s.db.Exec(`
		INSERT INTO conversations (user_id, message, response, timestamp, sentiment_score, sentiment_label, conversation_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.UserID, t.Message, t.Response, formatTime(ts), t.SentimentScore, label, convType)
	if err != nil {
		return 0, fmt.Errorf("save turn: %w", err)
	}
	return res.LastInsertId()
}

// RecentTurns returns up to n most recent turns, chronological ascending.
func (s *Store) RecentTurns(userID int64, n int) ([]Turn, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, message, response, timestamp, sentiment_score, sentiment_label, conversation_type
		FROM conversations
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Newest-first from the query; flip to chronological.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// TurnsForDay returns all turns within the civil day containing day,
// chronological ascending.
func (s *Store) TurnsForDay(userID int64, day time.Time) ([]Turn, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	rows, err := s.db.Query(`
		SELECT id, user_id, message, response, timestamp, sentiment_score, sentiment_label, conversation_type
		FROM conversations
		WHERE user_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC, id ASC
	`, userID, formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("turns for day: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// AllTurns returns up to limit turns for a user, oldest first. Used by the
// index rebuild command.
func (s *Store) AllTurns(userID int64, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, message, response, timestamp, sentiment_score, sentiment_label, conversation_type
		FROM conversations
		WHERE user_id = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("all turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *Store) SaveDailySummary(d DailySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics, err := json.Marshal(d.KeyTopics)
	if err != nil {
		return fmt.Errorf("marshal key topics: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO daily_summaries (user_id, summary_date, summary, key_topics)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, summary_date) DO UPDATE SET
			summary = excluded.summary,
			key_topics = excluded.key_topics
	`, d.UserID, strings.TrimSpace(d.Date), d.Summary, string(topics))
	if err != nil {
		return fmt.Errorf("save daily summary: %w", err)
	}
	return nil
}

// DailySummaryFor returns the summary for a civil day (YYYY-MM-DD), or
// nil when none exists.
func (s *Store) DailySummaryFor(userID int64, date string) (*DailySummary, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, summary_date, summary, key_topics, created_at
		FROM daily_summaries
		WHERE user_id = ? AND summary_date = ?
	`, userID, strings.TrimSpace(date))

	var d DailySummary
	var topics, created string
	if err := row.Scan(&d.ID, &d.UserID, &d.Date, &d.Summary, &topics, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("daily summary: %w", err)
	}
	if err := json.Unmarshal([]byte(topics), &d.KeyTopics); err != nil {
		d.KeyTopics = nil
	}
	d.CreatedAt = parseTime(created)
	return &d, nil
}

func (s *Store) CreateAlert(a CaregiverAlert) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	severity := strings.TrimSpace(a.Severity)
	if severity == "" {
		severity = "medium"
	}
	res, err := s.db.Exec(`
		INSERT INTO caregiver_alerts (user_id, alert_type, title, description, severity)
		VALUES (?, ?, ?, ?, ?)
	`, a.UserID, strings.TrimSpace(a.AlertType), strings.TrimSpace(a.Title), a.Description, severity)
	if err != nil {
		return 0, fmt.Errorf("create alert: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) RecentAlerts(userID int64, n int) ([]CaregiverAlert, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, alert_type, title, description, severity, created_at
		FROM caregiver_alerts
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	defer rows.Close()

	result := make([]CaregiverAlert, 0)
	for rows.Next() {
		var a CaregiverAlert
		var created string
		if err := rows.Scan(&a.ID, &a.UserID, &a.AlertType, &a.Title, &a.Description, &a.Severity, &created); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.CreatedAt = parseTime(created)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return result, nil
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	result := make([]Turn, 0)
	for rows.Next() {
		var t Turn
		var ts string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Message, &t.Response, &ts, &t.SentimentScore, &t.SentimentLabel, &t.ConversationType); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Timestamp = parseTime(ts)
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return result, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	layouts := []string{timeLayout, "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
