// Package alert delivers caregiver notifications. Delivery is
// fire-and-forget, at-least-once: the durable store record is written
// first, and outbound channels are best-effort on top of it.
package alert

import (
	"fmt"
	"log"

	"github.com/carelyhq/carely/internal/store"
)

// Alert is one caregiver notification.
type Alert struct {
	UserID      int64
	AlertType   string
	Title       string
	Description string
	Severity    string // medium, high, critical
}

// Sink receives alerts. Implementations must not block the conversation
// path for long.
type Sink interface {
	Create(a Alert) error
}

// StoreSink records alerts in the database, where the caregiver
// dashboard reads them.
type StoreSink struct {
	Store *store.Store
}

func (s *StoreSink) Create(a Alert) error {
	_, err := s.Store.CreateAlert(store.CaregiverAlert{
		UserID:      a.UserID,
		AlertType:   a.AlertType,
		Title:       a.Title,
		Description: a.Description,
		Severity:    a.Severity,
	})
	if err != nil {
		return fmt.Errorf("store alert: %w", err)
	}
	return nil
}

// MultiSink fans out to several sinks. The first sink is authoritative;
// later sinks are best-effort and only log on failure.
type MultiSink struct {
	Primary Sink
	Extra   []Sink
}

func (m *MultiSink) Create(a Alert) error {
	if err := m.Primary.Create(a); err != nil {
		return err
	}
	for _, s := range m.Extra {
		if err := s.Create(a); err != nil {
			log.Printf("[alert] secondary delivery failed: %v", err)
		}
	}
	return nil
}
