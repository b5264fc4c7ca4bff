package safety

import "strings"

// Severity is an emergency urgency tier. Tiers are mutually exclusive
// and ordered; the first matching tier wins.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "none"
	}
}

// Assessment is the emergency classification of one message.
type Assessment struct {
	IsEmergency bool
	Severity    Severity
	Concerns    []string
	ShouldAlert bool
}

var (
	criticalKeywords = []string{
		"chest pain", "can't breathe", "cannot breathe", "stroke",
		"fell", "fall down", "unconscious", "bleeding",
	}
	highKeywords = []string{
		"pain", "emergency", "severe", "blood",
	}
	mediumKeywords = []string{
		"dizzy", "confused", "weak", "anxious",
	}
)

// AssessEmergency runs the tiered keyword test in strict precedence
// order: critical outranks high outranks medium. Emergency and alert
// flags are set for critical and high only; medium is informational.
func AssessEmergency(message string) Assessment {
	lower := strings.ToLower(message)

	for _, tier := range []struct {
		severity Severity
		keywords []string
	}{
		{SeverityCritical, criticalKeywords},
		{SeverityHigh, highKeywords},
		{SeverityMedium, mediumKeywords},
	} {
		var concerns []string
		for _, kw := range tier.keywords {
			if strings.Contains(lower, kw) {
				concerns = append(concerns, kw)
			}
		}
		if len(concerns) > 0 {
			urgent := tier.severity >= SeverityHigh
			return Assessment{
				IsEmergency: urgent,
				Severity:    tier.severity,
				Concerns:    concerns,
				ShouldAlert: urgent,
			}
		}
	}

	return Assessment{Severity: SeverityNone}
}

// EmergencyPreamble is prepended to the response whenever a message
// classifies as an emergency, regardless of verbosity settings.
const EmergencyPreamble = "I'm concerned about what you're describing. If this is urgent, please call emergency services or your caregiver right away. I'm staying with you. "

// concerningKeywords is the broader list used for the caregiver alert
// trigger, independent of emergency tiering.
var concerningKeywords = []string{
	"pain", "hurt", "dizzy", "fall", "fell", "emergency", "help",
	"can't breathe", "chest pain", "confused", "lost", "scared",
}

// ShouldAlertCaregiver reports whether this turn warrants a caregiver
// alert: very negative sentiment or any concerning keyword.
func ShouldAlertCaregiver(sentimentScore float64, message string) bool {
	if sentimentScore < -0.7 {
		return true
	}
	lower := strings.ToLower(message)
	for _, kw := range concerningKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// AlertSeverity grades a triggered alert by how negative the sentiment
// was.
func AlertSeverity(sentimentScore float64) string {
	if sentimentScore <= -0.8 {
		return "high"
	}
	return "medium"
}
