package router

import (
	"context"
	"fmt"
	"strings"
)

var (
	timeKeywords = []string{"what time is it", "the time", "current time", "time is it"}
	dateKeywords = []string{"what day is it", "what's the date", "what is the date", "today's date", "what day of the week"}

	// Medication tokens route to the timing handler, not here.
	datetimeExclusions = []string{"pill", "medication", "medicine", "dose"}
)

// DateTimeHandler answers plain clock and calendar questions from the
// local clock. Runs after the medication-timing handler, and still
// excludes medication wording so "what time is my pill" can never land
// here.
type DateTimeHandler struct{}

func (DateTimeHandler) Name() string { return "datetime" }

func (DateTimeHandler) Handle(_ context.Context, req Request) (*Response, error) {
	lower := strings.ToLower(req.Message)
	if containsAny(lower, datetimeExclusions...) {
		return nil, nil
	}

	wantsTime := containsAny(lower, timeKeywords...)
	wantsDate := containsAny(lower, dateKeywords...)
	if !wantsTime && !wantsDate {
		return nil, nil
	}

	var text string
	switch {
	case wantsTime && wantsDate:
		text = fmt.Sprintf("It's %s on %s.", req.Now.Format("3:04 PM"), req.Now.Format("Monday, January 2, 2006"))
	case wantsTime:
		text = fmt.Sprintf("It's %s right now.", req.Now.Format("3:04 PM"))
	default:
		text = fmt.Sprintf("Today is %s.", req.Now.Format("Monday, January 2, 2006"))
	}

	return &Response{Text: text, ConversationType: "datetime_query"}, nil
}
