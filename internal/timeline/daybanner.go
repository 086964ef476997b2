package timeline

import (
	"fmt"
	"time"

	"chatdesk/internal/models"
)

// Day banner labels for the two relative buckets.
const (
	LabelToday     = "Today"
	LabelYesterday = "Yesterday"
)

// Classifier turns UTC message timestamps into day-banner labels in a fixed
// display timezone. The zone is a configured IANA identifier, not the
// viewer's local zone, and the conversion goes through the timezone database
// so daylight-saving transitions are handled correctly.
type Classifier struct {
	loc *time.Location
	now func() time.Time
}

// NewClassifier builds a classifier for the given IANA zone. The now
// function is injectable so label computation stays a pure function of its
// inputs in tests; pass nil for the wall clock.
func NewClassifier(timezone string, now func() time.Time) (*Classifier, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid display timezone %q: %w", timezone, err)
	}
	if now == nil {
		now = time.Now
	}
	return &Classifier{loc: loc, now: now}, nil
}

// Label returns the day banner for a timestamp. The second return is false
// for timestamps that cannot be bucketed (the zero value); such messages
// still render, they just get no date grouping.
func (c *Classifier) Label(ts time.Time) (string, bool) {
	if ts.IsZero() {
		return "", false
	}

	local := ts.In(c.loc)
	now := c.now().In(c.loc)

	y, m, d := local.Date()
	ny, nm, nd := now.Date()
	if y == ny && m == nm && d == nd {
		return LabelToday, true
	}

	yy, ym, yd := now.AddDate(0, 0, -1).Date()
	if y == yy && m == ym && d == yd {
		return LabelYesterday, true
	}

	if y == ny {
		return local.Format("January 2"), true
	}
	return local.Format("January 2, 2006"), true
}

// Entry pairs a message with its banner. Banner is empty for every message
// except the first one of each new calendar date in the display zone.
type Entry struct {
	Message models.Message `json:"message"`
	Banner  string         `json:"banner,omitempty"`
}

// Annotate scans the sequence in ascending order and inserts a banner before
// the first message of each new calendar date. Messages without a usable
// timestamp never carry a banner and do not interrupt the current group.
func (c *Classifier) Annotate(messages []models.Message) []Entry {
	entries := make([]Entry, 0, len(messages))

	var haveDate bool
	var lastY, lastD int
	var lastM time.Month

	for _, msg := range messages {
		entry := Entry{Message: msg}

		if !msg.Timestamp.IsZero() {
			y, m, d := msg.Timestamp.In(c.loc).Date()
			if !haveDate || y != lastY || m != lastM || d != lastD {
				if label, ok := c.Label(msg.Timestamp); ok {
					entry.Banner = label
				}
				haveDate = true
				lastY, lastM, lastD = y, m, d
			}
		}

		entries = append(entries, entry)
	}

	return entries
}
