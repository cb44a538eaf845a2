package services

import (
	"time"

	"emoji-stories/models/prompt"
)

// Calendar turns wall-clock time into calendar dates in one time zone.
type Calendar struct {
	Location *time.Location
	Now      func() time.Time
}

func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{Location: loc, Now: time.Now}
}

// Today returns the current date as YYYY-MM-DD.
func (c Calendar) Today() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc).Format(prompt.DateLayout)
}

// PreviousDay returns the date before the given YYYY-MM-DD date, or "" if it
// does not parse.
func PreviousDay(date string) string {
	t, err := time.Parse(prompt.DateLayout, date)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(prompt.DateLayout)
}
