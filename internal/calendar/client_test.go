package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	calendar "google.golang.org/api/calendar/v3"
)

func TestToEventSummary(t *testing.T) {
	event := &calendar.Event{
		Id:          "evt-1",
		Summary:     "Standup",
		Description: "Daily sync",
		Location:    "Room 2",
		Status:      "confirmed",
		ColorId:     "5",
		Start:       &calendar.EventDateTime{DateTime: "2026-03-01T09:00:00Z"},
		End:         &calendar.EventDateTime{DateTime: "2026-03-01T09:15:00Z"},
		Creator:     &calendar.EventCreator{Email: "creator@example.com"},
		Organizer:   &calendar.EventOrganizer{Email: "organizer@example.com"},
		Attendees: []*calendar.EventAttendee{
			{Email: "a@example.com", ResponseStatus: "accepted", Organizer: true},
			{Email: "b@example.com", ResponseStatus: "needsAction", Optional: true},
		},
	}

	summary := toEventSummary(event)

	assert.Equal(t, "evt-1", summary.ID)
	assert.Equal(t, "Standup", summary.Summary)
	assert.Equal(t, "confirmed", summary.Status)
	assert.Equal(t, "5", summary.ColorID)
	assert.Equal(t, "creator@example.com", summary.Creator)
	assert.Equal(t, "organizer@example.com", summary.Organizer)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), summary.Start)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC), summary.End)
	assert.Len(t, summary.Attendees, 2)
	assert.True(t, summary.Attendees[0].Organizer)
	assert.True(t, summary.Attendees[1].Optional)
}

func TestParseEventTime(t *testing.T) {
	tests := []struct {
		name string
		edt  *calendar.EventDateTime
		want time.Time
	}{
		{
			"timed event",
			&calendar.EventDateTime{DateTime: "2026-03-01T09:00:00Z"},
			time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			"all-day event",
			&calendar.EventDateTime{Date: "2026-03-01"},
			time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"garbage datetime",
			&calendar.EventDateTime{DateTime: "not-a-time"},
			time.Time{},
		},
		{
			"empty",
			&calendar.EventDateTime{},
			time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(parseEventTime(tt.edt)))
		})
	}
}

func TestToCalendarInfo(t *testing.T) {
	entry := &calendar.CalendarListEntry{
		Id:         "primary",
		Summary:    "Work",
		TimeZone:   "Europe/Berlin",
		Primary:    true,
		AccessRole: "owner",
	}

	info := toCalendarInfo(entry)
	assert.Equal(t, "primary", info.ID)
	assert.Equal(t, "Work", info.Summary)
	assert.True(t, info.Primary)
	assert.Equal(t, "owner", info.AccessRole)
}

func TestEventTimes(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	t.Run("timed with default timezone", func(t *testing.T) {
		s, e := eventTimes(EventInput{Start: start, End: end})
		assert.Equal(t, "2026-03-01T09:00:00Z", s.DateTime)
		assert.Equal(t, "UTC", s.TimeZone)
		assert.Equal(t, "2026-03-01T10:00:00Z", e.DateTime)
		assert.Empty(t, s.Date)
	})

	t.Run("timed with explicit timezone", func(t *testing.T) {
		s, _ := eventTimes(EventInput{Start: start, End: end, TimeZone: "Europe/Berlin"})
		assert.Equal(t, "Europe/Berlin", s.TimeZone)
	})

	t.Run("all-day", func(t *testing.T) {
		s, e := eventTimes(EventInput{Start: start, End: end.Add(24 * time.Hour), AllDay: true})
		assert.Equal(t, "2026-03-01", s.Date)
		assert.Equal(t, "2026-03-02", e.Date)
		assert.Empty(t, s.DateTime)
	})
}
