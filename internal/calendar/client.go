package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/calgate/calgate/internal/instrumentation"
	"github.com/calgate/calgate/internal/logging"
)

// Client wraps the Google Calendar service.
type Client struct {
	svc     *calendar.Service
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewClient creates a Calendar client using the given authenticated HTTP
// client. Token refresh is the HTTP client's concern; this layer only
// forwards calls, recording each one against metrics.
func NewClient(ctx context.Context, httpClient *http.Client, metrics *instrumentation.Metrics, logger *slog.Logger) (*Client, error) {
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	return &Client{
		svc:     svc,
		metrics: metrics,
		logger:  logging.WithComponent(logger, "calendar"),
	}, nil
}

// observe records one API call's outcome.
func (c *Client) observe(op string, start time.Time, err error) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordCalendarAPIOperation(context.Background(), op, status, time.Since(start))
	c.logger.Debug("calendar API call",
		logging.Operation(op),
		logging.Status(status),
		logging.Err(err))
}

// ListCalendars lists all calendars accessible to the user.
func (c *Client) ListCalendars() ([]CalendarInfo, error) {
	start := time.Now()
	list, err := c.svc.CalendarList.List().Do()
	c.observe("list_calendars", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	var calendars []CalendarInfo
	for _, entry := range list.Items {
		calendars = append(calendars, toCalendarInfo(entry))
	}
	return calendars, nil
}

// ListColors returns Google's event color palette, sorted by color id.
func (c *Client) ListColors() ([]ColorInfo, error) {
	start := time.Now()
	colors, err := c.svc.Colors.Get().Do()
	c.observe("list_colors", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list colors: %w", err)
	}

	out := make([]ColorInfo, 0, len(colors.Event))
	for id, def := range colors.Event {
		out = append(out, ColorInfo{
			ID:         id,
			Background: def.Background,
			Foreground: def.Foreground,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListEvents lists events in a calendar within a time range, optionally
// filtered by a free-text query.
func (c *Client) ListEvents(calendarID string, timeMin, timeMax time.Time, query string) ([]EventSummary, error) {
	call := c.svc.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime")

	if !timeMin.IsZero() {
		call = call.TimeMin(timeMin.Format(time.RFC3339))
	}
	if !timeMax.IsZero() {
		call = call.TimeMax(timeMax.Format(time.RFC3339))
	}
	if query != "" {
		call = call.Q(query)
	}

	start := time.Now()
	events, err := call.Do()
	c.observe("list_events", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	var summaries []EventSummary
	for _, event := range events.Items {
		summaries = append(summaries, toEventSummary(event))
	}
	return summaries, nil
}

// GetEvent retrieves a specific event by ID.
func (c *Client) GetEvent(calendarID, eventID string) (*EventSummary, error) {
	start := time.Now()
	event, err := c.svc.Events.Get(calendarID, eventID).Do()
	c.observe("get_event", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	summary := toEventSummary(event)
	return &summary, nil
}

// CreateEvent creates a new calendar event.
func (c *Client) CreateEvent(calendarID string, input EventInput) (*EventSummary, error) {
	event := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Location:    input.Location,
		ColorId:     input.ColorID,
	}

	event.Start, event.End = eventTimes(input)

	if len(input.Attendees) > 0 {
		var attendees []*calendar.EventAttendee
		for _, email := range input.Attendees {
			attendees = append(attendees, &calendar.EventAttendee{Email: email})
		}
		event.Attendees = attendees
	}
	if len(input.Recurrence) > 0 {
		event.Recurrence = input.Recurrence
	}

	start := time.Now()
	created, err := c.svc.Events.Insert(calendarID, event).Do()
	c.observe("create_event", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	summary := toEventSummary(created)
	return &summary, nil
}

// UpdateEvent updates an existing calendar event. Only non-zero input
// fields overwrite the existing values.
func (c *Client) UpdateEvent(calendarID, eventID string, input EventInput) (*EventSummary, error) {
	existing, err := c.svc.Events.Get(calendarID, eventID).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get existing event: %w", err)
	}

	if input.Summary != "" {
		existing.Summary = input.Summary
	}
	if input.Description != "" {
		existing.Description = input.Description
	}
	if input.Location != "" {
		existing.Location = input.Location
	}
	if input.ColorID != "" {
		existing.ColorId = input.ColorID
	}

	start, end := eventTimes(input)
	if !input.Start.IsZero() {
		existing.Start = start
	}
	if !input.End.IsZero() {
		existing.End = end
	}

	if len(input.Attendees) > 0 {
		var attendees []*calendar.EventAttendee
		for _, email := range input.Attendees {
			attendees = append(attendees, &calendar.EventAttendee{Email: email})
		}
		existing.Attendees = attendees
	}
	if len(input.Recurrence) > 0 {
		existing.Recurrence = input.Recurrence
	}

	began := time.Now()
	updated, err := c.svc.Events.Update(calendarID, eventID, existing).Do()
	c.observe("update_event", began, err)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	summary := toEventSummary(updated)
	return &summary, nil
}

// DeleteEvent deletes a calendar event.
func (c *Client) DeleteEvent(calendarID, eventID string) error {
	start := time.Now()
	err := c.svc.Events.Delete(calendarID, eventID).Do()
	c.observe("delete_event", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// eventTimes builds the start/end times for an event. All-day events use
// Date instead of DateTime.
func eventTimes(input EventInput) (start, end *calendar.EventDateTime) {
	if input.AllDay {
		return &calendar.EventDateTime{Date: input.Start.Format("2006-01-02")},
			&calendar.EventDateTime{Date: input.End.Format("2006-01-02")}
	}

	tz := input.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	return &calendar.EventDateTime{DateTime: input.Start.Format(time.RFC3339), TimeZone: tz},
		&calendar.EventDateTime{DateTime: input.End.Format(time.RFC3339), TimeZone: tz}
}
