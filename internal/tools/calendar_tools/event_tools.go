package calendar_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/calgate/calgate/internal/calendar"
	"github.com/calgate/calgate/internal/instrumentation"
)

// RegisterEventTools registers the event tools with the MCP server.
func RegisterEventTools(s *mcpserver.MCPServer, factory *calendar.Factory, metrics *instrumentation.Metrics) error {
	listEventsTool := mcp.NewTool("list-events",
		mcp.WithDescription("List calendar events within a time range"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for the primary calendar)"),
		),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start of the range (RFC3339, e.g. '2026-01-01T00:00:00Z')"),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End of the range (RFC3339, e.g. '2026-01-31T23:59:59Z')"),
		),
	)

	s.AddTool(listEventsTool, instrumented("list-events", metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEvents(ctx, request, factory, false)
		}))

	searchEventsTool := mcp.NewTool("search-events",
		mcp.WithDescription("Search calendar events by free-text query within a time range"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for the primary calendar)"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Free-text search query matched against event fields"),
		),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start of the range (RFC3339)"),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End of the range (RFC3339)"),
		),
	)

	s.AddTool(searchEventsTool, instrumented("search-events", metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEvents(ctx, request, factory, true)
		}))

	getEventTool := mcp.NewTool("get-event",
		mcp.WithDescription("Get details of a specific calendar event"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for the primary calendar)"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to retrieve"),
		),
	)

	s.AddTool(getEventTool, instrumented("get-event", metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetEvent(ctx, request, factory)
		}))

	createEventTool := mcp.NewTool("create-event",
		mcp.WithDescription("Create a new calendar event (supports all-day and recurring events)"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for the primary calendar)"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Event title"),
		),
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start time (RFC3339, e.g. '2026-01-15T14:00:00Z')"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("End time (RFC3339, e.g. '2026-01-15T15:00:00Z')"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone (e.g. 'Europe/Berlin'). Defaults to UTC."),
		),
		mcp.WithString("attendees",
			mcp.Description("Comma-separated list of attendee email addresses"),
		),
		mcp.WithString("recurrence",
			mcp.Description("Recurrence rule (e.g. 'RRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR')"),
		),
		mcp.WithString("colorId",
			mcp.Description("Event color ID (see list-colors)"),
		),
		mcp.WithBoolean("allDay",
			mcp.Description("Create as all-day event (ignores the time portion of start/end)"),
		),
	)

	s.AddTool(createEventTool, instrumented("create-event", metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateEvent(ctx, request, factory)
		}))

	updateEventTool := mcp.NewTool("update-event",
		mcp.WithDescription("Update an existing calendar event; only provided fields change"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for the primary calendar)"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to update"),
		),
		mcp.WithString("summary",
			mcp.Description("New event title"),
		),
		mcp.WithString("description",
			mcp.Description("New event description"),
		),
		mcp.WithString("location",
			mcp.Description("New event location"),
		),
		mcp.WithString("start",
			mcp.Description("New start time (RFC3339)"),
		),
		mcp.WithString("end",
			mcp.Description("New end time (RFC3339)"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone (e.g. 'Europe/Berlin')"),
		),
		mcp.WithString("attendees",
			mcp.Description("New comma-separated list of attendee email addresses"),
		),
		mcp.WithString("colorId",
			mcp.Description("New event color ID (see list-colors)"),
		),
		mcp.WithBoolean("allDay",
			mcp.Description("Update to be an all-day event"),
		),
	)

	s.AddTool(updateEventTool, instrumented("update-event", metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateEvent(ctx, request, factory)
		}))

	deleteEventTool := mcp.NewTool("delete-event",
		mcp.WithDescription("Delete a calendar event"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for the primary calendar)"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to delete"),
		),
	)

	s.AddTool(deleteEventTool, instrumented("delete-event", metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteEvent(ctx, request, factory)
		}))

	return nil
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, factory *calendar.Factory, requireQuery bool) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	calendarID := stringArg(args, "calendarId", "primary")

	timeMin, errResult := timeArg(args, "timeMin")
	if errResult != nil {
		return errResult, nil
	}
	if timeMin.IsZero() {
		return mcp.NewToolResultError("timeMin is required"), nil
	}

	timeMax, errResult := timeArg(args, "timeMax")
	if errResult != nil {
		return errResult, nil
	}
	if timeMax.IsZero() {
		return mcp.NewToolResultError("timeMax is required"), nil
	}

	query := stringArg(args, "query", "")
	if requireQuery && query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	client, err := getClient(ctx, factory)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	events, err := client.ListEvents(calendarID, timeMin, timeMax, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list events: %v", err)), nil
	}

	result := fmt.Sprintf("Found %d event(s):\n\n", len(events))
	for i, event := range events {
		result += fmt.Sprintf("%d. %s\n", i+1, event.Summary)
		result += fmt.Sprintf("   ID: %s\n", event.ID)
		result += fmt.Sprintf("   Start: %s\n", event.Start.Format(time.RFC3339))
		result += fmt.Sprintf("   End: %s\n", event.End.Format(time.RFC3339))
		if event.Location != "" {
			result += fmt.Sprintf("   Location: %s\n", event.Location)
		}
		if len(event.Attendees) > 0 {
			result += fmt.Sprintf("   Attendees: %d\n", len(event.Attendees))
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleGetEvent(ctx context.Context, request mcp.CallToolRequest, factory *calendar.Factory) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	calendarID := stringArg(args, "calendarId", "primary")

	eventID, errResult := requiredStringArg(args, "eventId")
	if errResult != nil {
		return errResult, nil
	}

	client, err := getClient(ctx, factory)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	event, err := client.GetEvent(calendarID, eventID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get event: %v", err)), nil
	}

	result := fmt.Sprintf("Event: %s\n", event.Summary)
	result += fmt.Sprintf("ID: %s\n", event.ID)
	result += fmt.Sprintf("Start: %s\n", event.Start.Format(time.RFC3339))
	result += fmt.Sprintf("End: %s\n", event.End.Format(time.RFC3339))
	result += fmt.Sprintf("Status: %s\n", event.Status)
	if event.Description != "" {
		result += fmt.Sprintf("Description: %s\n", event.Description)
	}
	if event.Location != "" {
		result += fmt.Sprintf("Location: %s\n", event.Location)
	}
	if event.Creator != "" {
		result += fmt.Sprintf("Creator: %s\n", event.Creator)
	}
	if event.Organizer != "" {
		result += fmt.Sprintf("Organizer: %s\n", event.Organizer)
	}
	if event.ColorID != "" {
		result += fmt.Sprintf("Color ID: %s\n", event.ColorID)
	}

	if len(event.Attendees) > 0 {
		result += fmt.Sprintf("\nAttendees (%d):\n", len(event.Attendees))
		for _, att := range event.Attendees {
			result += fmt.Sprintf("  - %s (%s)", att.Email, att.ResponseStatus)
			if att.DisplayName != "" {
				result += fmt.Sprintf(" - %s", att.DisplayName)
			}
			if att.Optional {
				result += " [optional]"
			}
			result += "\n"
		}
	}

	return mcp.NewToolResultText(result), nil
}

func handleCreateEvent(ctx context.Context, request mcp.CallToolRequest, factory *calendar.Factory) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	calendarID := stringArg(args, "calendarId", "primary")

	summary, errResult := requiredStringArg(args, "summary")
	if errResult != nil {
		return errResult, nil
	}

	start, errResult := timeArg(args, "start")
	if errResult != nil {
		return errResult, nil
	}
	if start.IsZero() {
		return mcp.NewToolResultError("start is required"), nil
	}

	end, errResult := timeArg(args, "end")
	if errResult != nil {
		return errResult, nil
	}
	if end.IsZero() {
		return mcp.NewToolResultError("end is required"), nil
	}

	input := calendar.EventInput{
		Summary:     summary,
		Description: stringArg(args, "description", ""),
		Location:    stringArg(args, "location", ""),
		Start:       start,
		End:         end,
		TimeZone:    stringArg(args, "timeZone", ""),
		ColorID:     stringArg(args, "colorId", ""),
	}

	if attendees := stringArg(args, "attendees", ""); attendees != "" {
		input.Attendees = splitAttendees(attendees)
	}
	if recurrence := stringArg(args, "recurrence", ""); recurrence != "" {
		input.Recurrence = []string{recurrence}
	}
	if allDay, ok := args["allDay"].(bool); ok {
		input.AllDay = allDay
	}

	client, err := getClient(ctx, factory)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	event, err := client.CreateEvent(calendarID, input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create event: %v", err)), nil
	}

	result := fmt.Sprintf("Successfully created event: %s\n", event.Summary)
	result += fmt.Sprintf("ID: %s\n", event.ID)
	result += fmt.Sprintf("Start: %s\n", event.Start.Format(time.RFC3339))
	result += fmt.Sprintf("End: %s\n", event.End.Format(time.RFC3339))

	return mcp.NewToolResultText(result), nil
}

func handleUpdateEvent(ctx context.Context, request mcp.CallToolRequest, factory *calendar.Factory) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	calendarID := stringArg(args, "calendarId", "primary")

	eventID, errResult := requiredStringArg(args, "eventId")
	if errResult != nil {
		return errResult, nil
	}

	input := calendar.EventInput{
		Summary:     stringArg(args, "summary", ""),
		Description: stringArg(args, "description", ""),
		Location:    stringArg(args, "location", ""),
		TimeZone:    stringArg(args, "timeZone", ""),
		ColorID:     stringArg(args, "colorId", ""),
	}

	start, errResult := timeArg(args, "start")
	if errResult != nil {
		return errResult, nil
	}
	input.Start = start

	end, errResult := timeArg(args, "end")
	if errResult != nil {
		return errResult, nil
	}
	input.End = end

	if attendees := stringArg(args, "attendees", ""); attendees != "" {
		input.Attendees = splitAttendees(attendees)
	}
	if allDay, ok := args["allDay"].(bool); ok {
		input.AllDay = allDay
	}

	client, err := getClient(ctx, factory)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	event, err := client.UpdateEvent(calendarID, eventID, input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update event: %v", err)), nil
	}

	result := fmt.Sprintf("Successfully updated event: %s\n", event.Summary)
	result += fmt.Sprintf("ID: %s\n", event.ID)
	result += fmt.Sprintf("Start: %s\n", event.Start.Format(time.RFC3339))
	result += fmt.Sprintf("End: %s\n", event.End.Format(time.RFC3339))

	return mcp.NewToolResultText(result), nil
}

func handleDeleteEvent(ctx context.Context, request mcp.CallToolRequest, factory *calendar.Factory) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	calendarID := stringArg(args, "calendarId", "primary")

	eventID, errResult := requiredStringArg(args, "eventId")
	if errResult != nil {
		return errResult, nil
	}

	client, err := getClient(ctx, factory)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := client.DeleteEvent(calendarID, eventID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to delete event: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Successfully deleted event %s", eventID)), nil
}

func splitAttendees(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
