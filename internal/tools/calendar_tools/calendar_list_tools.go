package calendar_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/calgate/calgate/internal/calendar"
	"github.com/calgate/calgate/internal/instrumentation"
)

// RegisterCalendarListTools registers the calendar and color listing tools.
func RegisterCalendarListTools(s *mcpserver.MCPServer, factory *calendar.Factory, metrics *instrumentation.Metrics) error {
	listCalendarsTool := mcp.NewTool("list-calendars",
		mcp.WithDescription("List all calendars accessible to the user"),
	)

	s.AddTool(listCalendarsTool, instrumented("list-calendars", metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListCalendars(ctx, factory)
		}))

	listColorsTool := mcp.NewTool("list-colors",
		mcp.WithDescription("List the available event colors with their IDs"),
	)

	s.AddTool(listColorsTool, instrumented("list-colors", metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListColors(ctx, factory)
		}))

	return nil
}

func handleListCalendars(ctx context.Context, factory *calendar.Factory) (*mcp.CallToolResult, error) {
	client, err := getClient(ctx, factory)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	calendars, err := client.ListCalendars()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list calendars: %v", err)), nil
	}

	result := fmt.Sprintf("Found %d calendar(s):\n\n", len(calendars))
	for i, cal := range calendars {
		result += fmt.Sprintf("%d. %s\n", i+1, cal.Summary)
		result += fmt.Sprintf("   ID: %s\n", cal.ID)
		result += fmt.Sprintf("   Access Role: %s\n", cal.AccessRole)
		if cal.Primary {
			result += "   [PRIMARY]\n"
		}
		if cal.Description != "" {
			result += fmt.Sprintf("   Description: %s\n", cal.Description)
		}
		if cal.TimeZone != "" {
			result += fmt.Sprintf("   Time Zone: %s\n", cal.TimeZone)
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleListColors(ctx context.Context, factory *calendar.Factory) (*mcp.CallToolResult, error) {
	client, err := getClient(ctx, factory)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	colors, err := client.ListColors()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list colors: %v", err)), nil
	}

	result := fmt.Sprintf("Available event colors (%d):\n\n", len(colors))
	for _, color := range colors {
		result += fmt.Sprintf("ID %s: background %s, foreground %s\n",
			color.ID, color.Background, color.Foreground)
	}

	return mcp.NewToolResultText(result), nil
}
