package calendar_tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/calgate/calgate/internal/auth"
	"github.com/calgate/calgate/internal/calendar"
	"github.com/calgate/calgate/internal/instrumentation"
)

const notAuthenticatedMessage = `Not connected to Google Calendar. To authorize access:

1. Open the gateway's /oauth/authorize endpoint in your browser
2. Sign in with your Google account and grant calendar access

You only need to authorize once; tokens are refreshed automatically.`

// RegisterCalendarTools registers all calendar tools with the MCP server.
// Handlers resolve their client through factory on every call.
func RegisterCalendarTools(s *mcpserver.MCPServer, factory *calendar.Factory, metrics *instrumentation.Metrics) error {
	if err := RegisterCalendarListTools(s, factory, metrics); err != nil {
		return fmt.Errorf("failed to register calendar list tools: %w", err)
	}
	if err := RegisterEventTools(s, factory, metrics); err != nil {
		return fmt.Errorf("failed to register event tools: %w", err)
	}
	return nil
}

// getClient fetches the current calendar client, translating the
// unauthenticated case into an actionable message for the agent.
func getClient(ctx context.Context, factory *calendar.Factory) (*calendar.Client, error) {
	client, err := factory.Client(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) {
			return nil, errors.New(notAuthenticatedMessage)
		}
		return nil, fmt.Errorf("failed to obtain calendar client: %w", err)
	}
	return client, nil
}

type toolHandler = mcpserver.ToolHandlerFunc

// instrumented wraps a handler to record invocation count and duration. A
// handler returning an error result (not a Go error) counts as an error.
func instrumented(name string, metrics *instrumentation.Metrics, handler toolHandler) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := handler(ctx, request)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
		}
		metrics.RecordToolInvocation(ctx, name, status, time.Since(start))

		return result, err
	}
}

// stringArg returns the named string argument, or def when absent or empty.
func stringArg(args map[string]interface{}, name, def string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return def
}

// requiredStringArg returns the named string argument or an error result.
func requiredStringArg(args map[string]interface{}, name string) (string, *mcp.CallToolResult) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("%s is required", name))
	}
	return v, nil
}

// timeArg parses the named RFC3339 argument. A zero time with a nil result
// means the argument was absent.
func timeArg(args map[string]interface{}, name string) (time.Time, *mcp.CallToolResult) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, mcp.NewToolResultError(fmt.Sprintf("Invalid %s format: %v", name, err))
	}
	return t, nil
}
