package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/calgate/calgate/internal/instrumentation"
	"github.com/calgate/calgate/internal/logging"
	"github.com/calgate/calgate/internal/session"
)

// maxMessageSize bounds a single POSTed JSON-RPC message.
const maxMessageSize = 4 << 20

// sseChannel adapts one SSE response stream to the session.Channel
// interface. Writes are serialized by the registry; the channel itself
// holds no lock.
type sseChannel struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (c *sseChannel) Send(data []byte) error {
	if _, err := fmt.Fprintf(c.w, "event: message\ndata: %s\n\n", data); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// Ping writes an SSE comment frame. Comments are ignored by clients but
// keep intermediaries from reclaiming the idle connection.
func (c *sseChannel) Ping() error {
	if _, err := io.WriteString(c.w, ": ping\n\n"); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// SSETransport serves the MCP protocol over Server-Sent Events. A GET on
// /sse opens a session whose responses stream back over the event source;
// the client POSTs JSON-RPC messages to /message?sessionId=<id>.
type SSETransport struct {
	mcpServer *mcpserver.MCPServer
	registry  *session.Registry
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
}

// NewSSETransport creates an SSETransport routing messages through registry.
func NewSSETransport(mcpServer *mcpserver.MCPServer, registry *session.Registry, metrics *instrumentation.Metrics, logger *slog.Logger) *SSETransport {
	return &SSETransport{
		mcpServer: mcpServer,
		registry:  registry,
		metrics:   metrics,
		logger:    logging.WithComponent(logger, "sse"),
	}
}

// HandleSSE serves GET /sse. It registers a session, advertises the message
// endpoint and then blocks until the client disconnects or the session is
// closed.
func (t *SSETransport) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s := t.registry.Open(&sseChannel{w: w, flusher: flusher})
	t.metrics.IncrementActiveSessions(r.Context())
	defer t.metrics.DecrementActiveSessions(r.Context())

	// The first frame tells the client where to POST its messages. It goes
	// through the session's write lock so it cannot interleave with a ping
	// from the already-running liveness loop.
	_ = s.Synchronize(func() error {
		if _, err := fmt.Fprintf(w, "event: endpoint\ndata: /message?sessionId=%s\n\n", s.ID); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	select {
	case <-r.Context().Done():
		t.registry.Close(s.ID)
	case <-s.Done():
	}
}

// HandleMessage serves POST /message?sessionId=<id>. The JSON-RPC body is
// dispatched to the MCP server and the response is delivered over the
// session's event stream; the POST itself is acknowledged with 202.
func (t *SSETransport) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSONRPCError(w, http.StatusBadRequest, "missing sessionId parameter")
		return
	}

	// Reject before dispatching: a request for an unknown or closed session
	// must not execute tools on its behalf.
	switch lookupErr := t.registry.Lookup(sessionID); {
	case lookupErr == nil:
	case errors.Is(lookupErr, session.ErrClosedSession):
		writeJSONRPCError(w, http.StatusGone, lookupErr.Error())
		return
	default:
		writeJSONRPCError(w, http.StatusNotFound, lookupErr.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	response := t.mcpServer.HandleMessage(r.Context(), body)
	if response == nil {
		// Notification: nothing to deliver.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	data, err := json.Marshal(response)
	if err != nil {
		t.logger.Error("failed to marshal response", logging.SessionID(sessionID), logging.Err(err))
		writeJSONRPCError(w, http.StatusInternalServerError, "failed to marshal response")
		return
	}

	switch routeErr := t.registry.Route(sessionID, data); {
	case routeErr == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(routeErr, session.ErrClosedSession):
		writeJSONRPCError(w, http.StatusGone, routeErr.Error())
	case errors.Is(routeErr, session.ErrUnknownSession):
		writeJSONRPCError(w, http.StatusNotFound, routeErr.Error())
	default:
		writeJSONRPCError(w, http.StatusInternalServerError, routeErr.Error())
	}
}

// writeJSONRPCError writes a structured JSON-RPC error body with the given
// HTTP status.
func writeJSONRPCError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error": map[string]any{
			"code":    -32000,
			"message": message,
		},
	})
}
