package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered. The
// data source is either the local database or an HTTP client against a
// running Flexion server.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("Flexion", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Flexion rehab exercise server. Query training sessions, per-rep records, adaptive difficulty history, and progress summaries. All data is scoped to the configured user."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetSessions, Handler: h.getSessions},
		server.ServerTool{Tool: toolGetSessionReps, Handler: h.getSessionReps},
		server.ServerTool{Tool: toolGetProgressSummary, Handler: h.getProgressSummary},
		server.ServerTool{Tool: toolGetTargetHistory, Handler: h.getTargetHistory},
		server.ServerTool{Tool: toolGetExerciseCatalog, Handler: h.getExerciseCatalog},
		server.ServerTool{Tool: toolGetRepQuality, Handler: h.getRepQuality},
		server.ServerTool{Tool: toolGetUserStats, Handler: h.getUserStats},
		server.ServerTool{Tool: toolCompareSessions, Handler: h.compareSessions},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resLatestSession, Handler: h.latestSession},
		server.ServerResource{Resource: resExerciseCatalog, Handler: h.exerciseCatalog},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resLatestSession = mcp.NewResource(
	"flexion://latest_session",
	"Latest Session",
	mcp.WithResourceDescription("The most recent training session with its reps and target change history"),
	mcp.WithMIMEType("application/json"),
)

var resExerciseCatalog = mcp.NewResource(
	"flexion://exercise_catalog",
	"Exercise Catalog",
	mcp.WithResourceDescription("All supported exercises with polarity, rest angle, and movement threshold"),
	mcp.WithMIMEType("application/json"),
)
