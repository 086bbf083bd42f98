package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultTimeRange returns start/end defaulting to the last 7 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -7)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// requireSessionID parses a required UUID tool parameter.
func requireSessionID(req mcp.CallToolRequest, param string) (uuid.UUID, *mcp.CallToolResult) {
	s, err := req.RequireString(param)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError(param + " parameter is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError("invalid " + param + ": " + err.Error())
	}
	return id, nil
}

// --- Tool definitions ---

var toolGetSessions = mcp.NewTool("get_sessions",
	mcp.WithDescription("List training sessions in a time range. Each row includes the exercise, rep count, and (for finished sessions) summary scores: consistency, completion rate, push rate, best extremum."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

var toolGetSessionReps = mcp.NewTool("get_session_reps",
	mcp.WithDescription("Retrieve every rep of one session: achieved extremum angle, whether the minimum threshold and push target were met, personal-best flag, duration, and feedback message."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
)

var toolGetProgressSummary = mcp.NewTool("get_progress_summary",
	mcp.WithDescription("Per-period training aggregates for one exercise: session and rep counts, average consistency and completion rate, average push target, and extremum bounds. Only finished sessions count."),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise kind (e.g. squat, shoulder_raise, hip_hinge)")),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 3 months ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
	mcp.WithString("bucket", mcp.Description("Aggregation period. Defaults to '1 week'."), mcp.Enum("1 day", "1 week", "1 month")),
)

var toolGetTargetHistory = mcp.NewTool("get_target_history",
	mcp.WithDescription("Audit trail of every difficulty target change in a session: source (calibration/local/micro/macro/clamp), push target before and after, minimum threshold, and the factors behind the change."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
)

var toolGetExerciseCatalog = mcp.NewTool("get_exercise_catalog",
	mcp.WithDescription("List all supported exercises with their polarity (which angle direction is harder), rest angle, and movement threshold."),
)

var toolGetUserStats = mcp.NewTool("get_user_stats",
	mcp.WithDescription("Lifetime training totals for the user: session and rep counts, total training time, first/last session dates, and a per-exercise breakdown."),
)

var toolGetRepQuality = mcp.NewTool("get_rep_quality",
	mcp.WithDescription("Distribution of reps across quality bands (below_minimum, at_minimum, at_push, new_best) with miss and push rates, plus a per-exercise breakdown. Shows how hard the user is actually working relative to their targets."),
	mcp.WithString("exercise", mcp.Description("Optional exercise kind to scope the bands to. All exercises when omitted.")),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 3 months ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
)

var toolCompareSessions = mcp.NewTool("compare_sessions",
	mcp.WithDescription("Compare two sessions side by side: the summary row and per-rep records of each (e.g. this week's squat session vs last week's)."),
	mcp.WithString("session_a", mcp.Required(), mcp.Description("First session UUID")),
	mcp.WithString("session_b", mcp.Required(), mcp.Description("Second session UUID")),
)

// --- Tool handlers ---

func (h *handlers) getSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	uid := UserIDFromContext(ctx)

	sessions, err := h.ds.QuerySessions(ctx, uid, start, end)
	if err != nil {
		h.log.Error("mcp get_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sessions)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSessionReps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireSessionID(req, "session_id")
	if errResult != nil {
		return errResult, nil
	}

	reps, err := h.ds.QuerySessionReps(ctx, id)
	if err != nil {
		h.log.Error("mcp get_session_reps", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(reps)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getProgressSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercise, err := req.RequireString("exercise")
	if err != nil {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}

	endStr := req.GetString("end", "")
	startStr := req.GetString("start", "")

	var start, end time.Time

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return mcp.NewToolResultError("invalid end date: " + err.Error()), nil
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return mcp.NewToolResultError("invalid start date: " + err.Error()), nil
		}
	} else {
		start = end.AddDate(0, -3, 0)
	}

	bucket := req.GetString("bucket", "1 week")
	uid := UserIDFromContext(ctx)

	summary, err := h.ds.GetProgressSummary(ctx, uid, exercise, start, end, bucket)
	if err != nil {
		h.log.Error("mcp get_progress_summary", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(summary)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getTargetHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireSessionID(req, "session_id")
	if errResult != nil {
		return errResult, nil
	}

	events, err := h.ds.QueryTargetEvents(ctx, id)
	if err != nil {
		h.log.Error("mcp get_target_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(events)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getExerciseCatalog(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercises, err := h.ds.ListExercises(ctx)
	if err != nil {
		h.log.Error("mcp get_exercise_catalog", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(exercises)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getRepQuality(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}
	if req.GetString("start", "") == "" {
		start = end.AddDate(0, -3, 0)
	}

	uid := UserIDFromContext(ctx)

	quality, err := h.ds.GetRepQuality(ctx, uid, req.GetString("exercise", ""), start, end)
	if err != nil {
		h.log.Error("mcp get_rep_quality", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(quality)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getUserStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)

	stats, err := h.ds.GetUserStats(ctx, uid)
	if err != nil {
		h.log.Error("mcp get_user_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(stats)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) compareSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idA, errResult := requireSessionID(req, "session_a")
	if errResult != nil {
		return errResult, nil
	}
	idB, errResult := requireSessionID(req, "session_b")
	if errResult != nil {
		return errResult, nil
	}

	sideA, err := h.sessionSide(ctx, idA)
	if err != nil {
		h.log.Error("mcp compare_sessions A", "error", err)
		return mcp.NewToolResultError("query failed for session_a: " + err.Error()), nil
	}

	sideB, err := h.sessionSide(ctx, idB)
	if err != nil {
		h.log.Error("mcp compare_sessions B", "error", err)
		return mcp.NewToolResultError("query failed for session_b: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"session_a": sideA,
		"session_b": sideB,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// sessionSide loads one side of a comparison: the session row plus its reps.
func (h *handlers) sessionSide(ctx context.Context, id uuid.UUID) (map[string]any, error) {
	sess, err := h.ds.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	reps, err := h.ds.QuerySessionReps(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"session": sess, "reps": reps}, nil
}
