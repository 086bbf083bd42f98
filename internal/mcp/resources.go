package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) latestSession(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uid := UserIDFromContext(ctx)

	sess, err := h.ds.LatestSession(ctx, uid)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("no sessions recorded for user %d", uid)
	}

	reps, err := h.ds.QuerySessionReps(ctx, sess.ID)
	if err != nil {
		h.log.Warn("latest_session: reps query failed", "error", err)
	}

	targets, err := h.ds.QueryTargetEvents(ctx, sess.ID)
	if err != nil {
		h.log.Warn("latest_session: target query failed", "error", err)
	}

	data, err := json.Marshal(map[string]any{
		"session":       sess,
		"reps":          reps,
		"target_events": targets,
	})
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (h *handlers) exerciseCatalog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	exercises, err := h.ds.ListExercises(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(exercises)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
