package mcp

import (
	"context"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// --- Tool definitions ---

var toolGetActiveSession = mcp.NewTool("get_active_session",
	mcp.WithDescription("Get the current workout session: state (idle/active/resting/backgrounded/completed), exercises, sets, elapsed time, and any running rest countdown."),
)

var toolStartSession = mcp.NewTool("start_session",
	mcp.WithDescription("Start a workout session from a routine. Fails if a session is already running."),
	mcp.WithString("routine_id", mcp.Required(), mcp.Description("Routine UUID (see list_routines)")),
)

var toolLogSet = mcp.NewTool("log_set",
	mcp.WithDescription("Record a completed set: reps, weight, and an optional rest target that starts the rest countdown."),
	mcp.WithNumber("exercise", mcp.Required(), mcp.Description("Exercise index within the session, starting at 0")),
	mcp.WithNumber("set", mcp.Required(), mcp.Description("Set index within the exercise, starting at 0")),
	mcp.WithNumber("reps", mcp.Required(), mcp.Description("Repetitions performed")),
	mcp.WithNumber("weight_kg", mcp.Required(), mcp.Description("Weight in kilograms")),
	mcp.WithNumber("rest_sec", mcp.Description("Rest seconds before the next set. 0 skips the countdown.")),
)

var toolSkipRest = mcp.NewTool("skip_rest",
	mcp.WithDescription("Cancel the running rest countdown and go straight to the next set."),
)

var toolFinishSession = mcp.NewTool("finish_session",
	mcp.WithDescription("Finish the current workout session. Incomplete sets are allowed; the session is persisted before it closes."),
)

var toolListRoutines = mcp.NewTool("list_routines",
	mcp.WithDescription("List workout routines with their exercises, planned set counts, and default rest times."),
)

var toolGetExerciseHistory = mcp.NewTool("get_exercise_history",
	mcp.WithDescription("Get the sets an exercise had in its most recent finished session, for picking today's working weight."),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Exercise UUID")),
	mcp.WithString("routine_id", mcp.Description("Restrict history to one routine")),
)

var toolListSessions = mcp.NewTool("list_sessions",
	mcp.WithDescription("List finished workout sessions, most recent first."),
	mcp.WithNumber("limit", mcp.Description("Maximum sessions to return. Defaults to 50.")),
)

// --- Tool handlers ---

func (h *handlers) getActiveSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := h.ds.ActiveSession(ctx)
	if err != nil {
		h.log.Error("mcp get_active_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(snap)
}

func (h *handlers) startSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr, err := req.RequireString("routine_id")
	if err != nil {
		return mcp.NewToolResultError("routine_id parameter is required"), nil
	}
	routineID, err := uuid.Parse(idStr)
	if err != nil {
		return mcp.NewToolResultError("routine_id is not a valid UUID"), nil
	}

	snap, err := h.ds.StartSession(ctx, routineID)
	if err != nil {
		h.log.Error("mcp start_session", "error", err)
		return mcp.NewToolResultError("start failed: " + err.Error()), nil
	}
	return jsonResult(snap)
}

func (h *handlers) logSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercise, err := req.RequireInt("exercise")
	if err != nil {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}
	set, err := req.RequireInt("set")
	if err != nil {
		return mcp.NewToolResultError("set parameter is required"), nil
	}
	reps, err := req.RequireInt("reps")
	if err != nil {
		return mcp.NewToolResultError("reps parameter is required"), nil
	}
	weight, err := req.RequireFloat("weight_kg")
	if err != nil {
		return mcp.NewToolResultError("weight_kg parameter is required"), nil
	}
	restSec := req.GetInt("rest_sec", 0)

	snap, err := h.ds.LogSet(ctx, exercise, set, reps, weight, restSec)
	if err != nil {
		h.log.Error("mcp log_set", "error", err)
		return mcp.NewToolResultError("log failed: " + err.Error()), nil
	}
	return jsonResult(snap)
}

func (h *handlers) skipRest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := h.ds.SkipRest(ctx)
	if err != nil {
		h.log.Error("mcp skip_rest", "error", err)
		return mcp.NewToolResultError("skip failed: " + err.Error()), nil
	}
	return jsonResult(snap)
}

func (h *handlers) finishSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := h.ds.FinishSession(ctx)
	if err != nil {
		h.log.Error("mcp finish_session", "error", err)
		return mcp.NewToolResultError("finish failed: " + err.Error()), nil
	}
	return jsonResult(snap)
}

func (h *handlers) listRoutines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	routines, err := h.ds.ListRoutines(ctx)
	if err != nil {
		h.log.Error("mcp list_routines", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(routines)
}

func (h *handlers) getExerciseHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	exerciseID, err := uuid.Parse(idStr)
	if err != nil {
		return mcp.NewToolResultError("exercise_id is not a valid UUID"), nil
	}
	routineID := uuid.Nil
	if v := req.GetString("routine_id", ""); v != "" {
		if routineID, err = uuid.Parse(v); err != nil {
			return mcp.NewToolResultError("routine_id is not a valid UUID"), nil
		}
	}

	sets, err := h.ds.ExerciseHistory(ctx, exerciseID, routineID)
	if err != nil {
		h.log.Error("mcp get_exercise_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(sets)
}

func (h *handlers) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 0)
	sessions, err := h.ds.ListSessions(ctx, limit)
	if err != nil {
		h.log.Error("mcp list_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(sessions)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
