package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Snapshot: GET /v1/snapshot
// ============================================================

func snapshotHandler(svc InsightAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/snapshot")
		defer span.End()

		userID := UserIDFromContext(ctx)
		span.SetAttributes(attribute.String("user.id", userID))

		snap, err := svc.ComputeSnapshot(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
	}
}

// ============================================================
// Insights
// ============================================================

func listInsightsHandler(svc InsightAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/insights")
		defer span.End()

		limit, ok := parseLimit(w, r)
		if !ok {
			return
		}

		insights, err := svc.ListInsights(ctx, UserIDFromContext(ctx), limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
	}
}

func createInsightHandler(svc InsightAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/insights")
		defer span.End()

		userID := UserIDFromContext(ctx)
		span.SetAttributes(attribute.String("user.id", userID))

		insight, err := svc.GenerateAndSave(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"insight": insight})
	}
}

func getInsightHandler(svc InsightAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/insights/{insightId}")
		defer span.End()

		insightID := chi.URLParam(r, "insightId")
		span.SetAttributes(attribute.String("insight.id", insightID))

		insight, err := svc.GetInsight(ctx, UserIDFromContext(ctx), insightID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"insight": insight})
	}
}

// ============================================================
// Actions
// ============================================================

func listActionsHandler(svc InsightAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/actions")
		defer span.End()

		limit, ok := parseLimit(w, r)
		if !ok {
			return
		}
		status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))

		list, err := svc.ListActions(ctx, UserIDFromContext(ctx), status, limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

type updateActionRequest struct {
	Status string `json:"status"`
}

func updateActionHandler(svc InsightAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/actions/{actionId}")
		defer span.End()

		actionID := chi.URLParam(r, "actionId")
		span.SetAttributes(attribute.String("action.id", actionID))

		var req updateActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		action, err := svc.UpdateActionStatus(ctx, UserIDFromContext(ctx), actionID, req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"action": action})
	}
}
