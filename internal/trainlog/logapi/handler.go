package logapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/2beens/trainlog/internal/auth"
	"github.com/2beens/trainlog/internal/telemetry/tracing"
	"github.com/2beens/trainlog/internal/trainlog"
	"github.com/2beens/trainlog/internal/trainlog/logsync"
	"github.com/2beens/trainlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=logapi_test

type trackerRegistry interface {
	Tracker(ctx context.Context, userID string) (*logsync.Tracker, error)
}

// MutationResponse is returned by every log mutation. SyncWarning is set when the
// change was applied locally but could not be saved remotely.
type MutationResponse struct {
	Week        int          `json:"week,omitempty"`
	Day         trainlog.Day `json:"day,omitempty"`
	Task        int          `json:"task"`
	Done        bool         `json:"done"`
	Value       string       `json:"value,omitempty"`
	Version     uint64       `json:"version"`
	SyncWarning string       `json:"syncWarning,omitempty"`
}

type Handler struct {
	registry   trackerRegistry
	curriculum trainlog.Curriculum
}

func NewHandler(registry trackerRegistry, curriculum trainlog.Curriculum) *Handler {
	if curriculum == nil {
		curriculum = trainlog.NewStaticCurriculum()
	}
	return &Handler{
		registry:   registry,
		curriculum: curriculum,
	}
}

func (handler *Handler) SetupRoutes(mainRouter *mux.Router) {
	mainRouter.HandleFunc("/trainlog", handler.HandleReset).Methods("DELETE", "OPTIONS").Name("reset")

	r := mainRouter.PathPrefix("/trainlog").Subrouter()
	r.HandleFunc("/curriculum/{week}", handler.HandleCurriculum).Methods("GET", "OPTIONS").Name("curriculum")
	r.HandleFunc("/weeks/{week}", handler.HandleWeekProgress).Methods("GET", "OPTIONS").Name("week-progress")
	r.HandleFunc("/weeks/{week}/{day}/{task}/done", handler.HandleSetCompletion).Methods("PUT", "OPTIONS").Name("set-completion")
	r.HandleFunc("/weeks/{week}/{day}/{task}/toggle", handler.HandleToggleCompletion).Methods("POST", "OPTIONS").Name("toggle-completion")
	r.HandleFunc("/weeks/{week}/{day}/{task}/value", handler.HandleSetValue).Methods("PUT", "OPTIONS").Name("set-value")
	r.HandleFunc("/personal-bests", handler.HandlePersonalBests).Methods("GET", "OPTIONS").Name("personal-bests")
	r.HandleFunc("/snapshot", handler.HandleSnapshot).Methods("GET", "OPTIONS").Name("snapshot")
}

func (handler *Handler) HandleCurriculum(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainlog.curriculum")
	defer span.End()

	week, err := parseWeek(mux.Vars(r)["week"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	plan, err := handler.curriculum.Week(week)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pkg.WriteJSON(w, plan, http.StatusOK)
}

func (handler *Handler) HandleWeekProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainlog.weekProgress")
	defer span.End()

	week, err := parseWeek(mux.Vars(r)["week"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tracker, ok := handler.tracker(ctx, w)
	if !ok {
		return
	}

	progress, err := tracker.WeekProgress(week)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pkg.WriteJSON(w, progress, http.StatusOK)
}

func (handler *Handler) HandleSetCompletion(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainlog.setCompletion")
	defer span.End()

	week, day, taskIndex, err := parseTaskPath(mux.Vars(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		Done *bool `json:"done"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Done == nil {
		http.Error(w, "error, done flag missing", http.StatusBadRequest)
		return
	}

	store, ok, err := handler.runMutation(ctx, w, func(tracker *logsync.Tracker) (*trainlog.LogStore, error) {
		return tracker.SetCompletion(ctx, week, day, taskIndex, *req.Done)
	})
	if !ok {
		return
	}
	handler.writeMutationResponse(w, span, store, week, day, taskIndex, err)
}

func (handler *Handler) HandleToggleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainlog.toggleCompletion")
	defer span.End()

	week, day, taskIndex, err := parseTaskPath(mux.Vars(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	store, ok, err := handler.runMutation(ctx, w, func(tracker *logsync.Tracker) (*trainlog.LogStore, error) {
		return tracker.ToggleCompletion(ctx, week, day, taskIndex)
	})
	if !ok {
		return
	}
	handler.writeMutationResponse(w, span, store, week, day, taskIndex, err)
}

func (handler *Handler) HandleSetValue(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainlog.setValue")
	defer span.End()

	week, day, taskIndex, err := parseTaskPath(mux.Vars(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		http.Error(w, "error, value missing", http.StatusBadRequest)
		return
	}

	store, ok, err := handler.runMutation(ctx, w, func(tracker *logsync.Tracker) (*trainlog.LogStore, error) {
		return tracker.SetValue(ctx, week, day, taskIndex, *req.Value)
	})
	if !ok {
		return
	}
	handler.writeMutationResponse(w, span, store, week, day, taskIndex, err)
}

func (handler *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainlog.reset")
	defer span.End()

	store, ok, err := handler.runMutation(ctx, w, func(tracker *logsync.Tracker) (*trainlog.LogStore, error) {
		return tracker.Reset(ctx)
	})
	if !ok {
		return
	}

	resp := MutationResponse{Version: store.Version()}
	if err != nil {
		if !errors.Is(err, logsync.ErrSync) {
			log.Errorf("reset training log: %s", err)
			span.SetStatus(codes.Error, "reset failed")
			http.Error(w, "reset failed", http.StatusInternalServerError)
			return
		}
		resp.SyncWarning = err.Error()
	}

	pkg.WriteJSON(w, resp, http.StatusOK)
}

func (handler *Handler) HandlePersonalBests(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainlog.personalBests")
	defer span.End()

	tracker, ok := handler.tracker(ctx, w)
	if !ok {
		return
	}

	pbs := tracker.PersonalBests()
	span.SetAttributes(attribute.Int("personal_bests", len(pbs)))
	pkg.WriteJSON(w, pbs, http.StatusOK)
}

func (handler *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainlog.snapshot")
	defer span.End()

	tracker, ok := handler.tracker(ctx, w)
	if !ok {
		return
	}

	pkg.WriteJSON(w, tracker.Store().Snapshot(), http.StatusOK)
}

// tracker resolves the tracker of the signed in user. On false the response is already written.
func (handler *Handler) tracker(ctx context.Context, w http.ResponseWriter) (*logsync.Tracker, bool) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return nil, false
	}

	tracker, err := handler.registry.Tracker(ctx, userID)
	if err != nil {
		if tracker != nil && errors.Is(err, logsync.ErrSync) {
			// started from an empty log, it will be replaced once the remote one arrives
			log.Warnf("tracker of [%s] started with a sync warning: %s", userID, err)
			return tracker, true
		}
		log.Errorf("get tracker of [%s]: %s", userID, err)
		http.Error(w, "training log unavailable", http.StatusServiceUnavailable)
		return nil, false
	}

	return tracker, true
}

// runMutation applies mutate to the tracker of the signed in user. A tracker closed by
// idle eviction between lookup and use is looked up once more. On false the response
// is already written.
func (handler *Handler) runMutation(
	ctx context.Context,
	w http.ResponseWriter,
	mutate func(tracker *logsync.Tracker) (*trainlog.LogStore, error),
) (*trainlog.LogStore, bool, error) {
	tracker, ok := handler.tracker(ctx, w)
	if !ok {
		return nil, false, nil
	}

	store, err := mutate(tracker)
	if errors.Is(err, logsync.ErrTrackerClosed) {
		log.Debugf("tracker of [%s] closed meanwhile, retrying", tracker.UserID())
		if tracker, ok = handler.tracker(ctx, w); !ok {
			return nil, false, nil
		}
		store, err = mutate(tracker)
	}

	return store, true, err
}

func (handler *Handler) writeMutationResponse(
	w http.ResponseWriter,
	span trace.Span,
	store *trainlog.LogStore,
	week int,
	day trainlog.Day,
	taskIndex int,
	err error,
) {
	resp := MutationResponse{
		Week:    week,
		Day:     day,
		Task:    taskIndex,
		Done:    store.Completion(week, day, taskIndex),
		Value:   store.Value(week, day, taskIndex),
		Version: store.Version(),
	}

	if err != nil {
		switch {
		case errors.Is(err, logsync.ErrSync):
			resp.SyncWarning = err.Error()
		case isInvalidInput(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, logsync.ErrTrackerClosed):
			http.Error(w, "training log unavailable", http.StatusServiceUnavailable)
			return
		default:
			log.Errorf("training log mutation [%d/%s/%d]: %s", week, day, taskIndex, err)
			span.SetStatus(codes.Error, "mutation failed")
			http.Error(w, "mutation failed", http.StatusInternalServerError)
			return
		}
	}

	pkg.WriteJSON(w, resp, http.StatusOK)
}

func isInvalidInput(err error) bool {
	return errors.Is(err, trainlog.ErrInvalidWeek) ||
		errors.Is(err, trainlog.ErrInvalidDay) ||
		errors.Is(err, trainlog.ErrInvalidTask)
}

func parseWeek(s string) (int, error) {
	week, err := strconv.Atoi(s)
	if err != nil || !trainlog.ValidWeek(week) {
		return 0, trainlog.ErrInvalidWeek
	}
	return week, nil
}

func parseTaskPath(vars map[string]string) (week int, day trainlog.Day, taskIndex int, err error) {
	if week, err = parseWeek(vars["week"]); err != nil {
		return 0, "", 0, err
	}
	if day, err = trainlog.ParseDay(vars["day"]); err != nil {
		return 0, "", 0, err
	}
	taskIndex, err = strconv.Atoi(vars["task"])
	if err != nil || taskIndex < 0 {
		return 0, "", 0, trainlog.ErrInvalidTask
	}
	return week, day, taskIndex, nil
}
