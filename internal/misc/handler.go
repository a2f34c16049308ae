package misc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/2beens/trainlog/internal/auth"
	"github.com/2beens/trainlog/internal/middleware"
	"github.com/2beens/trainlog/internal/telemetry/metrics"
	"github.com/2beens/trainlog/internal/telemetry/tracing"
	"github.com/2beens/trainlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=misc_test

type authService interface {
	SignInAnonymously(ctx context.Context, createdAt time.Time) (*auth.Session, error)
	SignInWithPassphrase(ctx context.Context, userID, passphrase string, createdAt time.Time) (*auth.Session, error)
	SetPassphrase(ctx context.Context, userID, passphrase string) error
	Logout(ctx context.Context, token string) (bool, error)
}

type SignInRequest struct {
	UserID     string `json:"userId"`
	Passphrase string `json:"passphrase"`
}

type SignInResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type Handler struct {
	versionInfo    string
	authService    authService
	metricsManager *metrics.Manager
}

func NewHandler(
	versionInfo string,
	authService authService,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		versionInfo:    versionInfo,
		authService:    authService,
		metricsManager: metricsManager,
	}
}

func (handler *Handler) SetupRoutes(
	mainRouter *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	signInRateLimitPerMin int,
) {
	mainRouter.HandleFunc("/", handler.handleRoot).Methods("GET", "POST", "OPTIONS").Name("root")
	mainRouter.HandleFunc("/myip", handler.handleGetMyIp).Methods("GET").Name("myip")
	mainRouter.HandleFunc("/version", handler.handleGetVersionInfo).Methods("GET").Name("version")

	authSubrouter := mainRouter.PathPrefix("/a").Subrouter()
	authSubrouter.
		HandleFunc("/signin", handler.handleSignIn).
		Methods("POST", "OPTIONS").Name("signin")
	authSubrouter.
		HandleFunc("/signout", handler.handleSignOut).
		Methods("POST", "OPTIONS").Name("signout")
	authSubrouter.
		HandleFunc("/passphrase", handler.handleSetPassphrase).
		Methods("POST", "OPTIONS").Name("passphrase")

	// passphrase guessing is the obvious abuse here
	authSubrouter.Use(middleware.RateLimit(rateLimiter, handler.metricsManager, "signin", signInRateLimitPerMin))
}

func (handler *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
}

func (handler *Handler) handleGetMyIp(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.getMyIp")
	defer span.End()

	ip, err := pkg.ReadUserIP(r)
	if err != nil {
		span.SetStatus(codes.Error, "failed to get user IP address")
		log.Errorf("failed to get user IP address: %s", err)
		http.Error(w, "failed to get IP", http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.String("user.ip", ip))
	pkg.WriteTextResponseOK(w, ip)
}

func (handler *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.signIn")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	var signInReq SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&signInReq); err != nil && !errors.Is(err, io.EOF) {
		log.Tracef("sign in, unmarshal json params: %s", err)
		http.Error(w, "sign in failed", http.StatusBadRequest)
		return
	}

	var (
		session *auth.Session
		err     error
		method  = "anonymous"
	)
	if signInReq.UserID == "" && signInReq.Passphrase == "" {
		session, err = handler.authService.SignInAnonymously(ctx, time.Now())
	} else {
		method = "passphrase"
		session, err = handler.authService.SignInWithPassphrase(ctx, signInReq.UserID, signInReq.Passphrase, time.Now())
	}
	span.SetAttributes(attribute.String("signin.method", method))
	if err != nil {
		if errors.Is(err, auth.ErrWrongPassphrase) {
			log.Tracef("failed sign in attempt for user [%s]", signInReq.UserID)
			span.SetStatus(codes.Error, "wrong passphrase")
			http.Error(w, "error, wrong credentials", http.StatusUnauthorized)
			return
		}
		log.Errorf("sign in [%s] failed: %s", method, err)
		span.SetStatus(codes.Error, "sign in failed")
		http.Error(w, "sign in failed", http.StatusInternalServerError)
		return
	}

	handler.metricsManager.CounterSignIns.WithLabelValues(method).Inc()
	log.Tracef("new sign in [%s] for user [%s]", method, session.UserID)

	pkg.WriteJSON(w, SignInResponse{
		Token:  session.Token,
		UserID: session.UserID,
	}, http.StatusOK)
}

func (handler *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.signOut")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	authToken := r.Header.Get(middleware.AuthTokenHeader)
	if authToken == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	loggedOut, err := handler.authService.Logout(ctx, authToken)
	if err != nil {
		log.Errorf("[failed sign out] => %s: %s", r.URL.Path, err)
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}
	if !loggedOut {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	pkg.WriteTextResponseOK(w, "signed-out")
}

func (handler *Handler) handleSetPassphrase(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.setPassphrase")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("set passphrase, unmarshal json params: %s", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if err := handler.authService.SetPassphrase(ctx, userID, req.Passphrase); err != nil {
		if errors.Is(err, auth.ErrPassphraseTooShort) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Errorf("set passphrase for [%s]: %s", userID, err)
		span.SetStatus(codes.Error, "set passphrase failed")
		http.Error(w, "set passphrase failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "passphrase-set")
}

func (handler *Handler) handleGetVersionInfo(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, handler.versionInfo)
}
