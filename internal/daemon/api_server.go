package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opuspress/internal/config"
	"opuspress/internal/fetch"
	"opuspress/internal/logging"
	"opuspress/internal/opus"
	"opuspress/internal/services"
	"opuspress/internal/telemetry"
)

// uploadMemoryLimit caps the in-memory portion of multipart parsing;
// larger uploads spill to temporary files.
const uploadMemoryLimit = 8 << 20

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/encode", srv.protected("/api/encode", srv.handleEncode))
	mux.HandleFunc("/api/settings", srv.protected("/api/settings", srv.handleSettings))
	mux.HandleFunc("/api/jobs", srv.protected("/api/jobs", srv.handleJobs))
	mux.HandleFunc("/api/status", srv.protected("/api/status", srv.handleStatus))
	mux.HandleFunc("/healthz", srv.instrumented("/healthz", srv.handleHealthz))
	mux.Handle("/metrics", promhttp.Handler())

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No ReadTimeout/WriteTimeout: encode requests legitimately
		// hold the connection for the duration of the encode, which
		// is bounded by the pipeline's own deadline.
	}
	return srv, nil
}

func (s *apiServer) protected(path string, handler http.HandlerFunc) http.HandlerFunc {
	return s.instrumented(path, authMiddleware(s.token, handler))
}

// instrumented records request counts and latency per route.
func (s *apiServer) instrumented(path string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		telemetry.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound address once the server is listening.
func (s *apiServer) addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// handleEncode accepts a source (multipart upload under "file", or a
// form/query "url"), runs it through the pipeline, and streams the
// encoded artifact back on success.
func (s *apiServer) handleEncode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	source, userID, err := s.extractSource(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	reporter := &httpReporter{w: w, logger: s.logger}
	job, err := s.daemon.pipeline.Process(r.Context(), pipelineRequest(userID, source, reporter))
	if err != nil {
		if reporter.streaming {
			// Headers and part of the artifact are already on the
			// wire; nothing coherent can be sent anymore.
			s.logger.Error("encode response aborted mid-stream", logging.Error(err))
			return
		}
		s.writeError(w, failureStatus(err), errorResponse{
			Error:       job.Diagnostic,
			FailureKind: job.FailureKind,
			JobID:       job.ID,
		})
		return
	}
}

func (s *apiServer) extractSource(r *http.Request) (fetch.Source, string, error) {
	maxBytes := s.daemon.cfg.MaxSourceBytes()

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
			return nil, "", fmt.Errorf("parse upload: %w", err)
		}
		userID := requestUser(r)
		file, header, err := r.FormFile("file")
		if err == nil {
			// The pipeline materializes the stream into the job's
			// working directory; the multipart temp file is cleaned
			// up by the http package.
			return fetch.NewReaderSource(header.Filename, file, maxBytes), userID, nil
		}
		if url := strings.TrimSpace(r.FormValue("url")); url != "" {
			return fetch.NewHTTPSource(nil, url, maxBytes), userID, nil
		}
		return nil, "", errors.New(`upload must carry a "file" part or a "url" field`)
	}

	if url := strings.TrimSpace(r.URL.Query().Get("url")); url != "" {
		return fetch.NewHTTPSource(nil, url, maxBytes), requestUser(r), nil
	}
	return nil, "", errors.New(`request must be multipart/form-data or carry a "url" query parameter`)
}

func (s *apiServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := requestUser(r)
		settings := s.daemon.sessions.GetOrDefault(userID)
		s.writeJSON(w, http.StatusOK, settingsPayloadFrom(userID, settings))
	case http.MethodPut, http.MethodPost:
		var payload settingsPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, http.StatusBadRequest, errorResponse{Error: "invalid settings payload"})
			return
		}
		userID := strings.TrimSpace(payload.User)
		if userID == "" {
			userID = requestUser(r)
		}
		settings := s.daemon.sessions.GetOrDefault(userID)
		if strings.TrimSpace(payload.Tier) != "" {
			tier, ok := opus.ParseTier(payload.Tier)
			if !ok {
				s.writeError(w, http.StatusBadRequest, errorResponse{
					Error: fmt.Sprintf("unknown quality tier %q", payload.Tier),
				})
				return
			}
			settings = s.daemon.sessions.SetTier(userID, tier)
		}
		if payload.SpeechOptimized != nil {
			settings = s.daemon.sessions.SetSpeechOptimized(userID, *payload.SpeechOptimized)
		}
		s.writeJSON(w, http.StatusOK, settingsPayloadFrom(userID, settings))
	default:
		s.writeError(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if jobID := strings.TrimSpace(r.URL.Query().Get("id")); jobID != "" {
		entry, err := s.daemon.store.GetByJobID(r.Context(), jobID)
		if err != nil {
			s.writeError(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("no job %q", jobID)})
			return
		}
		s.writeJSON(w, http.StatusOK, jobViewFromEntry(entry))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	user := strings.TrimSpace(r.URL.Query().Get("user"))

	var err error
	var entries []jobView
	if user != "" {
		raw, listErr := s.daemon.store.ListByUser(r.Context(), user, limit)
		err = listErr
		entries = make([]jobView, 0, len(raw))
		for _, entry := range raw {
			entries = append(entries, jobViewFromEntry(entry))
		}
	} else {
		raw, listErr := s.daemon.store.List(r.Context(), limit)
		err = listErr
		entries = make([]jobView, 0, len(raw))
		for _, entry := range raw {
			entries = append(entries, jobViewFromEntry(entry))
		}
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, jobListResponse{Jobs: entries})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	status := s.daemon.Status(r.Context())
	summary, err := s.daemon.store.Summarize(r.Context())
	if err != nil {
		s.logger.Warn("history summary failed", logging.Error(err))
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Running:          status.Running,
		PID:              status.PID,
		HistoryDBPath:    status.HistoryDBPath,
		LockFilePath:     status.LockFilePath,
		ConcurrencyLimit: status.ConcurrencyLimit,
		Dependencies:     status.Dependencies,
		JobsCompleted:    summary.Completed,
		JobsFailed:       summary.Failed,
	})
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	deps := CheckDependencies(r.Context(), s.daemon.cfg)
	if !Healthy(deps) {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":       "degraded",
			"dependencies": deps,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, payload errorResponse) {
	s.writeJSON(w, status, payload)
}

// requestUser identifies the caller, defaulting to a shared anonymous
// identity when the transport carries none.
func requestUser(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get("X-Opuspress-User")); user != "" {
		return user
	}
	if user := strings.TrimSpace(r.URL.Query().Get("user")); user != "" {
		return user
	}
	if user := strings.TrimSpace(r.FormValue("user")); user != "" {
		return user
	}
	return "anonymous"
}

// failureStatus maps a pipeline failure to an HTTP status.
func failureStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
