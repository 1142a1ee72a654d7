// Package httpapi exposes the kiosk's local HTTP API: the punch endpoint the
// UI collaborator calls and a small authenticated admin surface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/metrostaff/timeclock/internal/errs"
	"github.com/metrostaff/timeclock/internal/repository"
	"github.com/metrostaff/timeclock/internal/service"
)

// maxBodyBytes bounds request bodies; punch and login payloads are tiny.
const maxBodyBytes = 64 << 10

// SyncControl is the slice of the syncer the admin surface needs.
type SyncControl interface {
	Kick()
	Status() service.SyncStatus
}

// Server wires the services into HTTP handlers.
type Server struct {
	coord   service.Coordinator
	admin   service.AdminService
	queue   repository.PunchQueue
	sync    SyncControl
	signKey []byte
	log     *zap.Logger
}

// New constructs the HTTP API server.
func New(coord service.Coordinator, admin service.AdminService, queue repository.PunchQueue, sync SyncControl, signKey []byte, log *zap.Logger) *Server {
	return &Server{
		coord:   coord,
		admin:   admin,
		queue:   queue,
		sync:    sync,
		signKey: signKey,
		log:     log,
	}
}

// Handler returns the routed handler with logging and panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/punch", s.handlePunch)
	mux.HandleFunc("POST /api/v1/admin/login", s.handleLogin)
	mux.Handle("GET /api/v1/admin/status", s.requireAuth(http.HandlerFunc(s.handleStatus)))
	mux.Handle("GET /api/v1/admin/rejected", s.requireAuth(http.HandlerFunc(s.handleRejected)))
	mux.Handle("POST /api/v1/admin/sync", s.requireAuth(http.HandlerFunc(s.handleSyncNow)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.recoverMW(s.loggingMW(mux))
}

type punchRequest struct {
	EmployeeID   string `json:"employee_id"`
	DeptOverride *int   `json:"dept_override,omitempty"`
}

type punchResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	MessageES   string `json:"message_es"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	PunchType   string `json:"punch_type,omitempty"`
	WeeklyHours string `json:"weekly_hours,omitempty"`
}

func (s *Server) handlePunch(w http.ResponseWriter, r *http.Request) {
	var req punchRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.coord.ProcessPunch(r.Context(), req.EmployeeID, req.DeptOverride)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrValidation):
		s.writeError(w, http.StatusBadRequest, "invalid employee id")
		return
	default:
		// local storage failure: the punch is genuinely lost
		s.writeError(w, http.StatusServiceUnavailable, "punch could not be stored")
		return
	}

	resp := punchResponse{
		Status:    string(out.Status),
		Message:   out.Message,
		MessageES: out.MessageES,
		FirstName: out.FirstName,
		LastName:  out.LastName,
		PunchType: string(out.PunchType),
	}
	if out.HasWeekly {
		resp.WeeklyHours = out.WeeklyHours.StringFixed(2)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "empty username/password")
		return
	}

	tok, exp, err := s.admin.Login(r.Context(), req.Username, req.Password, remoteIP(r))
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		s.writeError(w, http.StatusUnauthorized, "bad credentials")
		return
	case errors.Is(err, errs.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	case err != nil:
		s.log.Error("admin login failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	s.writeJSON(w, http.StatusOK, loginResponse{Token: tok, ExpiresAt: exp})
}

type statusResponse struct {
	Pending       int        `json:"pending"`
	Rejected      int        `json:"rejected"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
	LastDrain     *time.Time `json:"last_drain,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	TotalSynced   int        `json:"total_synced"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.queue.Stats(r.Context())
	if err != nil {
		s.log.Error("queue stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	sy := s.sync.Status()

	resp := statusResponse{
		Pending:     st.Pending,
		Rejected:    st.Rejected,
		LastError:   sy.LastError,
		TotalSynced: sy.TotalSynced,
	}
	if st.HasPending {
		resp.OldestPending = &st.OldestPending
	}
	if !sy.LastDrain.IsZero() {
		resp.LastDrain = &sy.LastDrain
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type rejectedPunch struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	PunchTime  time.Time `json:"punch_time"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error"`
}

func (s *Server) handleRejected(w http.ResponseWriter, r *http.Request) {
	recs, err := s.queue.ListRejected(r.Context(), 100)
	if err != nil {
		s.log.Error("list rejected failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	out := make([]rejectedPunch, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rejectedPunch{
			ID:         rec.ID.String(),
			EmployeeID: rec.RawEmployeeID,
			PunchTime:  rec.PunchTime,
			Attempts:   rec.SyncAttempts,
			LastError:  rec.LastError,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rejected": out})
}

func (s *Server) handleSyncNow(w http.ResponseWriter, _ *http.Request) {
	s.sync.Kick()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.queue.Stats(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}
