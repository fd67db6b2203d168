package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flowpilot/app/core/notify"
	"flowpilot/app/core/orchestrator/store"
	"flowpilot/app/core/planning"
	"flowpilot/app/core/sessions"
	"flowpilot/app/pkg/logger"
	"flowpilot/app/pkg/types"
)

type TaskSource interface {
	FetchAssigned(ctx context.Context) ([]types.Task, error)
}

// Server is the REST surface over the planning, session, and
// notification services.
type Server struct {
	port            int
	userID          string
	server          *http.Server
	shutdownTimeout time.Duration

	tasks    *store.TaskStore
	settings *store.SettingsStore
	github   TaskSource
	jira     TaskSource
	planning *planning.Service
	sessions *sessions.Manager
	notify   *notify.Service
}

func NewServer(
	port int,
	userID string,
	tasks *store.TaskStore,
	settings *store.SettingsStore,
	githubSource TaskSource,
	jiraSource TaskSource,
	planningService *planning.Service,
	sessionManager *sessions.Manager,
	notifyService *notify.Service,
) *Server {
	return &Server{
		port:            port,
		userID:          userID,
		shutdownTimeout: 5 * time.Second,
		tasks:           tasks,
		settings:        settings,
		github:          githubSource,
		jira:            jiraSource,
		planning:        planningService,
		sessions:        sessionManager,
		notify:          notifyService,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/github", s.handleGitHubTasks)
	mux.HandleFunc("/tasks/jira", s.handleJiraTasks)
	mux.HandleFunc("/tasks/local", s.handleLocalTasks)
	mux.HandleFunc("/plan-day", s.handlePlanDay)
	mux.HandleFunc("/session/start", s.handleSessionStart)
	mux.HandleFunc("/session/event", s.handleSessionEvent)
	mux.HandleFunc("/session/end", s.handleSessionEnd)
	mux.HandleFunc("/sessions", s.handleSessionList)
	mux.HandleFunc("/sessions/", s.handleSessionDetail)
	mux.HandleFunc("/notifications", s.handleNotificationList)
	mux.HandleFunc("/notifications/", s.handleNotificationAction)
	mux.HandleFunc("/settings", s.handleSettings)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error: %v", err)
		}
	}()

	logger.Info("http listening on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

// Upstream trackers are best effort list sources; an outage yields an
// empty list rather than an error page.
func (s *Server) handleGitHubTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	tasks, err := s.github.FetchAssigned(r.Context())
	if err != nil {
		logger.Error("github tasks fetch failed: %v", err)
		tasks = []types.Task{}
	}
	if tasks == nil {
		tasks = []types.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleJiraTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	tasks, err := s.jira.FetchAssigned(r.Context())
	if err != nil {
		logger.Error("jira tasks fetch failed: %v", err)
		tasks = []types.Task{}
	}
	if tasks == nil {
		tasks = []types.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type newLocalTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Labels      []string `json:"labels"`
	DueDate     string   `json:"dueDate"`
}

func (s *Server) handleLocalTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tasks, err := s.tasks.List(s.userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to fetch local tasks")
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	case http.MethodPost:
		var req newLocalTaskRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			writeError(w, http.StatusBadRequest, "Title is required for a local task")
			return
		}
		task := types.Task{
			ID:          s.tasks.PushKey(),
			Title:       req.Title,
			Description: req.Description,
			URL:         req.URL,
			Source:      types.SourceLocal,
			Labels:      req.Labels,
			DueDate:     req.DueDate,
		}
		if err := s.tasks.Put(s.userID, task); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create local task")
			return
		}
		writeJSON(w, http.StatusCreated, task)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

type planDayRequest struct {
	Date string `json:"date"`
}

func (s *Server) handlePlanDay(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req planDayRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		plan, err := s.planning.PlanDay(r.Context(), req.Date)
		if err != nil {
			logger.Error("plan generation failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to generate day plan")
			return
		}
		writeJSON(w, http.StatusOK, plan)
	case http.MethodGet:
		plan, err := s.planning.Get(r.URL.Query().Get("date"))
		if err != nil {
			if err == store.ErrNotFound {
				writeError(w, http.StatusNotFound, "No plan found for this date")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to fetch day plan")
			return
		}
		writeJSON(w, http.StatusOK, plan)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

type startSessionRequest struct {
	TaskID         string `json:"taskId"`
	Source         string `json:"source"`
	PlannedBlockID string `json:"plannedBlockId"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "taskId is required")
		return
	}

	session, err := s.sessions.Start(r.Context(), req.TaskID, types.TaskSource(req.Source), req.PlannedBlockID)
	if err != nil {
		var active *sessions.ActiveSessionError
		if errors.As(err, &active) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"message":           "An active session already exists for this task",
				"existingSessionId": active.ExistingSessionID,
			})
			return
		}
		if errors.Is(err, sessions.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Task %s not found. It may have been deleted.", req.TaskID))
			return
		}
		logger.Error("session start failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type sessionEventRequest struct {
	SessionID string                 `json:"sessionId"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
}

func (s *Server) handleSessionEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req sessionEventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	event, err := s.sessions.AddEvent(req.SessionID, types.SessionEventType(req.Type), req.Payload)
	if err != nil {
		logger.Error("session event failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to record session event")
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

type endSessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req endSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	session, err := s.sessions.End(r.Context(), req.SessionID)
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		logger.Error("session end failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to end session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	list, err := s.sessions.List(types.SessionStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch sessions")
		return
	}
	if list == nil {
		list = []types.Session{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		http.NotFound(w, r)
		return
	}

	session, events, err := s.sessions.Detail(sessionID)
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch session details")
		return
	}
	if events == nil {
		events = []types.SessionEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
		"events":  events,
	})
}

func (s *Server) handleNotificationList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var processed *bool
	switch r.URL.Query().Get("processed") {
	case "true":
		v := true
		processed = &v
	case "false":
		v := false
		processed = &v
	}

	list, err := s.notify.List(processed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}
	if list == nil {
		list = []types.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// parseNotificationPath splits /notifications/<id>/<action> and
// /notifications/slack/poll.
func parseNotificationPath(path string) (id string, action string, ok bool) {
	tail := strings.Trim(strings.TrimPrefix(path, "/notifications/"), "/")
	if tail == "" {
		return "", "", false
	}
	parts := strings.Split(tail, "/")
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (s *Server) handleNotificationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, action, ok := parseNotificationPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if id == "slack" && action == "poll" {
		result, err := s.notify.Poll(r.Context())
		if err != nil {
			logger.Error("slack poll failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to poll Slack notifications")
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	switch action {
	case "mark-processed":
		notification, err := s.notify.MarkProcessed(id)
		if err != nil {
			if err == store.ErrNotFound {
				writeError(w, http.StatusNotFound, "Notification not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to update notification")
			return
		}
		writeJSON(w, http.StatusOK, notification)
	case "schedule-now", "schedule-later":
		var (
			notification types.Notification
			task         types.Task
			err          error
		)
		if action == "schedule-now" {
			notification, task, err = s.notify.ScheduleNow(id)
		} else {
			notification, task, err = s.notify.ScheduleLater(id)
		}
		if err != nil {
			if err == store.ErrNotFound {
				writeError(w, http.StatusNotFound, "Notification not found")
				return
			}
			logger.Error("notification scheduling failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to schedule notification")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"notification": notification,
			"task":         task,
		})
	default:
		http.NotFound(w, r)
	}
}

type settingsRequest struct {
	GitHubToken *string `json:"githubToken"`
	SlackToken  *string `json:"slackToken"`
	Timezone    *string `json:"timezone"`
	WorkStart   *string `json:"workStart"`
	WorkEnd     *string `json:"workEnd"`
}

// maskToken keeps a recognizable prefix of a stored credential.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.Get(s.userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to fetch settings")
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPost:
		var req settingsRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}

		fields := map[string]interface{}{}
		if req.GitHubToken != nil {
			fields["githubToken"] = maskToken(*req.GitHubToken)
			fields["githubTokenPlain"] = *req.GitHubToken
		}
		if req.SlackToken != nil {
			fields["slackToken"] = maskToken(*req.SlackToken)
			fields["slackTokenPlain"] = *req.SlackToken
		}
		if req.Timezone != nil {
			fields["timezone"] = *req.Timezone
		}
		if req.WorkStart != nil {
			fields["workStart"] = *req.WorkStart
		}
		if req.WorkEnd != nil {
			fields["workEnd"] = *req.WorkEnd
		}

		settings, err := s.settings.Update(s.userID, fields)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
