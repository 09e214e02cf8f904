package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/qiaomu-learn/qiaomu/internal/application/feynman"
	"github.com/qiaomu-learn/qiaomu/internal/application/settings"
	domdrill "github.com/qiaomu-learn/qiaomu/internal/domain/drill"
	domnav "github.com/qiaomu-learn/qiaomu/internal/domain/navigation"
	"github.com/qiaomu-learn/qiaomu/internal/domain/progress"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/wordsource"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// maxBodyBytes caps request bodies. Progress imports are the largest
// payload and stay well under this.
const maxBodyBytes = 1 << 20

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps a domain error to an HTTP status and error code.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsPermission(err):
		writeJSONError(w, http.StatusForbidden, "forbidden", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case shared.IsAlreadyExists(err) || errors.Is(err, shared.ErrInvalidState):
		writeJSONError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, shared.ErrServiceUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, "service_unavailable", "Persistence is temporarily unavailable")
	case shared.IsConfiguration(err):
		s.logger.Error("configuration error", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "configuration_error", "The service is misconfigured")
	case shared.IsStorage(err):
		s.logger.Error("storage error", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "storage_error", "Persistence failed")
	default:
		s.logger.Error("unhandled error", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// decodeJSON reads a JSON body into dst with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}

// requireSession validates the X-Session-ID header and returns the
// caller's session. On failure the 401 has already been written.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (sessionID, username string, role domnav.Role, ok bool) {
	sessionID = r.Header.Get("X-Session-ID")
	if sessionID == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing_session", "X-Session-ID header is required")
		return "", "", "", false
	}
	session, err := s.deps.Auth.Validate(sessionID)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid_session", err.Error())
		return "", "", "", false
	}
	return session.ID, session.Username, session.Role, true
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":    "Qiaomu Learning API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":   "/health",
			"login":    "/api/v1/auth/login",
			"modules":  "/api/v1/nav/modules",
			"words":    "/api/v1/words",
			"progress": "/api/v1/progress",
			"drill":    "/api/v1/drill/start",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin authenticates a user and opens a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := s.deps.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		// Deliberately vague: never reveal whether the username exists.
		writeJSONError(w, http.StatusUnauthorized, "invalid_credentials", "Username or password is incorrect")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID, _, _, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	s.deps.Auth.Logout(r.Context(), sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sessionID, _, _, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	session, err := s.deps.Auth.Refresh(r.Context(), sessionID)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid_session", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleSession returns the caller's current session info.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID, username, role, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"username":   username,
		"role":       role,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// NAVIGATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Navigation.Modules())
}

func (s *Server) handleNavState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current": s.deps.Navigation.Current(),
		"history": s.deps.Navigation.History(),
	})
}

type navigateRequest struct {
	Module string `json:"module"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	_, username, role, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.deps.Navigation.Navigate(r.Context(), username, role, domnav.ModuleID(req.Module)); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"current": s.deps.Navigation.Current()})
}

func (s *Server) handleGoBack(w http.ResponseWriter, r *http.Request) {
	_, username, role, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	to, err := s.deps.Navigation.GoBack(r.Context(), username, role)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"current": to})
}

func (s *Server) handleResetHome(w http.ResponseWriter, r *http.Request) {
	_, username, role, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	s.deps.Navigation.ResetHome(r.Context(), username, role)
	writeJSON(w, http.StatusOK, map[string]interface{}{"current": domnav.HomeModule})
}

// handleNavAudit exposes the navigation audit log to staff roles.
func (s *Server) handleNavAudit(w http.ResponseWriter, r *http.Request) {
	_, _, role, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if role != domnav.RoleAdmin && role != domnav.RoleTeacher {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Audit log requires teacher or admin role")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Navigation.AuditLog())
}

// ══════════════════════════════════════════════════════════════════════════════
// WORD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListWords(w http.ResponseWriter, r *http.Request) {
	difficulty, err := word.ParseDifficulty(getQueryParam(r, "difficulty", ""))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Words.List(difficulty))
}

func (s *Server) handleGetWord(w http.ResponseWriter, r *http.Request) {
	found, err := s.deps.Words.Get(r.PathValue("text"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// handleLearnWord marks a word as learned and records the activity.
func (s *Server) handleLearnWord(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	result, err := s.deps.Words.Learn(r.Context(), r.PathValue("text"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type importWordsRequest struct {
	FilePath  string `json:"file_path"`
	SheetName string `json:"sheet_name,omitempty"`
}

// handleImportWords loads words from an Excel workbook on the server
// filesystem into the catalog.
func (s *Server) handleImportWords(w http.ResponseWriter, r *http.Request) {
	_, _, role, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if role != domnav.RoleAdmin && role != domnav.RoleTeacher {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Word import requires teacher or admin role")
		return
	}

	var req importWordsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg := wordsource.DefaultImportConfig(req.FilePath)
	if req.SheetName != "" {
		cfg.SheetName = req.SheetName
	}

	result, err := s.deps.Words.Import(cfg)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Progress.Stats()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Progress.Summary()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	days := getQueryParamInt(r, "days", 7)
	if days < 1 || days > 90 {
		writeJSONError(w, http.StatusBadRequest, "validation_failed", "days must be between 1 and 90")
		return
	}
	chart, err := s.deps.Progress.ChartData(days)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

type recordActivityRequest struct {
	Kind   string `json:"kind"`
	Amount int    `json:"amount,omitempty"`
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	var req recordActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	kind, err := progress.ParseActivityKind(req.Kind)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}

	result, err := s.deps.Progress.Record(r.Context(), kind, req.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type studyTimeRequest struct {
	Seconds int `json:"seconds"`
}

func (s *Server) handleRecordStudyTime(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	var req studyTimeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.Progress.RecordStudyTime(r.Context(), req.Seconds); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleSetGoals(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	var goals progress.WeeklyGoals
	if !decodeJSON(w, r, &goals) {
		return
	}
	if err := s.deps.Progress.SetWeeklyGoals(r.Context(), goals); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

type resetProgressRequest struct {
	KeepAchievements bool `json:"keep_achievements"`
}

func (s *Server) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	_, _, role, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if role == domnav.RoleGuest {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Guests cannot reset progress")
		return
	}
	var req resetProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.Progress.Reset(r.Context(), req.KeepAchievements); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleExportProgress streams the progress ledger as a JSON download.
func (s *Server) handleExportProgress(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	data, err := s.deps.Progress.Export()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="qiaomu-progress.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Could not read request body")
		return
	}
	if err := s.deps.Progress.Import(r.Context(), data); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}

// ══════════════════════════════════════════════════════════════════════════════
// FORCE DRILL HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type drillStartRequest struct {
	MemorySeconds int    `json:"memory_seconds,omitempty"`
	QuizSeconds   int    `json:"quiz_seconds,omitempty"`
	WordCount     int    `json:"word_count,omitempty"`
	TargetCorrect int    `json:"target_correct,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
}

// handleDrillStart opens a new timed drill session. Zero-valued fields
// fall back to the default configuration.
func (s *Server) handleDrillStart(w http.ResponseWriter, r *http.Request) {
	_, username, role, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if !domnav.CanAccess(role, domnav.ModuleForce) {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Your role cannot start force drills")
		return
	}

	var req drillStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg := s.deps.DrillDefaults
	if cfg == (domdrill.Config{}) {
		cfg = domdrill.DefaultConfig()
	}
	if req.MemorySeconds != 0 {
		cfg.MemorySeconds = req.MemorySeconds
	}
	if req.QuizSeconds != 0 {
		cfg.QuizSeconds = req.QuizSeconds
	}
	if req.WordCount != 0 {
		cfg.WordCount = req.WordCount
	}
	if req.TargetCorrect != 0 {
		cfg.TargetCorrect = req.TargetCorrect
	}
	if req.Difficulty != "" {
		difficulty, err := word.ParseDifficulty(req.Difficulty)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		cfg.Difficulty = difficulty
	}

	result, err := s.deps.Drill.Start(r.Context(), username, cfg)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleDrillState(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	snap, err := s.deps.Drill.State(r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDrillSkip(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	if err := s.deps.Drill.SkipMemorization(r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "quiz_started"})
}

type drillAnswerRequest struct {
	Choice int `json:"choice"`
}

func (s *Server) handleDrillAnswer(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	var req drillAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.deps.Drill.SubmitAnswer(r.Context(), r.PathValue("id"), req.Choice)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDrillPause(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	if err := s.deps.Drill.Pause(r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleDrillResume(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	if err := s.deps.Drill.Resume(r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleDrillAbort(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	if err := s.deps.Drill.Abort(r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type quizStartRequest struct {
	Count      int    `json:"count,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

func (s *Server) handleQuizStart(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	var req quizStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	difficulty, err := word.ParseDifficulty(req.Difficulty)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	round, err := s.deps.Quiz.Start(req.Count, difficulty)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

type quizAnswerRequest struct {
	QuestionIndex int `json:"question_index"`
	Choice        int `json:"choice"`
}

func (s *Server) handleQuizAnswer(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	var req quizAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	correct, err := s.deps.Quiz.Answer(r.PathValue("id"), req.QuestionIndex, req.Choice)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"correct": correct})
}

func (s *Server) handleQuizFinish(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	result, err := s.deps.Quiz.Finish(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// FEYNMAN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleFeynmanWord(w http.ResponseWriter, r *http.Request) {
	_, _, role, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if !domnav.CanAccess(role, domnav.ModuleFeynman) {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Your role cannot use feynman practice")
		return
	}
	picked, err := s.deps.Feynman.PickWord()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, picked)
}

type feynmanHintRequest struct {
	Explanation string `json:"explanation"`
}

// handleFeynmanHint returns draft feedback on an in-progress
// explanation without recording anything.
func (s *Server) handleFeynmanHint(w http.ResponseWriter, r *http.Request) {
	var req feynmanHintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hint": feynman.Hint(req.Explanation)})
}

type feynmanSubmitRequest struct {
	Word        string             `json:"word"`
	Explanation string             `json:"explanation"`
	Rating      feynman.SelfRating `json:"rating"`
}

func (s *Server) handleFeynmanSubmit(w http.ResponseWriter, r *http.Request) {
	_, _, role, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if !domnav.CanAccess(role, domnav.ModuleFeynman) {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Your role cannot use feynman practice")
		return
	}

	var req feynmanSubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := s.deps.Feynman.Submit(r.Context(), req.Word, req.Explanation, req.Rating)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleFeynmanHistory(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history":       s.deps.Feynman.History(),
		"average_score": s.deps.Feynman.AverageScore(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Get())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	var update settings.Update
	if !decodeJSON(w, r, &update) {
		return
	}
	current, err := s.deps.Settings.Apply(r.Context(), update)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.requireSession(w, r); !ok {
		return
	}
	current, err := s.deps.Settings.Reset(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}
