package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"OpenDCA-Chain/internal/agent"
	xerrors "OpenDCA-Chain/internal/errors"
	"OpenDCA-Chain/internal/observability/metrics"
)

// Server 负责暴露 REST 接口，供外部创建与驱动交易智能体。
type Server struct {
	addr string
	svc  *agent.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, svc *agent.Service) *Server {
	return &Server{addr: addr, svc: svc}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/agents", s.handleCreate)
	mux.HandleFunc("GET /api/v1/agents/{creator}/{id}", s.handleAgentInfo)
	mux.HandleFunc("DELETE /api/v1/agents/{creator}/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/v1/agents/{creator}/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /api/v1/agents/{creator}/{id}/resume", s.handleResume)
	mux.HandleFunc("POST /api/v1/agents/{creator}/{id}/execute", s.handleExecute)
	mux.HandleFunc("GET /api/v1/users/{creator}", s.handleUserInfo)
	mux.HandleFunc("GET /api/v1/users/{creator}/agents", s.handleListAgents)
	mux.HandleFunc("GET /api/v1/platform/stats", s.handlePlatformStats)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// createRequest 是创建接口的请求体。
type createRequest struct {
	Creator     string     `json:"creator"`
	DisplayName string     `json:"display_name"`
	Strategy    agent.Spec `json:"strategy"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "请求体解析失败"))
		return
	}
	if caller := callerOf(r); caller != "" && caller != req.Creator {
		writeError(w, agent.ErrNotAuthorized)
		return
	}

	created, err := s.svc.Create(r.Context(), agent.CreateRequest{
		Creator:     req.Creator,
		DisplayName: req.DisplayName,
		Spec:        req.Strategy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAgentInfo(w http.ResponseWriter, r *http.Request) {
	creator, id, err := pathAgent(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ag, err := s.svc.AgentInfo(r.Context(), creator, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ag)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	creator, id, err := pathAgent(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.Delete(r.Context(), callerOf(r), creator, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.svc.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.svc.Resume)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request,
	op func(context.Context, string, string, uint64) (*agent.Agent, error)) {
	creator, id, err := pathAgent(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ag, err := op(r.Context(), callerOf(r), creator, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ag)
}

// executeResponse 汇报一次执行尝试的结果。
type executeResponse struct {
	Executed       bool               `json:"executed"`
	Skipped        bool               `json:"skipped,omitempty"`
	Halted         bool               `json:"halted,omitempty"`
	HaltReason     agent.HaltReason   `json:"halt_reason,omitempty"`
	AmountIn       uint64             `json:"amount_in,omitempty"`
	AmountOut      uint64             `json:"amount_out,omitempty"`
	ExecutionPrice uint64             `json:"execution_price,omitempty"`
	Observation    *agent.Observation `json:"observation,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	creator, id, err := pathAgent(r)
	if err != nil {
		writeError(w, err)
		return
	}
	outcome, err := s.svc.Execute(r.Context(), callerOf(r), creator, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{
		Executed:       outcome.Executed,
		Skipped:        outcome.Skipped,
		Halted:         outcome.Halted,
		HaltReason:     outcome.HaltReason,
		AmountIn:       outcome.AmountIn,
		AmountOut:      outcome.AmountOut,
		ExecutionPrice: outcome.ExecutionPrice,
		Observation:    outcome.Observation,
	})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.UserInfo(r.Context(), r.PathValue("creator"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.svc.ListAgents(r.Context(), r.PathValue("creator"))
	if err != nil {
		writeError(w, err)
		return
	}
	if agents == nil {
		agents = []*agent.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handlePlatformStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.PlatformStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// callerOf 从请求头提取调用者身份。
func callerOf(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Caller"))
}

func pathAgent(r *http.Request) (string, uint64, error) {
	creator := strings.TrimSpace(r.PathValue("creator"))
	if creator == "" {
		return "", 0, xerrors.New(xerrors.CodeInvalidArgument, "缺少创建者标识")
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return "", 0, xerrors.New(xerrors.CodeInvalidArgument, "智能体编号无效")
	}
	return creator, id, nil
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	writeJSON(w, statusOf(code), errorBody{Error: errorDetail{
		Code:    string(code),
		Message: err.Error(),
	}})
}

// statusOf 把统一错误码翻译成 HTTP 状态码。
func statusOf(code xerrors.Code) int {
	switch code {
	case agent.CodeAgentNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	case agent.CodeNotAuthorized:
		return http.StatusForbidden
	case agent.CodeAgentLimitExceeded, agent.CodeInvalidStateTransition,
		agent.CodeNotActive, agent.CodeNotPaused, xerrors.CodeConflict:
		return http.StatusConflict
	case agent.CodeInvalidInput, agent.CodeInvalidTiming, agent.CodeInvalidPercentage,
		agent.CodeInvalidTrend, agent.CodeUnsupportedType, agent.CodeInsufficientBalance,
		xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case agent.CodeNotTimeForExecution, agent.CodeExecutionWindowExceeded,
		agent.CodeThresholdNotReached:
		return http.StatusUnprocessableEntity
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
