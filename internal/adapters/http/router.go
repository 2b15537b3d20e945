package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/groundctx/ragengine/internal/core/domain"
	"github.com/groundctx/ragengine/internal/core/ports"
	"github.com/groundctx/ragengine/internal/observability/metrics"
)

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
}

type Router struct {
	contexts ports.ContextProvider
	answers  ports.AnswerService
	verifier ports.AnswerVerifier
	metrics  *metrics.PipelineMetrics
	service  string
	opts     Options
}

func NewRouter(
	contexts ports.ContextProvider,
	answers ports.AnswerService,
	verifier ports.AnswerVerifier,
	pipelineMetrics *metrics.PipelineMetrics,
	service string,
	opts Options,
) *Router {
	return &Router{
		contexts: contexts,
		answers:  answers,
		verifier: verifier,
		metrics:  pipelineMetrics,
		service:  service,
		opts:     opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/context/query", rt.queryContext)
	mux.HandleFunc("/v1/answer/query", rt.queryAnswer)
	mux.HandleFunc("/v1/answer/verify", rt.verifyAnswer)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.opts.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, 50*time.Millisecond)
	}
	if rt.opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type contextQueryRequest struct {
	Workspace   string `json:"workspace"`
	Query       string `json:"query"`
	TokenBudget int    `json:"token_budget"`
}

func (rt *Router) queryContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req contextQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	start := time.Now()
	result, err := rt.contexts.GetRelevantContext(r.Context(), ports.ContextRequest{
		Workspace:   req.Workspace,
		Query:       req.Query,
		TokenBudget: req.TokenBudget,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(rt.service, "context_query", len(result.Context.Sources), result.Context.Degraded, time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) queryAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req contextQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	start := time.Now()
	answer, err := rt.answers.Answer(r.Context(), ports.ContextRequest{
		Workspace:   req.Workspace,
		Query:       req.Query,
		TokenBudget: req.TokenBudget,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(rt.service, "answer_query", len(answer.Sources), answer.Degraded, time.Since(start))
		rt.metrics.RecordVerification(rt.service, answer.Confidence, len(answer.Attempts), len(answer.Verification.UnsupportedClaims()))
	}
	writeJSON(w, http.StatusOK, answer)
}

type verifyAnswerRequest struct {
	Workspace string `json:"workspace"`
	Query     string `json:"query"`
	Answer    string `json:"answer"`
	Context   string `json:"context"`
}

func (rt *Router) verifyAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req verifyAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "answer is required"})
		return
	}

	verified, err := rt.verifier.VerifyAndCorrect(r.Context(), ports.VerifyRequest{
		Workspace: req.Workspace,
		Query:     req.Query,
		Answer:    req.Answer,
		Context:   domain.AssembledContext{Text: req.Context, Mode: domain.ModeSynthesized},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordVerification(rt.service, verified.Verification.Confidence, len(verified.Attempts), len(verified.Verification.UnsupportedClaims()))
	}
	writeJSON(w, http.StatusOK, verified)
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
