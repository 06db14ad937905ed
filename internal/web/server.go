package web

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"

	"github.com/clamm-labs/exerciser/internal/engine"
	"github.com/clamm-labs/exerciser/internal/logger"
	"github.com/clamm-labs/exerciser/internal/metrics"
	"github.com/clamm-labs/exerciser/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// Calculator is the evaluator surface the synchronous adapter exposes.
type Calculator interface {
	Calculate(ctx context.Context, req types.ProfitabilityRequest) types.ProfitabilityResult
}

// EngineStatus is what the health endpoint reads from the orchestrator.
type EngineStatus interface {
	Running() bool
	LastCycle() engine.CycleStats
}

// WebServer exposes the synchronous profitability adapter plus health and
// metrics endpoints.
type WebServer struct {
	router  *mux.Router
	port    string
	calc    Calculator
	status  EngineStatus
	timeout time.Duration
	srv     *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, calc Calculator, status EngineStatus, timeout time.Duration) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		calc:    calc,
		status:  status,
		timeout: timeout,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/profitability", ws.handleProfitability).Methods("POST")

	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server. Blocks until the server exits.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.srv = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: ws.timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return ws.srv.ListenAndServe()
}

// Stop gracefully shuts the server down, draining in-flight requests.
func (ws *WebServer) Stop(ctx context.Context) error {
	if ws.srv == nil {
		return nil
	}
	return ws.srv.Shutdown(ctx)
}

// Handler returns the configured router. Used by tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// profitabilityRequest is the wire shape of a synchronous calculation
// request. Tick bounds are pointers so a missing field is distinguishable
// from tick zero.
type profitabilityRequest struct {
	ChainID  uint64         `json:"chain_id"`
	Market   string         `json:"market"`
	Pool     string         `json:"pool"`
	OptionID string         `json:"option_id"`
	IsCall   bool           `json:"is_call"`
	Ranges   []rangePayload `json:"ranges"`
}

type rangePayload struct {
	TickLower *int   `json:"tick_lower"`
	TickUpper *int   `json:"tick_upper"`
	Liquidity string `json:"liquidity"`
}

type profitDetail struct {
	Index           int    `json:"index"`
	Liquidity       string `json:"liquidity"`
	AmountLocked    string `json:"amount_locked"`
	QuotedAmountOut string `json:"quoted_amount_out"`
	AmountToRefill  string `json:"amount_to_refill"`
	Profit          string `json:"profit"`
	IsProfitable    bool   `json:"is_profitable"`
}

type exercisePayload struct {
	OptionID            string   `json:"option_id"`
	Swapper             []string `json:"swapper"`
	SwapData            []string `json:"swap_data"`
	LiquidityToExercise []string `json:"liquidity_to_exercise"`
}

type profitabilityResponse struct {
	Details          []profitDetail  `json:"details"`
	TotalProfit      string          `json:"total_profit"`
	IsProfitable     bool            `json:"is_profitable"`
	ExerciseParams   exercisePayload `json:"exercise_params"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
}

// handleProfitability validates the payload and races the evaluator against
// the configured timeout. The in-flight computation is not cancelled on
// timeout: it completes in the background and primes the result cache for
// the next caller.
func (ws *WebServer) handleProfitability(w http.ResponseWriter, r *http.Request) {
	var payload profitabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		ws.writeValidationError(w, []string{"body: " + err.Error()})
		return
	}

	request, invalid := convertRequest(payload)
	if len(invalid) > 0 {
		ws.writeValidationError(w, invalid)
		return
	}

	started := time.Now()
	resultCh := make(chan types.ProfitabilityResult, 1)
	go func() {
		resultCh <- ws.calc.Calculate(context.Background(), request)
	}()

	select {
	case result := <-resultCh:
		ws.writeJSONResponse(w, http.StatusOK, convertResult(result, time.Since(started)))
	case <-time.After(ws.timeout):
		webLogger.Warn().
			Str("optionID", request.OptionID).
			Dur("timeout", ws.timeout).
			Msg("Profitability calculation timed out for synchronous caller")
		ws.writeJSONResponse(w, http.StatusGatewayTimeout, map[string]interface{}{
			"error":      true,
			"kind":       "gateway_timeout",
			"message":    "profitability calculation exceeded the configured timeout",
			"timeout_ms": ws.timeout.Milliseconds(),
			"timestamp":  time.Now().UTC(),
		})
	}
}

// convertRequest validates the payload and builds the evaluator request,
// reporting the invalid or missing fields otherwise.
func convertRequest(payload profitabilityRequest) (types.ProfitabilityRequest, []string) {
	var invalid []string

	if payload.ChainID == 0 {
		invalid = append(invalid, "chain_id")
	}
	if !common.IsHexAddress(payload.Market) {
		invalid = append(invalid, "market")
	}
	if !common.IsHexAddress(payload.Pool) {
		invalid = append(invalid, "pool")
	}
	if payload.OptionID == "" {
		invalid = append(invalid, "option_id")
	}
	if len(payload.Ranges) == 0 {
		invalid = append(invalid, "ranges")
	}

	ranges := make([]types.TickRange, 0, len(payload.Ranges))
	for i, rg := range payload.Ranges {
		prefix := "ranges[" + strconv.Itoa(i) + "]"
		if rg.TickLower == nil {
			invalid = append(invalid, prefix+".tick_lower")
			continue
		}
		if rg.TickUpper == nil {
			invalid = append(invalid, prefix+".tick_upper")
			continue
		}
		if *rg.TickLower >= *rg.TickUpper {
			invalid = append(invalid, prefix+".tick_lower")
			continue
		}
		liquidity, ok := new(big.Int).SetString(rg.Liquidity, 10)
		if rg.Liquidity == "" || !ok {
			invalid = append(invalid, prefix+".liquidity")
			continue
		}
		ranges = append(ranges, types.TickRange{
			TickLower: *rg.TickLower,
			TickUpper: *rg.TickUpper,
			Liquidity: liquidity,
		})
	}

	if len(invalid) > 0 {
		return types.ProfitabilityRequest{}, invalid
	}
	return types.ProfitabilityRequest{
		ChainID:  payload.ChainID,
		Market:   common.HexToAddress(payload.Market),
		Pool:     common.HexToAddress(payload.Pool),
		OptionID: payload.OptionID,
		IsCall:   payload.IsCall,
		Ranges:   ranges,
	}, nil
}

func convertResult(result types.ProfitabilityResult, elapsed time.Duration) profitabilityResponse {
	details := make([]profitDetail, len(result.Details))
	for i, d := range result.Details {
		details[i] = profitDetail{
			Index:           d.Index,
			Liquidity:       bigString(d.Liquidity),
			AmountLocked:    bigString(d.AmountLocked),
			QuotedAmountOut: bigString(d.QuotedAmountOut),
			AmountToRefill:  bigString(d.AmountToRefill),
			Profit:          bigString(d.Profit),
			IsProfitable:    d.IsProfitable,
		}
	}

	swapper := make([]string, len(result.ExerciseParams.Swapper))
	for i, addr := range result.ExerciseParams.Swapper {
		swapper[i] = addr.Hex()
	}
	swapData := make([]string, len(result.ExerciseParams.SwapData))
	for i, data := range result.ExerciseParams.SwapData {
		swapData[i] = hexutil.Encode(data)
	}
	liquidity := make([]string, len(result.ExerciseParams.LiquidityToExercise))
	for i, liq := range result.ExerciseParams.LiquidityToExercise {
		liquidity[i] = bigString(liq)
	}

	return profitabilityResponse{
		Details:      details,
		TotalProfit:  bigString(result.TotalProfit),
		IsProfitable: result.IsProfitable,
		ExerciseParams: exercisePayload{
			OptionID:            result.ExerciseParams.OptionID,
			Swapper:             swapper,
			SwapData:            swapData,
			LiquidityToExercise: liquidity,
		},
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}

func bigString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

// handleHealth returns server and engine health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := ws.status != nil && ws.status.Running()
	var lastCycle interface{}
	if ws.status != nil {
		stats := ws.status.LastCycle()
		if !stats.CompletedAt.IsZero() {
			lastCycle = stats
		}
	}

	status := "OK"
	statusCode := http.StatusOK
	if !running {
		status = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"status":         status,
		"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
		"engine_running": running,
		"last_cycle":     lastCycle,
		"component": map[string]interface{}{
			"name":    "clamm-option-exerciser",
			"version": "1.0.0",
		},
	}
	if counter, ok := ws.calc.(interface{ CachedResults() int }); ok {
		body["cached_results"] = counter.CachedResults()
	}

	ws.writeJSONResponse(w, statusCode, body)
}

func (ws *WebServer) writeValidationError(w http.ResponseWriter, fields []string) {
	ws.writeJSONResponse(w, http.StatusBadRequest, map[string]interface{}{
		"error":     true,
		"kind":      "validation_error",
		"message":   "request validation failed",
		"fields":    fields,
		"timestamp": time.Now().UTC(),
	})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// loggingMiddleware logs HTTP requests and records request metrics
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapper.statusCode)).Inc()

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
