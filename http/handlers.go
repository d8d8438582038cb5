package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"farecast/ml"
	"farecast/pipeline"
	"farecast/prediction"

	"go.uber.org/zap"
)

const (
	defaultMaxUpload   = 32 << 20
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Predictor runs the prediction pipeline.
type Predictor interface {
	Predict(ctx context.Context, req prediction.Request) ([]prediction.Prediction, error)
	Profile() ml.Profile
	Schema() (ml.ModelSchema, error)
}

// HistoryStore serves the prediction log.
type HistoryStore interface {
	Recent(ctx context.Context, limit int) ([]pipeline.PredictionRecord, error)
}

// ModelStatus reports the artifact load state.
type ModelStatus interface {
	State() string
}

// Feed streams prediction events to websocket clients.
type Feed interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// MetricsProvider exposes the metrics endpoint and per-route observation.
type MetricsProvider interface {
	RouteObserver
	Handler() http.Handler
}

// Handlers serves the prediction API and HTML page.
type Handlers struct {
	predictor Predictor
	logger    *zap.Logger
	page      *page

	history   HistoryStore
	status    ModelStatus
	feed      Feed
	metrics   MetricsProvider
	maxUpload int64
}

// HandlerOption wires an optional collaborator.
type HandlerOption func(*Handlers)

func WithHistory(h HistoryStore) HandlerOption    { return func(x *Handlers) { x.history = h } }
func WithModelStatus(s ModelStatus) HandlerOption { return func(x *Handlers) { x.status = s } }
func WithFeed(f Feed) HandlerOption               { return func(x *Handlers) { x.feed = f } }
func WithMetrics(m MetricsProvider) HandlerOption { return func(x *Handlers) { x.metrics = m } }

// WithMaxUpload bounds request bodies, in bytes.
func WithMaxUpload(n int64) HandlerOption {
	return func(x *Handlers) {
		if n > 0 {
			x.maxUpload = n
		}
	}
}

// NewHandlers creates the handler set around predictor.
func NewHandlers(predictor Predictor, logger *zap.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handlers{
		predictor: predictor,
		logger:    logger,
		page:      newPage(),
		maxUpload: defaultMaxUpload,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds every route to mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	h.handle(mux, "GET /{$}", h.handleIndex)
	h.handle(mux, "POST /predict", h.handlePredictPage)
	h.handle(mux, "POST /api/predict", h.handlePredict)
	h.handle(mux, "POST /api/predict/manual", h.handlePredictManual)
	h.handle(mux, "GET /api/schema", h.handleSchema)
	h.handle(mux, "GET /api/health", h.handleHealth)
	h.handle(mux, "GET /api/predictions/recent", h.handleRecent)
	if h.feed != nil {
		h.handle(mux, "GET /api/ws/predictions", h.feed.ServeWS)
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
}

func (h *Handlers) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	var obs RouteObserver
	if h.metrics != nil {
		obs = h.metrics
	}
	mux.Handle(pattern, instrument(obs, pattern, fn))
}

// handlePredict accepts a multipart upload in the "file" field, or a JSON
// body of row objects.
func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	req := prediction.Request{ID: GetRequestID(r.Context())}
	if isMultipart(r) {
		data, err := h.readUpload(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		req.Source, req.Body = pipeline.SourceFile, data
	} else {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.writeError(w, r, bodyError(err))
			return
		}
		req.Source, req.Body = pipeline.SourceJSON, body
	}

	h.respondPrediction(w, r, req)
}

// handlePredictManual takes one row as form fields or a JSON object.
func (h *Handlers) handlePredictManual(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	req := prediction.Request{ID: GetRequestID(r.Context()), Source: pipeline.SourceManual}
	if mediaType(r) == "application/json" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.writeError(w, r, bodyError(err))
			return
		}
		req.Body = body
	} else {
		form, err := h.parseForm(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		req.Form = form
	}

	h.respondPrediction(w, r, req)
}

func (h *Handlers) respondPrediction(w http.ResponseWriter, r *http.Request, req prediction.Request) {
	results, err := h.predictor.Predict(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []prediction.Prediction{}
	}
	respondJSON(w, http.StatusOK, prediction.Response{Results: results})
}

func (h *Handlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.predictor.Schema()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	profile := h.predictor.Profile()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"domain":     profile.Name,
		"output_key": profile.OutputKey,
		"features":   schema.Columns(),
		"fields":     fieldNames(profile.FormFields(schema)),
	})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"status": "ok",
		"domain": h.predictor.Profile().Name,
	}
	if h.status != nil {
		resp["model"] = h.status.State()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleRecent(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSONError(w, http.StatusNotFound, "prediction log is disabled")
		return
	}

	limit := defaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read prediction log", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if records == nil {
		records = []pipeline.PredictionRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": records,
		"count":       len(records),
	})
}

func (h *Handlers) readUpload(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, bodyError(err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, &ml.ValidationError{Field: "file", Reason: "multipart upload must include a file field"}
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, bodyError(err)
	}
	return data, nil
}

func (h *Handlers) parseForm(r *http.Request) (url.Values, error) {
	if isMultipart(r) {
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			return nil, bodyError(err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, bodyError(err)
	}
	return r.PostForm, nil
}

// statusFor maps pipeline errors to HTTP status codes and a short message.
func statusFor(err error) (int, string) {
	var (
		me *ml.ModelUnavailableError
		pe *ml.PredictionError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timeout"
	case ml.IsClientError(err):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &me):
		return http.StatusInternalServerError, "model unavailable"
	case errors.As(err, &pe):
		return http.StatusInternalServerError, "prediction failed"
	}
	return http.StatusInternalServerError, "internal server error"
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Debug("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("stage", ml.Stage(err)),
			zap.Error(err))
	}
	writeJSONError(w, status, msg)
}

// bodyError turns a body read failure into a client error.
func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return &ml.ValidationError{Reason: fmt.Sprintf("request body exceeds %d bytes", mbe.Limit)}
	}
	return &ml.ValidationError{Reason: "could not read request body: " + err.Error()}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

func isMultipart(r *http.Request) bool {
	return mediaType(r) == "multipart/form-data"
}

func fieldNames(fields []ml.FieldSpec) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
