// Package prediction runs the request pipeline: normalize, derive features,
// reconcile against the model schema, score and shape the response.
package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"farecast/ml"
	"farecast/pipeline"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ModelSource hands out the loaded model and its schema.
type ModelSource interface {
	Get() (ml.Regressor, ml.ModelSchema, error)
}

// Recorder persists served predictions.
type Recorder interface {
	SaveBatch(ctx context.Context, records []pipeline.PredictionRecord) error
}

// Publisher fans prediction events out to live subscribers.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Observer receives pipeline measurements.
type Observer interface {
	ObservePrediction(source string, rows int, elapsed time.Duration, err error)
	ObserveCache(hit bool)
}

// Request is one call into the pipeline. Exactly one of Form or Body is
// used, depending on Source.
type Request struct {
	ID     string
	Source pipeline.Source
	Form   url.Values
	Body   []byte
}

// Prediction is one scored row, rendered as {"<key>": value}.
type Prediction struct {
	Key   string
	Value float64
}

func (p Prediction) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]float64{p.Key: p.Value})
}

// Response is the JSON envelope for batch and API callers.
type Response struct {
	Results []Prediction `json:"results"`
}

// Event is published after every successful request.
type Event struct {
	RequestID string       `json:"request_id"`
	Domain    string       `json:"domain"`
	Source    string       `json:"source"`
	Results   []Prediction `json:"results"`
	At        time.Time    `json:"at"`
}

// Config tunes the service.
type Config struct {
	// CacheSize bounds the memo of feature vector -> model output.
	// Zero disables caching.
	CacheSize int
}

// Service is safe for concurrent use. The model handle and cache are the
// only shared state; neither is mutated by a request.
type Service struct {
	models     ModelSource
	normalizer *pipeline.Normalizer
	profile    ml.Profile
	logger     *zap.Logger
	cache      *lru.Cache[string, float64]

	recorder  Recorder
	publisher Publisher
	observer  Observer
}

// Option wires an optional collaborator.
type Option func(*Service)

func WithRecorder(r Recorder) Option   { return func(s *Service) { s.recorder = r } }
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }
func WithObserver(o Observer) Option   { return func(s *Service) { s.observer = o } }

// NewService builds the pipeline around models and normalizer.
func NewService(models ModelSource, normalizer *pipeline.Normalizer, config Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	if models == nil {
		return nil, errors.New("model source is required")
	}
	if normalizer == nil {
		return nil, errors.New("normalizer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		models:     models,
		normalizer: normalizer,
		profile:    normalizer.Profile(),
		logger:     logger,
	}
	if config.CacheSize > 0 {
		cache, err := lru.New[string, float64](config.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
		s.cache = cache
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Profile returns the domain this service predicts for.
func (s *Service) Profile() ml.Profile { return s.profile }

// Schema returns the model schema, loading artifacts if needed.
func (s *Service) Schema() (ml.ModelSchema, error) {
	_, schema, err := s.models.Get()
	return schema, err
}

// Predict runs the full pipeline and returns one result per input row, in
// input order.
func (s *Service) Predict(ctx context.Context, req Request) (results []Prediction, err error) {
	start := time.Now()
	rows := 0
	defer func() {
		if s.observer != nil {
			s.observer.ObservePrediction(string(req.Source), rows, time.Since(start), err)
		}
	}()

	// Batch bodies need no schema and are parsed before the model loads.
	// Form paths take their field list from the schema.
	var (
		model  ml.Regressor
		schema ml.ModelSchema
		table  *ml.FeatureTable
	)
	if req.Source == pipeline.SourceFile || req.Source == pipeline.SourceJSON {
		if table, err = s.normalize(req, schema); err != nil {
			s.logInputError(req, err)
			return nil, err
		}
		if model, schema, err = s.models.Get(); err != nil {
			return nil, err
		}
	} else {
		if model, schema, err = s.models.Get(); err != nil {
			return nil, err
		}
		if table, err = s.normalize(req, schema); err != nil {
			s.logInputError(req, err)
			return nil, err
		}
	}
	rows = table.Len()

	if s.profile.Derive {
		table, err = ml.DeriveFeatures(table)
		if err != nil {
			s.logInputError(req, err)
			return nil, err
		}
	}

	matrix, err := ml.Reconcile(table, schema)
	if err != nil {
		s.logInputError(req, err)
		return nil, err
	}
	for col, n := range matrix.Filled {
		s.logger.Debug("schema column defaulted",
			zap.String("request_id", req.ID),
			zap.String("stage", "reconcile"),
			zap.String("field", col),
			zap.Int("rows", n))
	}

	values, err := s.score(ctx, model, matrix)
	if err != nil {
		s.logger.Error("prediction failed",
			zap.String("request_id", req.ID),
			zap.String("stage", "predict"),
			zap.Int("rows", matrix.Len()),
			zap.Error(err))
		return nil, &ml.PredictionError{Err: err}
	}

	results = make([]Prediction, len(values))
	for i, v := range values {
		results[i] = Prediction{Key: s.profile.OutputKey, Value: Round2(v)}
	}

	s.record(ctx, req, table, results)
	return results, nil
}

func (s *Service) normalize(req Request, schema ml.ModelSchema) (*ml.FeatureTable, error) {
	switch req.Source {
	case pipeline.SourceForm:
		return s.normalizer.FromForm(req.Form, schema)
	case pipeline.SourceManual:
		if req.Form != nil {
			return s.normalizer.FromForm(req.Form, schema)
		}
		return s.normalizer.FromManual(req.Body, schema)
	case pipeline.SourceFile:
		return s.normalizer.FromFile(req.Body)
	case pipeline.SourceJSON:
		return s.normalizer.FromJSON(req.Body)
	}
	return nil, &ml.ValidationError{Reason: fmt.Sprintf("unsupported input source %q", req.Source)}
}

// score runs the model over rows not already in the cache. Results stay
// aligned with matrix rows.
func (s *Service) score(ctx context.Context, model ml.Regressor, matrix ml.FeatureMatrix) ([]float64, error) {
	out := make([]float64, matrix.Len())
	if matrix.Len() == 0 {
		return out, nil
	}

	var (
		pending []int
		keys    = make([]string, matrix.Len())
	)
	for i, vec := range matrix.Rows {
		if s.cache != nil {
			keys[i] = vectorKey(vec)
			if v, ok := s.cache.Get(keys[i]); ok {
				out[i] = v
				s.observeCache(true)
				continue
			}
			s.observeCache(false)
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	sub := make([][]float64, len(pending))
	for j, i := range pending {
		sub[j] = matrix.Rows[i]
	}
	scored, err := invoke(ctx, model, sub)
	if err != nil {
		return nil, err
	}
	if len(scored) != len(sub) {
		return nil, fmt.Errorf("model returned %d values for %d rows", len(scored), len(sub))
	}
	for j, i := range pending {
		if math.IsNaN(scored[j]) || math.IsInf(scored[j], 0) {
			return nil, fmt.Errorf("model produced %v for row %d", scored[j], i+1)
		}
		out[i] = scored[j]
		if s.cache != nil {
			s.cache.Add(keys[i], scored[j])
		}
	}
	return out, nil
}

// invoke calls the model, turning a panic inside it into an error.
func invoke(ctx context.Context, model ml.Regressor, matrix [][]float64) (out []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()
	return model.Predict(ctx, matrix)
}

func (s *Service) observeCache(hit bool) {
	if s.observer != nil {
		s.observer.ObserveCache(hit)
	}
}

func (s *Service) logInputError(req Request, err error) {
	s.logger.Warn("rejected input",
		zap.String("request_id", req.ID),
		zap.String("source", string(req.Source)),
		zap.String("stage", ml.Stage(err)),
		zap.String("field", ml.ErrorField(err)),
		zap.Error(err))
}

func (s *Service) record(ctx context.Context, req Request, table *ml.FeatureTable, results []Prediction) {
	if s.recorder != nil {
		records := make([]pipeline.PredictionRecord, len(results))
		now := time.Now()
		for i, r := range results {
			input, _ := json.Marshal(table.Rows[i])
			records[i] = pipeline.PredictionRecord{
				RequestID: req.ID,
				Domain:    s.profile.Name,
				Source:    string(req.Source),
				RowIndex:  i,
				Input:     string(input),
				Value:     r.Value,
				CreatedAt: now,
			}
		}
		if err := s.recorder.SaveBatch(ctx, records); err != nil {
			s.logger.Warn("failed to store predictions", zap.String("request_id", req.ID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		s.publisher.Publish("prediction", Event{
			RequestID: req.ID,
			Domain:    s.profile.Name,
			Source:    string(req.Source),
			Results:   results,
			At:        time.Now(),
		})
	}
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func vectorKey(vec []float64) string {
	var b strings.Builder
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
