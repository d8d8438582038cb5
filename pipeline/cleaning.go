package pipeline

import (
	"fmt"
	"sync"
	"time"

	"farecast/ml"

	"go.uber.org/zap"
)

// CleaningRule checks one typed input row.
type CleaningRule interface {
	Apply(rec ml.RawRecord) error
	Name() string
}

// DataCleaner runs its rules over every row before feature derivation.
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	stats     CleaningStats
	statsLock sync.RWMutex
}

// CleaningStats counts checked and rejected rows.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// NewDataCleaner creates a cleaner with the default trip rules.
func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		logger: logger,
		stats:  CleaningStats{Issues: make(map[string]int64)},
	}
	cleaner.AddRule(NewCoordinateRangeRule())
	cleaner.AddRule(NewPassengerCountRule())
	return cleaner
}

// AddRule appends a rule.
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Check applies every rule to every row and stops at the first violation.
// Row numbers in the returned ValidationError are 1-based for batches and 0
// for single rows.
func (dc *DataCleaner) Check(rows []ml.RawRecord) error {
	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()
	dc.stats.LastClean = time.Now()

	for i, rec := range rows {
		dc.stats.TotalProcessed++
		for _, rule := range dc.rules {
			if err := rule.Apply(rec); err != nil {
				dc.stats.Rejected++
				dc.stats.Issues[rule.Name()]++
				ve, ok := err.(*ml.ValidationError)
				if !ok {
					ve = &ml.ValidationError{Reason: err.Error()}
				}
				if len(rows) > 1 {
					ve.Row = i + 1
				}
				return ve
			}
		}
	}
	return nil
}

// GetStats returns a snapshot of the counters.
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// CoordinateRangeRule rejects latitudes outside [-90, 90] and longitudes
// outside [-180, 180].
type CoordinateRangeRule struct {
	latitudes  []string
	longitudes []string
}

func NewCoordinateRangeRule() *CoordinateRangeRule {
	return &CoordinateRangeRule{
		latitudes:  []string{ml.FieldPickupLatitude, ml.FieldDropoffLatitude},
		longitudes: []string{ml.FieldPickupLongitude, ml.FieldDropoffLongitude},
	}
}

func (r *CoordinateRangeRule) Name() string { return "coordinate_range" }

func (r *CoordinateRangeRule) Apply(rec ml.RawRecord) error {
	check := func(fields []string, limit float64) error {
		for _, field := range fields {
			v, ok := rec[field]
			if !ok {
				continue
			}
			f, ok := v.Number()
			if !ok {
				continue // derivation reports it
			}
			if f < -limit || f > limit {
				return &ml.ValidationError{Field: field, Reason: fmt.Sprintf("%v is outside [-%v, %v]", f, limit, limit)}
			}
		}
		return nil
	}
	if err := check(r.latitudes, 90); err != nil {
		return err
	}
	return check(r.longitudes, 180)
}

// PassengerCountRule rejects negative passenger counts.
type PassengerCountRule struct{}

func NewPassengerCountRule() *PassengerCountRule { return &PassengerCountRule{} }

func (r *PassengerCountRule) Name() string { return "passenger_count" }

func (r *PassengerCountRule) Apply(rec ml.RawRecord) error {
	v, ok := rec[ml.FieldPassengerCount]
	if !ok {
		return nil
	}
	if f, ok := v.Number(); ok && f < 0 {
		return &ml.ValidationError{Field: ml.FieldPassengerCount, Reason: "must not be negative"}
	}
	return nil
}
