package ml

import (
	"context"
	"fmt"
	"math"
)

// Regressor is the opaque model capability: one output per matrix row.
type Regressor interface {
	Predict(ctx context.Context, matrix [][]float64) ([]float64, error)
}

// RowRegressor scores a single feature vector.
type RowRegressor interface {
	PredictRow(features []float64) (float64, error)
}

// TargetTransform undoes the target scaling a model was trained with.
type TargetTransform string

const (
	TransformNone  TargetTransform = ""
	TransformExpm1 TargetTransform = "expm1"
)

func (t TargetTransform) apply(y float64) float64 {
	if t == TransformExpm1 {
		return math.Expm1(y)
	}
	return y
}

func (t TargetTransform) valid() bool {
	return t == TransformNone || t == TransformExpm1
}

// rowModel lifts a RowRegressor to a Regressor, checking ctx between rows
// so a cancelled request stops scoring large uploads.
type rowModel struct {
	row       RowRegressor
	transform TargetTransform
}

func (m rowModel) Predict(ctx context.Context, matrix [][]float64) ([]float64, error) {
	out := make([]float64, len(matrix))
	for i, features := range matrix {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		y, err := m.row.PredictRow(features)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		y = m.transform.apply(y)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, fmt.Errorf("row %d: model produced %v", i+1, y)
		}
		out[i] = y
	}
	return out, nil
}
