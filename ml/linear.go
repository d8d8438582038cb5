package ml

import "fmt"

// LinearModel is y = intercept + sum(coefficients[i] * x[i]).
type LinearModel struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func (lm *LinearModel) PredictRow(features []float64) (float64, error) {
	if len(features) != len(lm.Coefficients) {
		return 0, fmt.Errorf("expected %d features, got %d", len(lm.Coefficients), len(features))
	}
	y := lm.Intercept
	for i, c := range lm.Coefficients {
		y += c * features[i]
	}
	return y, nil
}
