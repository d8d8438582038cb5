package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// modelArtifact is the on-disk model format.
type modelArtifact struct {
	Type            string           `json:"type"`
	TargetTransform TargetTransform  `json:"target_transform"`
	Intercept       float64          `json:"intercept"`
	Coefficients    []float64        `json:"coefficients"`
	Nodes           []TreeNode       `json:"nodes"`
	Trees           []RegressionTree `json:"trees"`
}

// LoadModel reads a model artifact. Every failure, including an artifact
// that decodes but carries nothing able to predict, is a
// *ModelUnavailableError.
func LoadModel(path string) (Regressor, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, &ModelUnavailableError{Path: path, Err: err}
	}
	model, err := DecodeModel(payload)
	if err != nil {
		return nil, &ModelUnavailableError{Path: path, Err: err}
	}
	return model, nil
}

// DecodeModel builds a Regressor from artifact bytes.
func DecodeModel(payload []byte) (Regressor, error) {
	var a modelArtifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if !a.TargetTransform.valid() {
		return nil, fmt.Errorf("unsupported target transform %q", a.TargetTransform)
	}

	var row RowRegressor
	switch a.Type {
	case "linear":
		if len(a.Coefficients) == 0 {
			return nil, errors.New("linear model has no coefficients")
		}
		row = &LinearModel{Intercept: a.Intercept, Coefficients: a.Coefficients}
	case "tree", "decision_tree":
		tree := &RegressionTree{Nodes: a.Nodes}
		if err := tree.validate(); err != nil {
			return nil, err
		}
		row = tree
	case "forest", "random_forest":
		if len(a.Trees) == 0 {
			return nil, errors.New("forest has no trees")
		}
		for i := range a.Trees {
			if err := a.Trees[i].validate(); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		row = &Forest{Trees: a.Trees}
	case "":
		return nil, errors.New("artifact has no model type, nothing to predict with")
	default:
		return nil, fmt.Errorf("unsupported model type %q", a.Type)
	}
	return rowModel{row: row, transform: a.TargetTransform}, nil
}
