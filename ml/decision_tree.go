package ml

import (
	"errors"
	"fmt"
)

// RegressionTree is a fitted tree stored as a flat node list; node 0 is
// the root.
type RegressionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

func (rt *RegressionTree) PredictRow(features []float64) (float64, error) {
	if len(rt.Nodes) == 0 {
		return 0, errors.New("tree has no nodes")
	}
	idx := 0
	// a valid tree visits each node at most once
	for steps := 0; steps <= len(rt.Nodes); steps++ {
		node := rt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, fmt.Errorf("feature index %d out of range", node.FeatureIdx)
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(rt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("tree contains a cycle")
}

// validate checks the tree shape once at load time.
func (rt *RegressionTree) validate() error {
	if len(rt.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, n := range rt.Nodes {
		if n.IsLeaf {
			continue
		}
		if n.LeftChild <= i || n.LeftChild >= len(rt.Nodes) || n.RightChild <= i || n.RightChild >= len(rt.Nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}

// Forest averages the output of its trees.
type Forest struct {
	Trees []RegressionTree `json:"trees"`
}

func (f *Forest) PredictRow(features []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errors.New("forest has no trees")
	}
	sum := 0.0
	for i := range f.Trees {
		y, err := f.Trees[i].PredictRow(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += y
	}
	return sum / float64(len(f.Trees)), nil
}
