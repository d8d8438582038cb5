package ml

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stumpNodes(threshold, left, right float64) []TreeNode {
	return []TreeNode{
		{FeatureIdx: 0, Threshold: threshold, LeftChild: 1, RightChild: 2},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: left, IsLeaf: true},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: right, IsLeaf: true},
	}
}

func TestRegressionTreePredict(t *testing.T) {
	tree := &RegressionTree{Nodes: stumpNodes(2.0, 7.5, 15.25)}
	require.NoError(t, tree.validate())

	y, err := tree.PredictRow([]float64{1.0})
	require.NoError(t, err)
	assert.Equal(t, 7.5, y)

	y, err = tree.PredictRow([]float64{2.0})
	require.NoError(t, err)
	assert.Equal(t, 7.5, y)

	y, err = tree.PredictRow([]float64{2.5})
	require.NoError(t, err)
	assert.Equal(t, 15.25, y)

	_, err = tree.PredictRow(nil)
	assert.Error(t, err)
}

func TestRegressionTreeValidate(t *testing.T) {
	assert.Error(t, (&RegressionTree{}).validate())

	looped := &RegressionTree{Nodes: []TreeNode{{FeatureIdx: 0, LeftChild: 0, RightChild: 0}}}
	assert.Error(t, looped.validate())
}

func TestForestAverages(t *testing.T) {
	f := &Forest{Trees: []RegressionTree{
		{Nodes: stumpNodes(1, 10, 20)},
		{Nodes: stumpNodes(1, 30, 40)},
	}}
	y, err := f.PredictRow([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 20.0, y)
}

func TestLinearModelPredict(t *testing.T) {
	lm := &LinearModel{Intercept: 2.5, Coefficients: []float64{2, 0.5}}
	y, err := lm.PredictRow([]float64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, 10.5, y)

	_, err = lm.PredictRow([]float64{3})
	assert.Error(t, err)
}

func TestDecodeModel(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		input   []float64
		want    float64
		wantErr bool
	}{
		{name: "linear", doc: `{"type":"linear","intercept":1,"coefficients":[2]}`, input: []float64{3}, want: 7},
		{name: "tree", doc: `{"type":"tree","nodes":[{"feature_idx":0,"threshold":1,"left_child":1,"right_child":2},{"is_leaf":true,"value":4},{"is_leaf":true,"value":9}]}`, input: []float64{5}, want: 9},
		{name: "expm1", doc: `{"type":"linear","target_transform":"expm1","intercept":0,"coefficients":[1]}`, input: []float64{math.Log1p(250000)}, want: 250000},
		{name: "no type", doc: `{"intercept":1}`, wantErr: true},
		{name: "unknown type", doc: `{"type":"svm"}`, wantErr: true},
		{name: "empty linear", doc: `{"type":"linear"}`, wantErr: true},
		{name: "bad transform", doc: `{"type":"linear","coefficients":[1],"target_transform":"log"}`, wantErr: true},
		{name: "garbage", doc: `\x00\x01`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := DecodeModel([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			out, err := model.Predict(context.Background(), [][]float64{tt.input})
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.InDelta(t, tt.want, out[0], 1e-6)
		})
	}
}

func TestRowModelStopsOnCancel(t *testing.T) {
	model, err := DecodeModel([]byte(`{"type":"linear","coefficients":[1]}`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = model.Predict(ctx, [][]float64{{1}, {2}})
	assert.ErrorIs(t, err, context.Canceled)
}
