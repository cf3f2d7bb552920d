package modelregistry

import (
	"encoding/json"
	"math"

	pkgerrors "github.com/pkg/errors"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
)

// Artifact is the serialized form of a pairwise model as served by the
// model store
type Artifact struct {
	Name          string             `json:"name"`
	Version       string             `json:"version"`
	Bias          float64            `json:"bias"`
	Weights       map[string]float64 `json:"weights"`
	DefaultWeight float64            `json:"default_weight"`
}

// PairwiseModel scores a pair from its per-field similarity features using
// a logistic combination. Immutable after load, safe for concurrent use.
type PairwiseModel struct {
	name          string
	version       string
	bias          float64
	weights       map[string]float64
	defaultWeight float64
}

// LoadModel parses and validates a model artifact
func LoadModel(name string, raw []byte) (*PairwiseModel, error) {
	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, sageerrors.NewModelLoad(name, err)
	}
	if artifact.Version == "" {
		return nil, sageerrors.NewModelLoad(name, pkgerrors.New("artifact has no version"))
	}
	if len(artifact.Weights) == 0 {
		return nil, sageerrors.NewModelLoad(name, pkgerrors.New("artifact has no weights"))
	}

	weights := make(map[string]float64, len(artifact.Weights))
	for field, w := range artifact.Weights {
		weights[field] = w
	}

	return &PairwiseModel{
		name:          name,
		version:       artifact.Version,
		bias:          artifact.Bias,
		weights:       weights,
		defaultWeight: artifact.DefaultWeight,
	}, nil
}

// Name returns the registered model name
func (m *PairwiseModel) Name() string {
	return m.name
}

// Version returns the loaded artifact version
func (m *PairwiseModel) Version() string {
	return m.version
}

// Score maps a feature vector to a confidence in (0, 1)
func (m *PairwiseModel) Score(features map[string]float64) float64 {
	z := m.bias
	for field, value := range features {
		weight, ok := m.weights[field]
		if !ok {
			weight = m.defaultWeight
		}
		z += weight * value
	}
	return 1.0 / (1.0 + math.Exp(-z))
}
