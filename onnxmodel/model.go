package onnxmodel

import (
	"context"
	"fmt"
	"slices"
)

// Model is a loaded ONNX classifier backed by a session pool. It is safe for
// concurrent use.
type Model struct {
	pool        *SessionPool[*ModelSession]
	inputShape  []int64
	outputWidth int
}

func (m *Model) InputShape() []int64 {
	return slices.Clone(m.inputShape)
}

func (m *Model) OutputWidth() int {
	return m.outputWidth
}

func (m *Model) Predict(ctx context.Context, input []float32) ([]float32, error) {
	session, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}

	if got, want := len(input), len(session.Input.GetData()); got != want {
		m.pool.Release(session)
		return nil, fmt.Errorf("input has %d values, session expects %d", got, want)
	}
	copy(session.Input.GetData(), input)

	if err := session.Session.Run(); err != nil {
		m.pool.Discard(session, err)
		return nil, fmt.Errorf("model inference: %w", err)
	}

	scores := make([]float32, m.outputWidth)
	copy(scores, session.Output.GetData())
	m.pool.Release(session)
	return scores, nil
}

func (m *Model) PoolStats() PoolStats {
	return m.pool.Stats()
}

func (m *Model) Close() error {
	m.pool.Destroy()
	return nil
}
