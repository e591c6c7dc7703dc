package embedding

import "context"

// MockEmbedder returns a fixed vector or a canned error. Intended for tests
// and local development without Bedrock access.
type MockEmbedder struct {
	Vector []float32
	Err    error

	// EmbedFunc, when set, overrides Vector/Err.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}
