package generation

import (
	"context"
	"fmt"
	"time"
)

// EchoAdapter is the terminal tier: it acknowledges the message without any
// model involvement and never fails.
type EchoAdapter struct {
	// TokenDelay paces the simulated stream.
	TokenDelay time.Duration
}

// NewEchoAdapter creates the echo tier with the default pacing.
func NewEchoAdapter() *EchoAdapter {
	return &EchoAdapter{TokenDelay: 50 * time.Millisecond}
}

func (a *EchoAdapter) Name() string { return "echo" }

func (a *EchoAdapter) Generate(ctx context.Context, req Request, sink TokenSink) (*Result, error) {
	content := fmt.Sprintf("[에코 모드] 메시지를 받았습니다: %s", req.Query)
	streamWords(ctx, content, a.TokenDelay, sink)
	return &Result{Content: content}, nil
}
