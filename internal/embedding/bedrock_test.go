package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	calls  int
	inputs []*bedrockruntime.InvokeModelInput
	invoke func(call int) (*bedrockruntime.InvokeModelOutput, error)
}

func (f *fakeInvoker) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.calls++
	f.inputs = append(f.inputs, params)
	return f.invoke(f.calls)
}

func embeddingOutput(t *testing.T, vec []float32) *bedrockruntime.InvokeModelOutput {
	t.Helper()
	body, err := json.Marshal(titanResponse{Embedding: vec})
	require.NoError(t, err)
	return &bedrockruntime.InvokeModelOutput{Body: body}
}

func TestEmbedText(t *testing.T) {
	fake := &fakeInvoker{invoke: func(int) (*bedrockruntime.InvokeModelOutput, error) {
		return embeddingOutput(t, []float32{0.1, 0.2, 0.3}), nil
	}}
	e := NewBedrockEmbedder(fake, Config{ModelID: "test-model"}, nil)

	vec, err := e.EmbedText(context.Background(), "연차 규정을 알려줘")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "test-model", *fake.inputs[0].ModelId)
	var req titanRequest
	require.NoError(t, json.Unmarshal(fake.inputs[0].Body, &req))
	assert.Equal(t, "연차 규정을 알려줘", req.InputText)
}

func TestEmbedTextEmptyInput(t *testing.T) {
	fake := &fakeInvoker{invoke: func(int) (*bedrockruntime.InvokeModelOutput, error) {
		t.Fatal("should not be called")
		return nil, nil
	}}
	e := NewBedrockEmbedder(fake, Config{}, nil)

	_, err := e.EmbedText(context.Background(), "")
	require.Error(t, err)
	var embErr *Error
	assert.ErrorAs(t, err, &embErr)
	assert.Equal(t, 0, fake.calls)
}

func TestEmbedTextTruncatesLongInput(t *testing.T) {
	fake := &fakeInvoker{invoke: func(int) (*bedrockruntime.InvokeModelOutput, error) {
		return embeddingOutput(t, []float32{1}), nil
	}}
	e := NewBedrockEmbedder(fake, Config{}, nil)

	_, err := e.EmbedText(context.Background(), strings.Repeat("가", maxInputRunes+500))
	require.NoError(t, err)

	var req titanRequest
	require.NoError(t, json.Unmarshal(fake.inputs[0].Body, &req))
	assert.Len(t, []rune(req.InputText), maxInputRunes)
}

func TestEmbedTextPermanentErrorNoRetry(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "ValidationException", Message: "bad model"}
	fake := &fakeInvoker{invoke: func(int) (*bedrockruntime.InvokeModelOutput, error) {
		return nil, apiErr
	}}
	e := NewBedrockEmbedder(fake, Config{MaxRetries: 3}, nil)

	_, err := e.EmbedText(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, apiErr)
	// Validation failures are permanent, so no retries happen.
	assert.Equal(t, 1, fake.calls)
}

func TestEmbedTextRetriesThrottling(t *testing.T) {
	fake := &fakeInvoker{invoke: func(call int) (*bedrockruntime.InvokeModelOutput, error) {
		if call == 1 {
			return nil, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
		}
		return embeddingOutput(t, []float32{1, 2}), nil
	}}
	e := NewBedrockEmbedder(fake, Config{MaxRetries: 3}, nil)

	vec, err := e.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, 2, fake.calls)
}

func TestEmbedTextEmptyEmbedding(t *testing.T) {
	fake := &fakeInvoker{invoke: func(int) (*bedrockruntime.InvokeModelOutput, error) {
		return embeddingOutput(t, nil), nil
	}}
	e := NewBedrockEmbedder(fake, Config{}, nil)

	_, err := e.EmbedText(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embedding")
	assert.Equal(t, 1, fake.calls)
}

func TestIsThrottling(t *testing.T) {
	assert.True(t, isThrottling(&smithy.GenericAPIError{Code: "ThrottlingException"}))
	assert.True(t, isThrottling(&smithy.GenericAPIError{Code: "TooManyRequestsException"}))
	assert.False(t, isThrottling(&smithy.GenericAPIError{Code: "AccessDeniedException"}))
	assert.False(t, isThrottling(errors.New("plain error")))
}
