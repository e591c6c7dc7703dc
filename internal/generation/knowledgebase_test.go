package generation

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	agtypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgentRuntime struct {
	output *bedrockagentruntime.RetrieveAndGenerateOutput
	err    error
	input  *bedrockagentruntime.RetrieveAndGenerateInput
}

func (f *fakeAgentRuntime) RetrieveAndGenerate(_ context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, _ ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error) {
	f.input = params
	return f.output, f.err
}

func kbOutput(answer string, uris ...string) *bedrockagentruntime.RetrieveAndGenerateOutput {
	out := &bedrockagentruntime.RetrieveAndGenerateOutput{
		Output: &agtypes.RetrieveAndGenerateOutput{Text: aws.String(answer)},
	}
	var refs []agtypes.RetrievedReference
	for _, uri := range uris {
		refs = append(refs, agtypes.RetrievedReference{
			Content:  &agtypes.RetrievalResultContent{Text: aws.String("chunk text")},
			Location: &agtypes.RetrievalResultLocation{S3Location: &agtypes.RetrievalResultS3Location{Uri: aws.String(uri)}},
		})
	}
	if len(refs) > 0 {
		out.Citations = []agtypes.Citation{{RetrievedReferences: refs}}
	}
	return out
}

func TestKnowledgeBaseAdapterGenerate(t *testing.T) {
	client := &fakeAgentRuntime{
		output: kbOutput("휴가는 연 15일입니다.", "s3://docs/hr-guide.md"),
	}
	adapter := NewKnowledgeBaseAdapter(client, KnowledgeBaseConfig{
		KnowledgeBaseID: "KB123",
		ModelARN:        "arn:aws:bedrock:model",
		TokenDelay:      -1,
	}, nil)

	var tokens []string
	result, err := adapter.Generate(context.Background(), Request{SessionID: "s1", Query: "휴가 규정"}, func(token string) {
		tokens = append(tokens, token)
	})
	require.NoError(t, err)
	assert.Equal(t, "휴가는 연 15일입니다.", result.Content)
	assert.Equal(t, result.Content, strings.Join(tokens, ""))
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "hr-guide.md", result.Sources[0].Document)
	assert.Equal(t, "s3://docs/hr-guide.md", result.Sources[0].SourceURI)
	assert.Equal(t, 1.0, result.Sources[0].Score)

	// The request must target the configured knowledge base.
	require.NotNil(t, client.input)
	kbCfg := client.input.RetrieveAndGenerateConfiguration.KnowledgeBaseConfiguration
	assert.Equal(t, "KB123", *kbCfg.KnowledgeBaseId)
	assert.Equal(t, "휴가 규정", *client.input.Input.Text)
}

func TestKnowledgeBaseAdapterRefusal(t *testing.T) {
	client := &fakeAgentRuntime{
		output: kbOutput("Sorry, I am unable to assist you with this request."),
	}
	adapter := NewKnowledgeBaseAdapter(client, KnowledgeBaseConfig{KnowledgeBaseID: "KB123", TokenDelay: -1}, nil)

	var tokens []string
	result, err := adapter.Generate(context.Background(), Request{Query: "q"}, func(token string) {
		tokens = append(tokens, token)
	})
	assert.ErrorIs(t, err, ErrRefused)
	assert.Nil(t, result)
	// Refused answers are never streamed.
	assert.Empty(t, tokens)
}

func TestKnowledgeBaseAdapterThrottled(t *testing.T) {
	client := &fakeAgentRuntime{
		err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
	}
	adapter := NewKnowledgeBaseAdapter(client, KnowledgeBaseConfig{KnowledgeBaseID: "KB123"}, nil)

	_, err := adapter.Generate(context.Background(), Request{Query: "q"}, func(string) {})
	var rateLimited *RateLimitError
	assert.ErrorAs(t, err, &rateLimited)
}
