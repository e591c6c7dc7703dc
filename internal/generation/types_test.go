package generation

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestIsRefusal(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"plain refusal", "Sorry, I am unable to assist you with this request.", true},
		{"leading whitespace", "  sorry, i am unable to help", true},
		{"mixed case", "SORRY, I AM UNABLE to answer", true},
		{"normal answer", "휴가는 연 15일입니다.", false},
		{"refusal mid-sentence", "He said sorry, I am unable...", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRefusal(tt.content))
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want interface{}
	}{
		{
			name: "throttling",
			err:  &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
			want: &RateLimitError{},
		},
		{
			name: "validation",
			err:  &smithy.GenericAPIError{Code: "ValidationException", Message: "bad input"},
			want: &InvocationError{},
		},
		{
			name: "access denied",
			err:  &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"},
			want: &InvocationError{},
		},
		{
			name: "transport failure",
			err:  errors.New("dial tcp: connection refused"),
			want: &ConnectionError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			switch tt.want.(type) {
			case *RateLimitError:
				var target *RateLimitError
				assert.ErrorAs(t, got, &target)
			case *InvocationError:
				var target *InvocationError
				assert.ErrorAs(t, got, &target)
			case *ConnectionError:
				var target *ConnectionError
				assert.ErrorAs(t, got, &target)
			}
			assert.ErrorIs(t, got, tt.err)
		})
	}
}
