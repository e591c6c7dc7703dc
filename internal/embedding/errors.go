package embedding

import (
	"errors"

	"github.com/aws/smithy-go"
)

func isThrottling(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
		return true
	}
	return false
}
