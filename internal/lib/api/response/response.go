package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Response is the common envelope: code 0 means success, anything else is a
// business error code from the taxonomy below.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

const (
	CodeOK = 0

	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeInternal     = 500

	// sendCode failures
	CodeInvalidEmailFormat = 1001
	CodeEmailRegistered    = 1002
	CodeEmailNotRegistered = 1003
	CodeRateLimited        = 1004
	CodeDailyLimit         = 1005
	CodeSendFailed         = 1500

	// verifyCode failures
	CodeMismatch         = 2001
	CodeExpiredOrMissing = 2002
	CodeTooManyTries     = 2003
	CodeVerifyFailed     = 2004
)

func OK() Response {
	return Response{Code: CodeOK, Message: "ok"}
}

func Error(code int, msg string) Response {
	return Response{Code: code, Message: msg}
}

func ValidationError(code int, errs validator.ValidationErrors) Response {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is required", err.Field()))
		case "email":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not a valid email", err.Field()))
		case "min":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is too short", err.Field()))
		case "oneof":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s has an unsupported value", err.Field()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is invalid", err.Field()))
		}
	}

	return Response{
		Code:    code,
		Message: strings.Join(errMsgs, ", "),
	}
}
