package tinify

import "github.com/jamesainslie/tinysweep/pkg/tinysweep/types"

// Service error codes returned in the "error" field of an upload response.
const (
	CodeUnauthorized        = "Unauthorized"
	CodeInputMissing        = "InputMissing"
	CodeBadSignature        = "BadSignature"
	CodeUnsupportedFile     = "UnsupportedFile"
	CodeDecodeError         = "DecodeError"
	CodeTooManyRequests     = "TooManyRequests"
	CodeInternalServerError = "InternalServerError"
)

const unknownExplanation = "unknown"

var explanations = map[string]string{
	CodeUnauthorized:        "The request was not authorized with a valid API key",
	CodeInputMissing:        "The file that was uploaded is empty or no data was posted",
	CodeBadSignature:        "The file was not recognized as a PNG or JPEG file. It may be corrupted or it is a different file type",
	CodeUnsupportedFile:     "The file was recognized as a PNG or JPEG file, but is not supported",
	CodeDecodeError:         "The file had a valid PNG or JPEG signature, but could not be decoded, most likely corrupt",
	CodeTooManyRequests:     "Your monthly upload limit has been exceeded",
	CodeInternalServerError: "An internal error occurred during compression",
}

// Explain returns the explanation for a service error code, or "unknown".
func Explain(code string) string {
	if text, ok := explanations[code]; ok {
		return text
	}
	return unknownExplanation
}

// ServiceError builds the error reported for a service error code on path.
// Its message reads "<code>: <explanation> for <path>".
func ServiceError(code, path string) *types.Error {
	return &types.Error{
		Kind:    types.KindService,
		Code:    code,
		Path:    path,
		Message: Explain(code),
	}
}
