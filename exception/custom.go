package exception

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CustomError is the error payload written by the HTTP API.
type CustomError struct {
	Status  int                    `json:"status"`
	Code    string                 `json:"code,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Debug   string                 `json:"debug,omitempty"`
}

func (c CustomError) Error() string {
	msg := c.Message
	for k, v := range c.Params {
		msg = strings.ReplaceAll(msg, "$"+k, fmt.Sprintf("%v", v))
	}
	return msg
}

const MalformedDocument = "MALFORMED_DOCUMENT"
const MalformedDocumentMsg = "Document malformed or not matching documentType"

const ServiceNotFound = "SERVICE_NOT_FOUND"
const ServiceNotFoundMsg = "Validation service for document type $type is not registered"

const ReportMarshalling = "REPORT_MARSHALLING"
const ReportMarshallingMsg = "Failed to serialize validation report to $protocol"

const InternalError = "INTERNAL_ERROR"
const InternalErrorMsg = "Unexpected server error"

const BadRequestBody = "BAD_REQUEST_BODY"
const BadRequestBodyMsg = "Failed to decode body"

const InvalidParameterValue = "INVALID_PARAMETER"
const InvalidParameterValueMsg = "Value '$value' is not allowed for parameter $param"

const InvalidDocumentEncoding = "INVALID_DOCUMENT_ENCODING"
const InvalidDocumentEncodingMsg = "Document is not valid base64"

const ServiceNotReady = "SERVICE_NOT_READY"
const ServiceNotReadyMsg = "Trust anchors are not loaded yet"

const RequiredParamsMissing = "REQUIRED_PARAMS_MISSING"
const RequiredParamsMissingMsg = "Required parameters are missing: $params"

// ToCustomError converts any error into the HTTP error payload.
func ToCustomError(err error) CustomError {
	var custom CustomError
	if errors.As(err, &custom) {
		return custom
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return CustomError{
			Status:  http.StatusInternalServerError,
			Code:    InternalError,
			Message: InternalErrorMsg,
			Debug:   err.Error(),
		}
	}
	result := CustomError{Status: HTTPStatus(ve), Debug: ve.Error()}
	switch ve.Kind {
	case KindMalformedDocument:
		result.Code = MalformedDocument
		result.Message = MalformedDocumentMsg
	case KindServiceNotFound:
		result.Code = ServiceNotFound
		result.Message = ServiceNotFoundMsg
		result.Params = map[string]interface{}{"type": ve.DocumentType}
	case KindReportMarshalling:
		result.Code = ReportMarshalling
		result.Message = ReportMarshallingMsg
		result.Params = map[string]interface{}{"protocol": ve.Protocol}
	default:
		result.Code = InternalError
		result.Message = InternalErrorMsg
	}
	return result
}
