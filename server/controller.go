package server

import (
	"encoding/base64"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/huyen-pk/SiVa/document"
	"github.com/huyen-pk/SiVa/exception"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

// ValidationRequest is the body of POST /validate.
type ValidationRequest struct {
	// Document is the base64 encoded container.
	Document     string `json:"document"`
	Filename     string `json:"filename"`
	DocumentType string `json:"documentType"`
	// ReportType selects JSON or XML. When empty the Accept header decides.
	ReportType string `json:"reportType,omitempty"`
}

func (r *ValidationRequest) missingParams() []string {
	var missing []string
	if r.Document == "" {
		missing = append(missing, "document")
	}
	if strings.TrimSpace(r.Filename) == "" {
		missing = append(missing, "filename")
	}
	if strings.TrimSpace(r.DocumentType) == "" {
		missing = append(missing, "documentType")
	}
	return missing
}

// Validate handles POST /validate.
func (s *Server) Validate(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxRequestBytes)
	}
	var req ValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithCustomError(w, exception.CustomError{
			Status:  http.StatusBadRequest,
			Code:    exception.BadRequestBody,
			Message: exception.BadRequestBodyMsg,
			Debug:   err.Error(),
		})
		return
	}

	if missing := req.missingParams(); len(missing) > 0 {
		RespondWithCustomError(w, exception.CustomError{
			Status:  http.StatusBadRequest,
			Code:    exception.RequiredParamsMissing,
			Message: exception.RequiredParamsMissingMsg,
			Params:  map[string]interface{}{"params": strings.Join(missing, ", ")},
		})
		return
	}

	docType, err := document.ParseDocumentType(req.DocumentType)
	if err != nil {
		RespondWithCustomError(w, invalidParameter("documentType", req.DocumentType, err))
		return
	}

	protocol, err := reportProtocol(req.ReportType, r.Header.Get("Accept"))
	if err != nil {
		RespondWithCustomError(w, invalidParameter("reportType", req.ReportType, err))
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.Document)
	if err != nil {
		RespondWithCustomError(w, exception.CustomError{
			Status:  http.StatusBadRequest,
			Code:    exception.InvalidDocumentEncoding,
			Message: exception.InvalidDocumentEncodingMsg,
			Debug:   err.Error(),
		})
		return
	}

	if !s.ready.Load() {
		RespondWithCustomError(w, exception.CustomError{
			Status:  http.StatusServiceUnavailable,
			Code:    exception.ServiceNotReady,
			Message: exception.ServiceNotReadyMsg,
		})
		return
	}

	name := norm.NFC.String(strings.TrimSpace(req.Filename))
	log.WithFields(log.Fields{
		"requestId":    RequestID(r.Context()),
		"document":     name,
		"documentType": docType,
		"size":         len(content),
	}).Debug("Validating document")

	result, err := s.validator.Validate(&document.ProxyDocument{
		Name:            name,
		Bytes:           content,
		DocumentType:    docType,
		RequestProtocol: protocol,
	})
	if err != nil {
		respondWithError(w, "Failed to validate document "+name, err)
		return
	}

	if protocol == document.XML {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(result))
}

// HandleLiveRequest handles GET /live.
func (s *Server) HandleLiveRequest(w http.ResponseWriter, r *http.Request) {
	respondWithJson(w, http.StatusOK, map[string]string{"status": "UP"})
}

// HandleReadyRequest handles GET /ready.
func (s *Server) HandleReadyRequest(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		respondWithJson(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
		return
	}
	respondWithJson(w, http.StatusOK, map[string]string{"status": "UP"})
}

// reportProtocol picks the report format from the explicit report type, then
// from the first JSON or XML media type of accept.
func reportProtocol(reportType, accept string) (document.RequestProtocol, error) {
	if reportType != "" {
		return document.ParseRequestProtocol(reportType)
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mediaType {
		case "application/json":
			return document.JSON, nil
		case "application/xml", "text/xml":
			return document.XML, nil
		}
	}
	return document.JSON, nil
}

func invalidParameter(param, value string, err error) exception.CustomError {
	return exception.CustomError{
		Status:  http.StatusBadRequest,
		Code:    exception.InvalidParameterValue,
		Message: exception.InvalidParameterValueMsg,
		Params:  map[string]interface{}{"param": param, "value": value},
		Debug:   err.Error(),
	}
}

func respondWithError(w http.ResponseWriter, msg string, err error) {
	customErr := exception.ToCustomError(err)
	if customErr.Status >= http.StatusInternalServerError {
		log.Errorf("%s: %v", msg, err)
		// Internal causes stay in the log.
		customErr.Debug = ""
	} else {
		log.Debugf("%s: %v", msg, err)
	}
	RespondWithCustomError(w, customErr)
}

// RespondWithCustomError writes err as the JSON error payload with its
// message parameters substituted.
func RespondWithCustomError(w http.ResponseWriter, err exception.CustomError) {
	err.Message = err.Error()
	respondWithJson(w, err.Status, err)
}

func respondWithJson(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Failed to encode response: %v", err)
		code = http.StatusInternalServerError
		response = []byte(`{"status":500,"code":"` + exception.InternalError + `"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
