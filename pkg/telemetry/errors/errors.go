package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

var ErrTransport = fmt.Errorf("transport error")
var ErrProtocolMismatch = fmt.Errorf("protocol mismatch")
var ErrTypeMismatch = fmt.Errorf("type mismatch")
var ErrTimeout = fmt.Errorf("timeout")
var ErrMissingProperty = fmt.Errorf("missing property")

var ErrBadRequest = fmt.Errorf("bad request")
var ErrInternal = fmt.Errorf("internal error")
var ErrNotFound = fmt.Errorf("not found")
var ErrUnknownInterface = fmt.Errorf("unknown interface")
var ErrSessionClosed = fmt.Errorf("session closed")
var ErrUnauthorized = fmt.Errorf("unauthorized")

// Is and As forward to the standard library so that callers only need to
// import this package.
func Is(err, target error) bool { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }

type myError struct {
	msg    string
	target error
}

func (m myError) Error() string        { return m.msg }
func (m myError) Is(target error) bool { return target == m.target }

func NewBadRequestError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrBadRequest,
	}
}

func NewNotFoundError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrNotFound,
	}
}

func NewUnknownInterfaceError(interfaceName string) error {
	return &myError{
		msg:    fmt.Sprintf("unknown interface %q", interfaceName),
		target: ErrUnknownInterface,
	}
}

func NewTypeMismatchError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrTypeMismatch,
	}
}

func NewUnauthorizedError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrUnauthorized,
	}
}

// ValidationError describes the first failed step of a validation run.
type ValidationError struct {
	Kind      error
	Op        string
	Interface string
	Path      string
	Expected  string
	Observed  string
	Err       error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s %s%s", e.Kind, e.Op, e.Interface, e.Path)

	if e.Expected != "" || e.Observed != "" {
		msg += fmt.Sprintf(" (expected %s, observed %s)", e.Expected, e.Observed)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ValidationError) Is(target error) bool { return target == e.Kind }
func (e *ValidationError) Unwrap() error        { return e.Err }

func NewTransportError(op, interfaceName, path string, err error) *ValidationError {
	return &ValidationError{Kind: ErrTransport, Op: op, Interface: interfaceName, Path: path, Err: err}
}

func NewTimeoutError(op, interfaceName, path string, err error) *ValidationError {
	return &ValidationError{Kind: ErrTimeout, Op: op, Interface: interfaceName, Path: path, Err: err}
}

func NewProtocolMismatchError(op, interfaceName, path, expected, observed string) *ValidationError {
	return &ValidationError{Kind: ErrProtocolMismatch, Op: op, Interface: interfaceName, Path: path, Expected: expected, Observed: observed}
}

func NewValueMismatchError(op, interfaceName, path, expected, observed string) *ValidationError {
	return &ValidationError{Kind: ErrTypeMismatch, Op: op, Interface: interfaceName, Path: path, Expected: expected, Observed: observed}
}

// NewClassificationMismatchError reports an event whose data is individual,
// object or unset when another classification was due.
func NewClassificationMismatchError(op, interfaceName, path, expected, observed string) *ValidationError {
	return &ValidationError{Kind: ErrTypeMismatch, Op: op, Interface: interfaceName, Path: path, Expected: expected, Observed: observed}
}

func NewMissingPropertyError(op, interfaceName, path, expected string) *ValidationError {
	return &ValidationError{Kind: ErrMissingProperty, Op: op, Interface: interfaceName, Path: path, Expected: expected, Observed: "nothing"}
}

const (
	ProblemTypeBadRequest       string = "https://diwise.io/telemetry/errors/BadRequestData"
	ProblemTypeNotFound         string = "https://diwise.io/telemetry/errors/ResourceNotFound"
	ProblemTypeUnknownInterface string = "https://diwise.io/telemetry/errors/UnknownInterface"
	ProblemTypeTypeMismatch     string = "https://diwise.io/telemetry/errors/TypeMismatch"
	ProblemTypeUnauthorized     string = "https://diwise.io/telemetry/errors/UnauthorizedRequest"
	ProblemTypeInternal         string = "https://diwise.io/telemetry/errors/InternalError"

	//ProblemReportContentType as required by https://tools.ietf.org/html/rfc7807
	ProblemReportContentType string = "application/problem+json"
)

func NewErrorFromProblemReport(code int, contentType string, body []byte) error {
	report := &struct {
		Type   string `json:"type"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}{}

	err := json.Unmarshal(body, report)
	if err != nil {
		return fmt.Errorf("failed to process problem report (code %d, content-type %s): %s (%w)", code, contentType, err.Error(), ErrTransport)
	}

	switch report.Type {
	case ProblemTypeBadRequest:
		return NewBadRequestError(report.Detail)
	case ProblemTypeUnknownInterface:
		return &myError{msg: report.Detail, target: ErrUnknownInterface}
	case ProblemTypeTypeMismatch:
		return NewTypeMismatchError(report.Detail)
	case ProblemTypeUnauthorized:
		return NewUnauthorizedError(report.Detail)
	}

	if code == http.StatusNotFound || report.Type == ProblemTypeNotFound {
		return NewNotFoundError(report.Detail)
	}

	return &myError{
		msg:    fmt.Sprintf("[code: %d] unknown problem report of type \"%s\" with detail \"%s\" received", code, report.Type, report.Detail),
		target: ErrInternal,
	}
}

//ProblemDetails stores details about a certain problem according to RFC7807
type ProblemDetails struct {
	typ     string
	title   string
	detail  string
	code    int
	traceID string
}

func NewBadRequestData(detail, traceID string) *ProblemDetails {
	return &ProblemDetails{ProblemTypeBadRequest, "Bad Request Data", detail, http.StatusBadRequest, traceID}
}

func NewNotFound(detail, traceID string) *ProblemDetails {
	return &ProblemDetails{ProblemTypeNotFound, "Not Found", detail, http.StatusNotFound, traceID}
}

func NewUnknownInterface(detail, traceID string) *ProblemDetails {
	return &ProblemDetails{ProblemTypeUnknownInterface, "Unknown Interface", detail, http.StatusNotFound, traceID}
}

func NewTypeMismatch(detail, traceID string) *ProblemDetails {
	return &ProblemDetails{ProblemTypeTypeMismatch, "Type Mismatch", detail, http.StatusUnprocessableEntity, traceID}
}

func NewUnauthorizedRequest(detail, traceID string) *ProblemDetails {
	return &ProblemDetails{ProblemTypeUnauthorized, "Unauthorized Request", detail, http.StatusUnauthorized, traceID}
}

func NewInternalError(detail, traceID string) *ProblemDetails {
	return &ProblemDetails{ProblemTypeInternal, "Internal Error", detail, http.StatusInternalServerError, traceID}
}

// ProblemFromError maps an error onto the problem report that describes it.
func ProblemFromError(err error, traceID string) *ProblemDetails {
	switch {
	case stderrors.Is(err, ErrBadRequest):
		return NewBadRequestData(err.Error(), traceID)
	case stderrors.Is(err, ErrUnknownInterface):
		return NewUnknownInterface(err.Error(), traceID)
	case stderrors.Is(err, ErrTypeMismatch):
		return NewTypeMismatch(err.Error(), traceID)
	case stderrors.Is(err, ErrNotFound):
		return NewNotFound(err.Error(), traceID)
	case stderrors.Is(err, ErrUnauthorized):
		return NewUnauthorizedRequest(err.Error(), traceID)
	}
	return NewInternalError(err.Error(), traceID)
}

func (p *ProblemDetails) Type() string   { return p.typ }
func (p *ProblemDetails) Title() string  { return p.title }
func (p *ProblemDetails) Detail() string { return p.detail }

//ResponseCode returns the HTTP response code to be used when returning a specific problem
func (p *ProblemDetails) ResponseCode() int {
	if p.code != 0 {
		return p.code
	}

	return http.StatusBadRequest
}

func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	var traceID *string

	if p.traceID != "" {
		traceID = &p.traceID
	}

	return json.Marshal(struct {
		Type    string  `json:"type"`
		Title   string  `json:"title"`
		Detail  string  `json:"detail"`
		TraceID *string `json:"traceID,omitempty"`
	}{
		Type:    p.typ,
		Title:   p.title,
		Detail:  p.detail,
		TraceID: traceID,
	})
}

//WriteResponse writes the contents of this instance to a http.ResponseWriter
func (p *ProblemDetails) WriteResponse(w http.ResponseWriter) {
	w.Header().Add("Content-Type", ProblemReportContentType)
	w.Header().Add("Content-Language", "en")
	w.WriteHeader(p.ResponseCode())

	pdbytes, err := json.MarshalIndent(p, "", "  ")
	if err == nil {
		w.Write(pdbytes)
	}
}
