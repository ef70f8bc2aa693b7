package proxy

import (
	"encoding/json"
	"fmt"

	"github.com/zuul-go/zuul/filters"
)

// sendError is the supplied ERROR filter. It translates the throwable
// recorded in the context into the error response clients observe: the
// error cause header and the versioned status body.
type sendError struct{}

// NewSendError creates the supplied error response filter.
func NewSendError() filters.Filter { return sendError{} }

func (sendError) Name() string { return "sendErrorResponse" }
func (sendError) Kind() string { return filters.ErrorKind }
func (sendError) Order() int   { return 0 }

// ShouldRun declines when there is nothing to handle or another error
// filter already handled the failure.
func (sendError) ShouldRun(ctx *filters.RequestContext) bool {
	return ctx.Throwable() != nil && !ctx.ErrorHandled()
}

func (sendError) Run(ctx *filters.RequestContext) (interface{}, error) {
	ctx.MarkErrorHandled()

	status := 500
	cause := ""
	message := ""

	err := ctx.Throwable()
	if ge, ok := filters.AsGatewayError(err); ok {
		status = ge.StatusCode
		cause = ge.ErrorCause
		message = ge.Message
		headerCause := cause
		if headerCause == "" {
			headerCause = "UNKNOWN"
		}
		ctx.SetGatewayResponseHeader("X-Netflix-Error-Cause", "Zuul Error: "+headerCause)
	} else {
		message = err.Error()
		ctx.SetGatewayResponseHeader("X-Zuul-Error-Cause", "Zuul Error UNKNOWN Cause")
	}

	version := "1"
	format := "xml"
	callback := ""
	override := false

	if r := ctx.Request(); r != nil {
		q := r.URL.Query()
		if v := q.Get("v"); v != "" {
			version = v
		}
		if o := q.Get("output"); o != "" {
			format = o
		}
		callback = q.Get("callback")
		override = q.Get("override_error_status") == "true" || callback != ""
	}

	finalStatus := status
	if override {
		finalStatus = 200
		version = "1"
	}

	var body, contentType string
	switch format {
	case "json":
		contentType = "application/json"
		encoded, _ := json.Marshal(message)
		if version == "1" {
			body = fmt.Sprintf(`{"status": {"message": %s, "status_code": %d}}`, encoded, status)
		} else {
			body = fmt.Sprintf(`{"status": {"message": %s}}`, encoded)
		}
		if callback != "" {
			body = fmt.Sprintf("%s(%s);", callback, body)
		}
	default:
		contentType = "application/xml"
		if version == "1" {
			body = fmt.Sprintf("<status><status_code>%d</status_code><message>%s</message></status>", status, message)
		} else {
			body = fmt.Sprintf("<status><message>%s</message></status>", message)
		}
	}

	ctx.SetGatewayResponseHeader("Content-Type", contentType)
	ctx.SetResponseStatusCode(finalStatus)
	ctx.SetResponseBody([]byte(body))
	return true, nil
}
