// Package logging initializes the application and access logging of the
// gateway on top of logrus.
package logging

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const dateFormat = "02/Jan/2006:15:04:05 -0700"

// Options for initializing the logging subsystem.
type Options struct {
	// ApplicationLogPrefix is prepended to every application log line.
	ApplicationLogPrefix string

	// ApplicationLogOutput redirects the application log, default stderr.
	ApplicationLogOutput io.Writer

	// ApplicationLogJSONEnabled switches the application log to JSON.
	ApplicationLogJSONEnabled bool

	// AccessLogOutput redirects the access log, default stderr. Init
	// always enables the access log; callers suppress it by not calling
	// LogAccess.
	AccessLogOutput io.Writer

	// AccessLogJSONEnabled switches the access log to JSON.
	AccessLogJSONEnabled bool
}

type prefixFormatter struct {
	prefix    string
	formatter log.Formatter
}

func (f *prefixFormatter) Format(e *log.Entry) ([]byte, error) {
	b, err := f.formatter.Format(e)
	if err != nil {
		return nil, err
	}
	return append([]byte(f.prefix), b...), nil
}

var accessLog *log.Logger

// Init the logging subsystem.
func Init(o Options) {
	if o.ApplicationLogJSONEnabled {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	} else if o.ApplicationLogPrefix != "" {
		log.SetFormatter(&prefixFormatter{o.ApplicationLogPrefix, &log.TextFormatter{DisableColors: true}})
	}

	if o.ApplicationLogOutput != nil {
		log.SetOutput(o.ApplicationLogOutput)
	}

	accessLog = log.New()
	if o.AccessLogOutput != nil {
		accessLog.Out = o.AccessLogOutput
	}
	if o.AccessLogJSONEnabled {
		accessLog.Formatter = &log.JSONFormatter{TimestampFormat: time.RFC3339}
	} else {
		accessLog.Formatter = &accessLogFormatter{}
	}
	accessLog.Level = log.InfoLevel
}

// AccessEntry represents one access log line.
type AccessEntry struct {

	// Request of the entry.
	Request *http.Request

	// StatusCode of the response.
	StatusCode int

	// ResponseSize of the written body.
	ResponseSize int64

	// RequestTime when the request entered the pipeline.
	RequestTime time.Time

	// Duration of the full pipeline run.
	Duration time.Duration
}

type accessLogFormatter struct{}

func (accessLogFormatter) Format(e *log.Entry) ([]byte, error) {
	keys := []string{
		"host", "timestamp", "method", "uri", "proto",
		"status", "response-size", "referer", "user-agent", "duration",
	}

	values := make([]interface{}, len(keys))
	for i, key := range keys {
		if value, ok := e.Data[key]; ok {
			values[i] = value
		} else {
			values[i] = "-"
		}
	}

	return []byte(fmt.Sprintf("%s - - [%s] \"%s %s %s\" %v %v \"%s\" \"%s\" %vms\n", values...)), nil
}

func stripPort(hostport string) string {
	if i := strings.LastIndex(hostport, ":"); i >= 0 {
		return hostport[:i]
	}
	return hostport
}

// LogAccess writes one entry to the access log, enriched with the
// additional fields. A nil entry or an uninitialized access log is a noop.
func LogAccess(entry *AccessEntry, additional map[string]interface{}) {
	if entry == nil || accessLog == nil {
		return
	}

	host := "-"
	method := "-"
	uri := "-"
	proto := "-"
	referer := "-"
	userAgent := "-"

	if entry.Request != nil {
		host = stripPort(entry.Request.RemoteAddr)
		method = entry.Request.Method
		uri = entry.Request.RequestURI
		if uri == "" && entry.Request.URL != nil {
			uri = entry.Request.URL.RequestURI()
		}
		proto = entry.Request.Proto
		referer = entry.Request.Referer()
		userAgent = entry.Request.UserAgent()
	}

	ts := entry.RequestTime
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := log.Fields{
		"host":          host,
		"timestamp":     ts.Format(dateFormat),
		"method":        method,
		"uri":           uri,
		"proto":         proto,
		"status":        entry.StatusCode,
		"response-size": entry.ResponseSize,
		"referer":       referer,
		"user-agent":    userAgent,
		"duration":      entry.Duration.Milliseconds(),
	}
	for k, v := range additional {
		fields[k] = v
	}

	accessLog.WithFields(fields).Info()
}
