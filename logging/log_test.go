package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestCustomOutputForApplicationLog(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{ApplicationLogOutput: &buf})
	msg := "Hello, world!"
	log.Info(msg)
	if !strings.Contains(buf.String(), msg) {
		t.Error("failed to use custom output")
	}
}

func TestCustomPrefixForApplicationLog(t *testing.T) {
	var buf bytes.Buffer
	prefix := "[TEST_PREFIX]"
	Init(Options{
		ApplicationLogOutput: &buf,
		ApplicationLogPrefix: prefix})
	log.Infof("Hello, world!")
	got := buf.String()
	if !strings.HasPrefix(got, "[TEST_PREFIX]") || !strings.Contains(got, "Hello, world!") {
		t.Error("failed to use custom prefix")
	}
}

func TestApplicationLogJSONEnabled(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{ApplicationLogOutput: &buf, ApplicationLogJSONEnabled: true})
	msg := "Hello, world!"
	log.Info(msg)

	parsed := make(map[string]interface{})
	err := json.Unmarshal(buf.Bytes(), &parsed)
	if err != nil {
		t.Errorf("failed to parse json log: %v", err)
	}

	if got := parsed["level"]; got != "info" {
		t.Errorf("invalid level, expected: info, got: %v", got)
	}

	if got := parsed["msg"]; got != msg {
		t.Errorf("invalid msg, expected: %s, got: %v", msg, got)
	}

	if got, ok := parsed["time"]; ok {
		_, err := time.Parse(time.RFC3339, got.(string))
		if err != nil {
			t.Errorf("failed to parse time: %v", err)
		}
	} else {
		t.Error("time is missing")
	}
}

func TestCustomOutputForAccessLog(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{AccessLogOutput: &buf})
	LogAccess(&AccessEntry{StatusCode: http.StatusTeapot}, nil)
	if !strings.Contains(buf.String(), strconv.Itoa(http.StatusTeapot)) {
		t.Error("failed to use custom access log output")
	}
}

func TestAccessLogFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{AccessLogOutput: &buf})

	req := httptest.NewRequest("GET", "http://example.org/foo?x=1", nil)
	req.RemoteAddr = "192.168.0.1:9876"
	req.Header.Set("User-Agent", "curl/8.0")
	LogAccess(&AccessEntry{
		Request:      req,
		StatusCode:   200,
		ResponseSize: 2,
		Duration:     3 * time.Millisecond,
	}, map[string]interface{}{"flow-id": "abc"})

	got := buf.String()
	if !strings.HasPrefix(got, "192.168.0.1 - - [") {
		t.Errorf("unexpected host field: %s", got)
	}
	// httptest keeps the absolute-form target as the request URI
	if !strings.Contains(got, `"GET http://example.org/foo?x=1 HTTP/1.1" 200 2`) {
		t.Errorf("unexpected request line: %s", got)
	}
	if !strings.Contains(got, `"curl/8.0"`) {
		t.Errorf("missing user agent: %s", got)
	}
}

func TestAccessLogJSONEnabled(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{AccessLogOutput: &buf, AccessLogJSONEnabled: true})
	LogAccess(&AccessEntry{StatusCode: 200}, nil)

	parsed := make(map[string]interface{})
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("failed to parse json access log: %v", err)
	}
	if got := parsed["status"]; got != float64(200) {
		t.Errorf("invalid status, got: %v", got)
	}
}
