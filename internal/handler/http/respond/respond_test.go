package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestJSON(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		data     any
		wantBody string
	}{
		{name: "accepted notification", code: http.StatusAccepted, data: map[string]string{"notificationId": "n-1", "status": "PENDING"}, wantBody: `{"notificationId":"n-1","status":"PENDING"}`},
		{name: "empty list", code: http.StatusOK, data: []string{}, wantBody: `[]`},
		{name: "nil body", code: http.StatusNoContent, data: nil, wantBody: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			JSON(w, tt.code, tt.data)

			if w.Code != tt.code {
				t.Errorf("code = %d, want %d", w.Code, tt.code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if got := strings.TrimSpace(w.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestJSON_EncodingErrorKeepsStatus(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]float64{"bad": math.Inf(1)})
	if w.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", w.Code)
	}
}

func TestError_WritesMessageVerbatim(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusBadRequest, errors.New("userId is required"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d", w.Code)
	}
	if body := decodeBody(t, w); body.Error != "userId is required" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestSafeError(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		err      error
		wantCode int
		wantMsg  string
	}{
		{name: "required field", code: http.StatusBadRequest, err: errors.New("to is required"), wantCode: 400, wantMsg: "to is required"},
		{name: "invalid value", code: http.StatusBadRequest, err: errors.New("invalid platform: BLACKBERRY"), wantCode: 400, wantMsg: "invalid platform: BLACKBERRY"},
		{name: "not found", code: http.StatusNotFound, err: errors.New("notification not found"), wantCode: 404, wantMsg: "notification not found"},
		{name: "duplicate event", code: http.StatusConflict, err: errors.New("event evt-1 already processed"), wantCode: 409, wantMsg: "event evt-1 already processed"},
		{name: "batch size", code: http.StatusBadRequest, err: errors.New("validation error on field 'requests': must contain at most 100 emails"), wantCode: 400, wantMsg: "validation error on field 'requests': must contain at most 100 emails"},
		{name: "no devices", code: http.StatusNotFound, err: errors.New("no active device tokens for user u-1"), wantCode: 404, wantMsg: "no active device tokens for user u-1"},
		{name: "wrapped safe message", code: http.StatusBadRequest, err: fmt.Errorf("register: %w", errors.New("token is required")), wantCode: 400, wantMsg: "register: token is required"},
		{name: "driver error hidden", code: http.StatusBadRequest, err: errors.New("mongo: connection pool cleared"), wantCode: 400, wantMsg: "internal server error"},
		{name: "5xx always hidden", code: http.StatusInternalServerError, err: errors.New("field subject is required"), wantCode: 500, wantMsg: "internal server error"},
		{name: "dsn never leaks", code: http.StatusServiceUnavailable, err: errors.New("dial postgres://audit:s3cret@db:5432/audit failed"), wantCode: 503, wantMsg: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SafeError(w, tt.code, tt.err)

			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", w.Code, tt.wantCode)
			}
			body := decodeBody(t, w)
			if body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
			if strings.Contains(w.Body.String(), "s3cret") {
				t.Error("response leaked a credential")
			}
		})
	}
}

func TestSafeError_NilWritesNothing(t *testing.T) {
	w := httptest.NewRecorder()
	SafeError(w, http.StatusBadRequest, nil)
	SafeErrorV2(w, http.StatusBadRequest, nil)
	if w.Body.Len() != 0 {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestAppError(t *testing.T) {
	cause := errors.New("smtp: 421 service not available")
	appErr := NewAppError(http.StatusServiceUnavailable, "Email delivery failed", cause).WithCode("PROVIDER_UNAVAILABLE")

	if appErr.Error() != cause.Error() {
		t.Errorf("Error() = %q", appErr.Error())
	}
	if !errors.Is(appErr, cause) {
		t.Error("AppError should unwrap to its cause")
	}
	if appErr.ErrorCode != "PROVIDER_UNAVAILABLE" {
		t.Errorf("ErrorCode = %q", appErr.ErrorCode)
	}

	bare := NewAppError(http.StatusBadRequest, "bad request", nil)
	if bare.Error() != "bad request" {
		t.Errorf("Error() without cause = %q", bare.Error())
	}
}

func TestSafeErrorV2(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		err      error
		wantCode int
		wantBody ErrorBody
	}{
		{
			name:     "app error uses its own status and code",
			code:     http.StatusInternalServerError,
			err:      NewAppError(http.StatusServiceUnavailable, "No email provider is available", errors.New("selector: all providers unavailable")).WithCode("PROVIDER_UNAVAILABLE"),
			wantCode: http.StatusServiceUnavailable,
			wantBody: ErrorBody{Error: "No email provider is available", Code: "PROVIDER_UNAVAILABLE"},
		},
		{
			name:     "wrapped app error",
			code:     http.StatusInternalServerError,
			err:      fmt.Errorf("send: %w", NewAppError(http.StatusBadRequest, "invalid device token", nil)),
			wantCode: http.StatusBadRequest,
			wantBody: ErrorBody{Error: "invalid device token"},
		},
		{
			name:     "plain error falls back to SafeError",
			code:     http.StatusInternalServerError,
			err:      errors.New("redis: i/o timeout"),
			wantCode: http.StatusInternalServerError,
			wantBody: ErrorBody{Error: "internal server error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SafeErrorV2(w, tt.code, tt.err)

			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", w.Code, tt.wantCode)
			}
			if body := decodeBody(t, w); body != tt.wantBody {
				t.Errorf("body = %+v, want %+v", body, tt.wantBody)
			}
		})
	}
}
