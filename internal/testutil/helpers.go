package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// isNilable returns true if the reflect kind can be nil
func isNilable(kind reflect.Kind) bool {
	switch kind {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return true
	}
	return false
}

// AssertNotNil fails the test if v is nil
func AssertNotNil(t *testing.T, v interface{}) {
	t.Helper()
	if v == nil {
		t.Fatal("expected non-nil value, got nil")
		return
	}
	rv := reflect.ValueOf(v)
	if isNilable(rv.Kind()) && rv.IsNil() {
		t.Fatal("expected non-nil value, got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertNotContains fails if s contains substring
func AssertNotContains(t *testing.T, s, substring string) {
	t.Helper()
	if strings.Contains(s, substring) {
		t.Errorf("expected %q to not contain %q", s, substring)
	}
}

// HTTP Test Helpers

// AssertStatusCode fails if the response status code doesn't match expected
func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSONResponse fails if the response is not valid JSON or status doesn't match
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) map[string]interface{} {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}

// AssertJSONContains fails if the JSON response doesn't contain the expected key-value pair
func AssertJSONContains(t *testing.T, w *httptest.ResponseRecorder, key string, expected interface{}) {
	t.Helper()

	var result map[string]interface{}
	body := w.Body.String()
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, body)
	}

	got, ok := result[key]
	if !ok {
		t.Errorf("JSON response missing key %q. Body: %s", key, body)
		return
	}

	if !reflect.DeepEqual(got, expected) {
		t.Errorf("JSON key %q: got %v (%T), want %v (%T)", key, got, got, expected, expected)
	}
}

// AssertJSONError fails if the response doesn't contain an error field with the expected message
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMsg string) {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	body := w.Body.String()
	if !strings.Contains(body, expectedMsg) {
		t.Errorf("expected error message %q in response, got: %s", expectedMsg, body)
	}
}

// AssertHeader fails if the response header doesn't match expected value
func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expected string) {
	t.Helper()
	got := w.Header().Get(key)
	if got != expected {
		t.Errorf("header %q: got %q, want %q", key, got, expected)
	}
}

// Request Helpers

// NewJSONRequest creates a new HTTP request with JSON body
func NewJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeJSON decodes JSON response body into the given struct
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}
