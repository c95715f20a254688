package callapi

import (
	"net/http"
	"testing"
)

func TestRequestClone(t *testing.T) {
	orig := &Request{
		Method:      http.MethodPost,
		URL:         "https://api.example.com/users",
		Header:      http.Header{"X-Test": []string{"1"}},
		Body:        map[string]string{"k": "v"},
		body:        []byte(`{"k":"v"}`),
		contentType: "application/json",
	}

	clone := orig.Clone()
	if clone == orig {
		t.Fatal("clone should be a distinct value")
	}
	if clone.Method != orig.Method || clone.URL != orig.URL || clone.contentType != orig.contentType {
		t.Error("scalar fields should copy")
	}

	clone.Header.Set("X-Test", "2")
	if orig.Header.Get("X-Test") != "1" {
		t.Error("header mutation should not leak into the original")
	}

	clone.body[0] = 'X'
	if orig.body[0] != '{' {
		t.Error("body mutation should not leak into the original")
	}

	var nilReq *Request
	if nilReq.Clone() != nil {
		t.Error("nil clone should stay nil")
	}
}

func TestResultOk(t *testing.T) {
	if !(&Result{Data: "x"}).Ok() {
		t.Error("result without error should be ok")
	}
	if (&Result{Error: &Error{Type: ErrorTypeHTTP}}).Ok() {
		t.Error("result with error should not be ok")
	}
	var nilRes *Result
	if nilRes.Ok() {
		t.Error("nil result should not be ok")
	}
}

func TestRoundTripperFunc(t *testing.T) {
	called := false
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK || !called {
		t.Errorf("round trip: resp=%v err=%v called=%v", resp, err, called)
	}
}
