package unlock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRequest_TrimValidate(t *testing.T) {
	req := Request{DeviceIP: " 10.0.0.5 ", PolicyID: "\tpol-1\n", OrgID: " org ", SupportUser: " jane "}.Trim()

	want := Request{DeviceIP: "10.0.0.5", PolicyID: "pol-1", OrgID: "org", SupportUser: "jane"}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("Trim() (-want +got):\n%s", diff)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	for _, bad := range []Request{
		{},
		{DeviceIP: "10.0.0.5"},
		{PolicyID: "pol-1"},
		Request{DeviceIP: "  ", PolicyID: "pol"}.Trim(),
	} {
		if err := bad.Validate(); !errors.Is(err, ErrMissingFields) {
			t.Errorf("Validate(%+v) = %v", bad, err)
		}
	}
	if ErrMissingFields.Error() != "⚠️ Please fill Device IP and Policy ID." {
		t.Errorf("message = %q", ErrMissingFields.Error())
	}
}

func TestClient_Run(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"success", http.StatusOK, `{"message":"Policy p removed from device d"}`, "✅ Policy p removed from device d"},
		{"not found", http.StatusNotFound, `{"message":"No device found for the provided IP"}`, "❌ No device found for the provided IP"},
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`, "❌ boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Request
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
					t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
				}
				json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			req := Request{DeviceIP: "10.0.0.5", PolicyID: "p", OrgID: "o", SupportUser: "u"}
			out := NewClient(srv.URL+Path, srv.Client()).Run(context.Background(), req)

			if out.Text() != tt.want {
				t.Errorf("Text() = %q, want %q", out.Text(), tt.want)
			}
			if out.Status != tt.status {
				t.Errorf("Status = %d", out.Status)
			}
			if diff := cmp.Diff(req, got); diff != "" {
				t.Errorf("posted body (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClient_RunException(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	out := NewClient(srv.URL, srv.Client()).Run(context.Background(), Request{DeviceIP: "a", PolicyID: "b"})
	if out.Err == nil {
		t.Fatal("expected decode error")
	}
	if got := out.Text(); !strings.HasPrefix(got, "❌ Exception: decode response") {
		t.Errorf("Text() = %q", got)
	}

	srv.Close()
	out = NewClient(srv.URL, nil).Run(context.Background(), Request{DeviceIP: "a", PolicyID: "b"})
	if out.Err == nil || out.OK {
		t.Errorf("expected transport error, got %+v", out)
	}
}

func TestClient_RunCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := NewClient(srv.URL, srv.Client()).Run(ctx, Request{DeviceIP: "a", PolicyID: "b"})
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", out.Err)
	}
}

func TestCurl(t *testing.T) {
	req := Request{DeviceIP: "192.168.10.5", PolicyID: "policy-id"}

	want := `curl -X POST "http://<HOST_OR_PROXY>/api/signageos/unlock" -H "Content-Type: application/json" -d '{"deviceIp":"192.168.10.5","policyId":"policy-id","orgId":"<orgId_optional>","supportUser":"<you>"}'`
	if got := Curl("", req); got != want {
		t.Errorf("Curl() =\n%s\nwant\n%s", got, want)
	}

	got := Curl("https://portal.example.com/", req)
	if !strings.HasPrefix(got, `curl -X POST "https://portal.example.com/api/signageos/unlock"`) {
		t.Errorf("Curl() with base = %s", got)
	}
}
