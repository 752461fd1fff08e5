package signageos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves /devices from a fixed list, paginated by limit/offset,
// and records policy removals.
type fakeAPI struct {
	devices      []any
	wrap         string
	deleteStatus int
	deleteBody   string

	mu      sync.Mutex
	pages   []int
	deleted []string
	headers http.Header
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.headers = r.Header.Clone()
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/devices":
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		f.mu.Lock()
		f.pages = append(f.pages, offset)
		f.mu.Unlock()

		end := min(offset+limit, len(f.devices))
		page := []any{}
		if offset < len(f.devices) {
			page = f.devices[offset:end]
		}
		var body any = page
		if f.wrap != "" {
			body = map[string]any{f.wrap: page}
		}
		json.NewEncoder(w).Encode(body)

	case r.Method == http.MethodDelete:
		f.mu.Lock()
		f.deleted = append(f.deleted, r.URL.Path)
		f.mu.Unlock()
		status := f.deleteStatus
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
		w.Write([]byte(f.deleteBody))

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, api http.Handler, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL + "/"
	if cfg.XAuth == "" && cfg.APIKey == "" {
		cfg.XAuth = "id:secret"
	}
	c, err := NewClient(cfg, srv.Client())
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.ErrorIs(t, err, ErrNoCredentials)

	c, err := NewClient(Config{APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.cfg.BaseURL)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
}

func TestClient_AuthHeaders(t *testing.T) {
	api := &fakeAPI{}

	c := newTestClient(t, api, Config{XAuth: "id:secret", APIKey: "ignored"})
	_, err := c.FindDeviceByIP(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "id:secret", api.headers.Get("X-Auth"))
	assert.Empty(t, api.headers.Get("Authorization"))

	c = newTestClient(t, api, Config{APIKey: "tok"})
	_, err = c.FindDeviceByIP(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", api.headers.Get("Authorization"))
	assert.Empty(t, api.headers.Get("X-Auth"))
}

func TestClient_FindDeviceByIP_Paginates(t *testing.T) {
	api := &fakeAPI{}
	for i := 0; i < 5; i++ {
		api.devices = append(api.devices, map[string]any{"id": fmt.Sprintf("d%d", i), "ip": fmt.Sprintf("10.0.0.%d", i)})
	}
	c := newTestClient(t, api, Config{PageSize: 2})

	dev, err := c.FindDeviceByIP(context.Background(), "10.0.0.4")
	require.NoError(t, err)
	require.NotNil(t, dev)
	assert.Equal(t, "d4", DeviceID(dev))
	assert.Equal(t, []int{0, 2, 4}, api.pages)

	api.pages = nil
	dev, err = c.FindDeviceByIP(context.Background(), "10.9.9.9")
	require.NoError(t, err)
	assert.Nil(t, dev)
	assert.Equal(t, []int{0, 2, 4}, api.pages, "a short page ends the scan")
}

func TestClient_FindDeviceByIP_Shapes(t *testing.T) {
	for _, wrap := range []string{"", "items", "data", "devices"} {
		t.Run("wrap="+wrap, func(t *testing.T) {
			api := &fakeAPI{wrap: wrap, devices: []any{
				"not an object",
				map[string]any{"uid": "u1", "lastKnownIp": " 192.168.1.7 "},
			}}
			c := newTestClient(t, api, Config{})

			dev, err := c.FindDeviceByIP(context.Background(), "192.168.1.7")
			require.NoError(t, err)
			require.NotNil(t, dev)
			assert.Equal(t, "u1", DeviceID(dev))
		})
	}
}

func TestMatchesIP(t *testing.T) {
	const ip = "172.16.0.9"
	tests := []struct {
		name string
		dev  map[string]any
		want bool
	}{
		{"simple key", map[string]any{"publicIp": ip}, true},
		{"ipAddress", map[string]any{"ipAddress": ip}, true},
		{"interface list", map[string]any{"networkInterfaces": []any{
			map[string]any{"address": "10.0.0.1"},
			map[string]any{"ipv4": ip},
		}}, true},
		{"interface object", map[string]any{"network": map[string]any{"ip": ip}}, true},
		{"metadata exact", map[string]any{"metadata": map[string]any{"lan": ip}}, true},
		{"metadata substring only", map[string]any{"metadata": map[string]any{"lan": "ip=" + ip}}, false},
		{"only first metadata object", map[string]any{
			"metadata":   map[string]any{"x": "y"},
			"systemInfo": map[string]any{"lan": ip},
		}, false},
		{"empty metadata falls through", map[string]any{
			"metadata": map[string]any{},
			"info":     map[string]any{"lan": ip},
		}, true},
		{"prefix is not a match", map[string]any{"ip": ip + "0"}, false},
		{"no fields", map[string]any{"name": "lobby"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesIP(tt.dev, ip))
		})
	}
}

func TestDeviceID(t *testing.T) {
	assert.Equal(t, "a", DeviceID(Device{"id": "a", "deviceId": "b"}))
	assert.Equal(t, "b", DeviceID(Device{"id": "", "deviceId": "b"}))
	assert.Equal(t, "c", DeviceID(Device{"uuid": "c"}))
	assert.Equal(t, "42", DeviceID(Device{"id": json.Number("42")}))
	assert.Empty(t, DeviceID(Device{"name": "x"}))
}

func TestClient_FindDeviceByIP_Errors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("denied"))
		}), Config{})
		_, err := c.FindDeviceByIP(context.Background(), "1.1.1.1")
		require.EqualError(t, err, "signageOS responded 401: denied")
	})

	t.Run("invalid json", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}), Config{})
		_, err := c.FindDeviceByIP(context.Background(), "1.1.1.1")
		require.EqualError(t, err, "signageOS returned invalid JSON for devices list")
	})
}

func TestClient_DeletePolicy(t *testing.T) {
	api := &fakeAPI{deleteStatus: http.StatusForbidden, deleteBody: `{"error":"nope"}` + "\n"}
	c := newTestClient(t, api, Config{})

	res, err := c.DeletePolicy(context.Background(), "dev 1", "pol/2")
	require.NoError(t, err)
	assert.False(t, res.Removed())
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, `{"error":"nope"}`, res.Detail)
	assert.Equal(t, []string{"/devices/dev 1/policies/pol/2"}, api.deleted)

	assert.True(t, PolicyResult{Status: http.StatusOK}.Removed())
	assert.True(t, PolicyResult{Status: http.StatusNoContent}.Removed())
}
