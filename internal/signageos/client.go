// Package signageos talks to the signageOS REST API and serves the unlock
// endpoint that removes a policy from a device found by IP.
package signageos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultBaseURL  = "https://api.signageos.io/v2"
	DefaultTimeout  = 15 * time.Second
	DefaultPageSize = 100
)

// ErrNoCredentials is returned when neither auth method is configured.
var ErrNoCredentials = errors.New("signageos: set either X-Auth (tokenId:tokenSecret) or an API key")

// Config configures a Client. XAuth is preferred over APIKey.
type Config struct {
	BaseURL  string
	XAuth    string
	APIKey   string
	Timeout  time.Duration
	PageSize int
}

// Device is a device object as returned by the API. Its shape varies, so
// it is kept untyped.
type Device map[string]any

// Client is a signageOS API client.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.XAuth == "" && cfg.APIKey == "" {
		return nil, ErrNoCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.XAuth != "" {
		req.Header.Set("X-Auth", c.cfg.XAuth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return req, nil
}

// FindDeviceByIP pages through the device list and returns the first
// device whose known addresses include ip. It returns nil when no device
// matches.
func (c *Client) FindDeviceByIP(ctx context.Context, ip string) (Device, error) {
	for page := 0; ; page++ {
		query := url.Values{
			"limit":  {strconv.Itoa(c.cfg.PageSize)},
			"offset": {strconv.Itoa(page * c.cfg.PageSize)},
		}
		req, err := c.newRequest(ctx, http.MethodGet, "/devices", query)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("error calling signageOS devices list: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("error calling signageOS devices list: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("signageOS responded %d: %s", resp.StatusCode, body)
		}

		var data any
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&data); err != nil {
			return nil, errors.New("signageOS returned invalid JSON for devices list")
		}

		items := deviceItems(data)
		if len(items) == 0 {
			return nil, nil
		}
		for _, item := range items {
			dev, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if matchesIP(dev, ip) {
				return Device(dev), nil
			}
		}
		if len(items) < c.cfg.PageSize {
			return nil, nil
		}
	}
}

// deviceItems accepts a bare list or an object wrapping it in items, data
// or devices.
func deviceItems(data any) []any {
	switch v := data.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range []string{"items", "data", "devices"} {
			if truthy(v[key]) {
				list, _ := v[key].([]any)
				return list
			}
		}
	}
	return nil
}

var (
	addressKeys   = []string{"ip", "lastKnownIp", "privateIp", "publicIp", "ipAddress"}
	interfaceKeys = []string{"networkInterfaces", "interfaces", "network"}
	interfaceAddr = []string{"ip", "address", "ipv4", "ipv6"}
	metadataKeys  = []string{"metadata", "systemInfo", "info"}
)

func matchesIP(dev map[string]any, ip string) bool {
	var candidates []string
	add := func(v any) {
		if truthy(v) {
			candidates = append(candidates, fmt.Sprint(v))
		}
	}

	for _, k := range addressKeys {
		add(dev[k])
	}

	for _, k := range interfaceKeys {
		switch ni := dev[k].(type) {
		case []any:
			for _, entry := range ni {
				if m, ok := entry.(map[string]any); ok {
					for _, f := range interfaceAddr {
						add(m[f])
					}
				}
			}
		case map[string]any:
			for _, f := range interfaceAddr {
				add(ni[f])
			}
		}
	}

	for _, k := range metadataKeys {
		if !truthy(dev[k]) {
			continue
		}
		if meta, ok := dev[k].(map[string]any); ok {
			for _, v := range meta {
				if s, ok := v.(string); ok && strings.Contains(s, ip) {
					candidates = append(candidates, s)
				}
			}
		}
		break
	}

	for _, c := range candidates {
		if strings.TrimSpace(c) == ip {
			return true
		}
	}
	return false
}

// DeviceID returns the device's id from the first present id field.
func DeviceID(dev Device) string {
	for _, k := range []string{"id", "deviceId", "uid", "uuid"} {
		if truthy(dev[k]) {
			return fmt.Sprint(dev[k])
		}
	}
	return ""
}

// PolicyResult is the API's answer to a policy removal.
type PolicyResult struct {
	Status int
	Detail string
}

// Removed reports whether the API accepted the removal.
func (r PolicyResult) Removed() bool {
	return r.Status == http.StatusOK || r.Status == http.StatusNoContent
}

// DeletePolicy removes policyID from deviceID. A non-2xx answer is not an
// error; the caller inspects the result.
func (c *Client) DeletePolicy(ctx context.Context, deviceID, policyID string) (PolicyResult, error) {
	path := "/devices/" + url.PathEscape(deviceID) + "/policies/" + url.PathEscape(policyID)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return PolicyResult{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return PolicyResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PolicyResult{}, err
	}
	return PolicyResult{Status: resp.StatusCode, Detail: strings.TrimSpace(string(body))}, nil
}

// truthy follows JSON-ish truthiness: null, false, zero, empty strings
// and empty collections are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
