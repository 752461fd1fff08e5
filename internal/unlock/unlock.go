// Package unlock implements the client side of the signageOS unlock tool:
// form validation, the single POST to the unlock endpoint and the cURL
// line support staff can copy instead.
package unlock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Output texts.
const (
	MsgMissingFields = "⚠️ Please fill Device IP and Policy ID."
	MsgRunning       = "Running..."
	MsgCopyMissing   = "Fill Device IP and Policy ID first"
)

// PlaceholderBase is used in the cURL line when no base URL is known.
const PlaceholderBase = "http://<HOST_OR_PROXY>"

// Path is the unlock endpoint path.
const Path = "/api/signageos/unlock"

// ErrMissingFields is returned by Validate.
var ErrMissingFields = errors.New(MsgMissingFields)

// Request is the unlock form.
type Request struct {
	DeviceIP    string `json:"deviceIp"`
	PolicyID    string `json:"policyId"`
	OrgID       string `json:"orgId"`
	SupportUser string `json:"supportUser"`
}

// Trim returns the request with surrounding whitespace removed.
func (r Request) Trim() Request {
	return Request{
		DeviceIP:    strings.TrimSpace(r.DeviceIP),
		PolicyID:    strings.TrimSpace(r.PolicyID),
		OrgID:       strings.TrimSpace(r.OrgID),
		SupportUser: strings.TrimSpace(r.SupportUser),
	}
}

// Validate requires a device IP and a policy ID.
func (r Request) Validate() error {
	if r.DeviceIP == "" || r.PolicyID == "" {
		return ErrMissingFields
	}
	return nil
}

// Outcome is the result of one unlock call, as shown in the output area.
type Outcome struct {
	OK      bool
	Status  int
	Message string
	Err     error
}

// Text renders the outcome for the output area.
func (o Outcome) Text() string {
	switch {
	case o.Err != nil:
		return "❌ Exception: " + o.Err.Error()
	case o.OK:
		return "✅ " + o.Message
	default:
		return "❌ " + o.Message
	}
}

// Doer sends HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts unlock requests to an endpoint. It does not retry and sets
// no timeout of its own; cancel ctx to abandon a call.
type Client struct {
	endpoint string
	http     Doer
}

// NewClient creates a client for endpoint. A nil doer uses a plain
// http.Client.
func NewClient(endpoint string, doer Doer) *Client {
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{endpoint: endpoint, http: doer}
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type response struct {
	Message string `json:"message"`
}

// Run posts req once and reports the outcome.
func (c *Client) Run(ctx context.Context, req Request) Outcome {
	body, err := json.Marshal(req)
	if err != nil {
		return Outcome{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Outcome{Err: err}
	}
	defer resp.Body.Close()

	var data response
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Outcome{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	return Outcome{
		OK:      resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:  resp.StatusCode,
		Message: data.Message,
	}
}

// Curl builds the cURL command for req. Org id and support user stay as
// placeholders for the person running it.
func Curl(baseURL string, req Request) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = PlaceholderBase
	}
	return fmt.Sprintf(
		`curl -X POST "%s%s" -H "Content-Type: application/json" -d '{"deviceIp":"%s","policyId":"%s","orgId":"<orgId_optional>","supportUser":"<you>"}'`,
		base, Path, req.DeviceIP, req.PolicyID,
	)
}
