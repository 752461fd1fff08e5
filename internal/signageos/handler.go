package signageos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dise/partnerportal/pkg/audit"
	"github.com/dise/partnerportal/pkg/limits"
	"github.com/dise/partnerportal/pkg/logging"
)

// Audit actions and statuses of the unlock endpoint.
const (
	ActionAttempt = "unlock_attempt"
	ActionUnlock  = "unlock"

	StatusBadRequest  = "BAD_REQUEST"
	StatusError       = "ERROR"
	StatusNotFound    = "NOT_FOUND"
	StatusNoDeviceID  = "NO_DEVICE_ID"
	StatusException   = "EXCEPTION"
	StatusSuccess     = "SUCCESS"
	StatusFailed      = "FAILED"
	StatusRateLimited = "RATE_LIMITED"
)

// MaxBodyBytes caps the unlock request body.
const MaxBodyBytes = 1 << 20

// DeviceAPI is the part of the signageOS API the handler needs.
type DeviceAPI interface {
	FindDeviceByIP(ctx context.Context, ip string) (Device, error)
	DeletePolicy(ctx context.Context, deviceID, policyID string) (PolicyResult, error)
}

// Handler serves POST /api/signageos/unlock.
type Handler struct {
	api   DeviceAPI
	audit audit.Logger
}

// NewHandler creates the unlock handler. A nil audit logger discards
// records.
func NewHandler(api DeviceAPI, auditLog audit.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Handler{api: api, audit: auditLog}
}

type unlockRequest struct {
	deviceIP    string
	policyID    string
	orgID       string
	supportUser string
	remoteAddr  string
}

func (u unlockRequest) event(action, status, detail string, deviceID string) audit.Event {
	attrs := map[string]any{
		"device_ip": u.deviceIP,
		"policy_id": u.policyID,
		"org_id":    u.orgID,
	}
	if deviceID != "" {
		attrs["device_id"] = deviceID
	}
	return audit.Event{
		Action:     action,
		Status:     status,
		Detail:     detail,
		User:       u.supportUser,
		RemoteAddr: u.remoteAddr,
		Attrs:      attrs,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.L(ctx)

	var payload map[string]any
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil || len(payload) == 0 {
		writeMessage(ctx, w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	u := unlockRequest{
		deviceIP:    field(payload, "deviceIp"),
		policyID:    field(payload, "policyId"),
		orgID:       field(payload, "orgId"),
		supportUser: field(payload, "supportUser"),
		remoteAddr:  limits.IPKeyFunc(r),
	}

	if u.deviceIP == "" || u.policyID == "" {
		h.audit.LogWithContext(ctx, u.event(ActionAttempt, StatusBadRequest, "deviceIp and policyId are required", ""))
		writeMessage(ctx, w, http.StatusBadRequest, "deviceIp and policyId are required")
		return
	}

	device, err := h.api.FindDeviceByIP(ctx, u.deviceIP)
	if err != nil {
		log.Warn("device lookup failed", logging.String("device_ip", u.deviceIP), logging.Err(err))
		h.audit.LogWithContext(ctx, u.event(ActionAttempt, StatusError, err.Error(), ""))
		writeMessage(ctx, w, http.StatusInternalServerError, "Error while searching for device by IP: "+err.Error())
		return
	}
	if device == nil {
		h.audit.LogWithContext(ctx, u.event(ActionAttempt, StatusNotFound, "No device matched IP", ""))
		writeMessage(ctx, w, http.StatusNotFound, "No device found for the provided IP")
		return
	}

	deviceID := DeviceID(device)
	if deviceID == "" {
		raw, _ := json.Marshal(device)
		h.audit.LogWithContext(ctx, u.event(ActionAttempt, StatusNoDeviceID, "device found but no id field, device="+string(raw), ""))
		writeMessage(ctx, w, http.StatusInternalServerError, "Device found but could not determine device id; check device object")
		return
	}

	res, err := h.api.DeletePolicy(ctx, deviceID, u.policyID)
	if err != nil {
		log.Warn("policy removal failed", logging.String("device_id", deviceID), logging.Err(err))
		h.audit.LogWithContext(ctx, u.event(ActionAttempt, StatusException, err.Error(), deviceID))
		writeMessage(ctx, w, http.StatusInternalServerError, "Exception during signageOS request: "+err.Error())
		return
	}

	if res.Removed() {
		h.audit.LogWithContext(ctx, u.event(ActionUnlock, StatusSuccess, fmt.Sprintf("signageOS_status=%d", res.Status), deviceID))
		log.Info("policy removed",
			logging.String("device_id", deviceID),
			logging.String("policy_id", u.policyID),
			logging.String("user", u.supportUser),
		)
		writeMessage(ctx, w, http.StatusOK, fmt.Sprintf("Policy %s removed from device %s", u.policyID, deviceID))
		return
	}

	h.audit.LogWithContext(ctx, u.event(ActionAttempt, StatusFailed, fmt.Sprintf("status=%d, body=%s", res.Status, res.Detail), deviceID))
	writeMessage(ctx, w, http.StatusBadRequest, fmt.Sprintf("Failed to remove policy: %d - %s", res.Status, res.Detail))
}

// LimitExceeded answers requests rejected by the rate limiter.
func (h *Handler) LimitExceeded() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.audit.LogWithContext(r.Context(), audit.Event{
			Action:     ActionAttempt,
			Status:     StatusRateLimited,
			RemoteAddr: limits.IPKeyFunc(r),
		})
		writeMessage(r.Context(), w, http.StatusTooManyRequests, limits.ErrRateLimitExceeded.Error())
	})
}

func field(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func writeMessage(ctx context.Context, w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"message": message}); err != nil {
		logging.L(ctx).Debug("unlock response not written", logging.Int("status", status), logging.Err(err))
	}
}
