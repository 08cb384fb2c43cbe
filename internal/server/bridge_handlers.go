package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgellow/launch-bridge/internal/bridge"
	"github.com/dgellow/launch-bridge/internal/dashboard"
	"github.com/dgellow/launch-bridge/internal/introspect"
	jsonwriter "github.com/dgellow/launch-bridge/internal/json"
	"github.com/dgellow/launch-bridge/internal/log"
	"github.com/dgellow/launch-bridge/internal/metrics"
	"github.com/dgellow/launch-bridge/internal/notify"
	"github.com/dgellow/launch-bridge/internal/session"
	"github.com/dgellow/launch-bridge/internal/sse"
	"github.com/dgellow/launch-bridge/internal/storage"
	"github.com/dgellow/launch-bridge/internal/tokens"
)

const streamKeepAlive = 15 * time.Second

// Notifications for user actions. The controller reports the refresh itself.
const (
	msgLaunching    = "Launching AI Assistant..."
	msgRefreshing   = "Refreshing authentication token..."
	msgPreparing    = "Preparing launch URL..."
	msgShowEmbedded = "Loading embedded assistant..."
	msgHideEmbedded = "Hiding embedded assistant"
)

// BridgeHandlers serves the dashboard API on top of the per-user bridge registry
type BridgeHandlers struct {
	registry *bridge.Registry
	storage  storage.Storage
	metrics  *metrics.Metrics
	clock    clock.Clock
}

// NewBridgeHandlers creates the dashboard API handlers
func NewBridgeHandlers(registry *bridge.Registry, store storage.Storage, m *metrics.Metrics, clk clock.Clock) *BridgeHandlers {
	if clk == nil {
		clk = clock.New()
	}
	return &BridgeHandlers{
		registry: registry,
		storage:  store,
		metrics:  m,
		clock:    clk,
	}
}

// SessionResponse is returned by GET /api/session
type SessionResponse struct {
	Session  session.Session `json:"session"`
	Greeting string          `json:"greeting"`
	User     *storage.User   `json:"user,omitempty"`
}

// DebugResponse is returned by POST /api/bridge/debug
type DebugResponse struct {
	Report *introspect.Report `json:"report"`
	Lines  []string           `json:"lines"`
}

// ViewUpdate is accepted by PUT /api/view. Absent fields are left unchanged.
type ViewUpdate struct {
	Tab          *string `json:"tab,omitempty"`
	ShowEmbedded *bool   `json:"show_embedded,omitempty"`
}

// entry resolves the caller's bridge, writing the error response itself on failure
func (h *BridgeHandlers) entry(w http.ResponseWriter, r *http.Request) (*bridge.Entry, bool) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Authentication required")
		return nil, false
	}
	entry, err := h.registry.Get(r.Context(), sess)
	if err != nil {
		if errors.Is(err, bridge.ErrSessionUnavailable) {
			jsonwriter.WriteUnauthorized(w, "Session unavailable")
			return nil, false
		}
		jsonwriter.WriteServiceUnavailable(w, "Bridge unavailable")
		return nil, false
	}
	return entry, true
}

// SessionHandler returns the session profile and the stored user record
func (h *BridgeHandlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Authentication required")
		return
	}

	resp := SessionResponse{Session: *sess, Greeting: sess.Greeting()}
	user, err := h.storage.GetUser(r.Context(), sess.UserID)
	switch {
	case err == nil:
		resp.User = user
	case errors.Is(err, storage.ErrUserNotFound):
	default:
		log.LogWarnWithFields("api", "Failed to load user record", map[string]any{
			"user_id": sess.UserID,
			"error":   err.Error(),
		})
	}

	_ = jsonwriter.Write(w, resp)
}

// BridgeHandler returns the current bridge snapshot
func (h *BridgeHandlers) BridgeHandler(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	_ = jsonwriter.Write(w, entry.Controller.Snapshot())
}

// RefreshHandler regenerates the bridge. The refresh outlives the request so a
// closed tab does not turn into a failed bridge.
func (h *BridgeHandlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}

	if entry.Controller.Snapshot().State == bridge.StateReady {
		entry.Queue.Push(msgRefreshing, notify.SeverityInfo)
	} else {
		entry.Queue.Push(msgPreparing, notify.SeverityInfo)
	}

	err := entry.Controller.Refresh(context.WithoutCancel(r.Context()))
	switch {
	case err == nil:
		_ = jsonwriter.Write(w, entry.Controller.Snapshot())
	case errors.Is(err, bridge.ErrSuperseded):
		_ = jsonwriter.WriteResponse(w, http.StatusAccepted, entry.Controller.Snapshot())
	case errors.Is(err, bridge.ErrSessionUnavailable):
		jsonwriter.WriteUnauthorized(w, "Session unavailable")
	default:
		jsonwriter.WriteBadGateway(w, err.Error())
	}
}

// DebugHandler decodes a freshly acquired token for display
func (h *BridgeHandlers) DebugHandler(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}

	report, err := entry.Controller.DebugInspect(r.Context())
	var decodeErr *introspect.ClaimDecodeError
	switch {
	case err == nil && report == nil:
		w.WriteHeader(http.StatusNoContent)
	case err == nil:
		_ = jsonwriter.Write(w, DebugResponse{Report: report, Lines: report.Lines()})
	case errors.Is(err, introspect.ErrMalformedToken), errors.As(err, &decodeErr):
		jsonwriter.WriteUnprocessable(w, err.Error())
	case errors.Is(err, tokens.ErrTokenUnavailable):
		jsonwriter.WriteBadGateway(w, err.Error())
	default:
		jsonwriter.WriteInternalServerError(w, err.Error())
	}
}

// LaunchHandler redirects the browser to the destination application
func (h *BridgeHandlers) LaunchHandler(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}

	snapshot := entry.Controller.Snapshot()
	if snapshot.State != bridge.StateReady {
		jsonwriter.WriteConflict(w, "Bridge is not ready")
		return
	}

	sess, _ := SessionFromContext(r.Context())
	if err := h.storage.RecordLaunch(r.Context(), sess.UserID, h.clock.Now()); err != nil {
		log.LogWarnWithFields("api", "Failed to record launch", map[string]any{
			"user_id": sess.UserID,
			"error":   err.Error(),
		})
	}
	h.metrics.ObserveLaunch()
	entry.Queue.Push(msgLaunching, notify.SeveritySuccess)

	log.LogInfoWithFields("api", "Launching destination", map[string]any{
		"user_id":  sess.UserID,
		"sequence": snapshot.Sequence,
	})
	http.Redirect(w, r, snapshot.URL, http.StatusFound)
}

// NotificationsHandler returns the active notifications
func (h *BridgeHandlers) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	_ = jsonwriter.Write(w, entry.Queue.Active())
}

// NotificationsStreamHandler streams the active set on every change
func (h *BridgeHandlers) NotificationsStreamHandler(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonwriter.WriteInternalServerError(w, "Streaming unsupported")
		return
	}

	feed, unsubscribe := entry.Queue.Subscribe()
	defer unsubscribe()

	sse.Headers(w)
	w.WriteHeader(http.StatusOK)

	keepAlive := h.clock.Ticker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case active, open := <-feed:
			if !open {
				return
			}
			if err := sse.WriteEvent(w, flusher, "notifications", active); err != nil {
				log.LogDebugWithFields("api", "Notification stream closed", map[string]any{
					"error": err.Error(),
				})
				return
			}
		case <-keepAlive.C:
			if err := sse.WriteComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		}
	}
}

// ViewHandler returns the dashboard view state
func (h *BridgeHandlers) ViewHandler(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	_ = jsonwriter.Write(w, entry.View.State())
}

// UpdateViewHandler changes the selected tab or the embed toggle
func (h *BridgeHandlers) UpdateViewHandler(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}

	var update ViewUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&update); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid request body")
		return
	}

	if update.Tab != nil {
		if err := entry.View.SelectTab(*update.Tab); err != nil {
			if errors.Is(err, dashboard.ErrUnknownTab) {
				jsonwriter.WriteBadRequest(w, err.Error())
				return
			}
			jsonwriter.WriteInternalServerError(w, err.Error())
			return
		}
	}
	if update.ShowEmbedded != nil && *update.ShowEmbedded != entry.View.State().ShowEmbedded {
		entry.View.SetShowEmbedded(*update.ShowEmbedded)
		notifyEmbedded(entry.Queue, *update.ShowEmbedded)
	}

	_ = jsonwriter.Write(w, entry.View.State())
}

// ToggleEmbeddedHandler flips the embedded-frame toggle
func (h *BridgeHandlers) ToggleEmbeddedHandler(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	notifyEmbedded(entry.Queue, entry.View.ToggleEmbedded())
	_ = jsonwriter.Write(w, entry.View.State())
}

func notifyEmbedded(queue *notify.Queue, shown bool) {
	if shown {
		queue.Push(msgShowEmbedded, notify.SeverityInfo)
		return
	}
	queue.Push(msgHideEmbedded, notify.SeverityInfo)
}
