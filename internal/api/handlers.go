package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/events"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/intake"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/notification"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/reminder"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type UnreadSource interface {
	ComputeUnread(ctx context.Context) (models.UnreadSnapshot, error)
}

type Intake interface {
	Enqueue(ctx context.Context, payload map[string]string) error
}

// Session signs the single user in and out and edits their settings.
type Session interface {
	Login(ctx context.Context, user models.User) (models.User, error)
	Logout(ctx context.Context) error
	UpdateSettings(ctx context.Context, update models.SettingsUpdate) (models.Settings, error)
}

type EngineStatus interface {
	Status() reminder.Status
}

type Publisher interface {
	Publish(topic string, v interface{}) error
}

type Handler struct {
	store    store.Store
	unread   UnreadSource
	intake   Intake
	session  Session
	engine   EngineStatus
	bus      Publisher
	ws       *notification.WebSocketManager
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

type Deps struct {
	Store          store.Store
	Unread         UnreadSource
	Intake         Intake
	Session        Session
	Engine         EngineStatus
	Bus            Publisher
	WebSocket      *notification.WebSocketManager
	Logger         *logging.Logger
	AllowedOrigins []string
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		store:   d.Store,
		unread:  d.Unread,
		intake:  d.Intake,
		session: d.Session,
		engine:  d.Engine,
		bus:     d.Bus,
		ws:      d.WebSocket,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(d.AllowedOrigins),
		},
		logger: d.Logger,
	}
}

type channelView struct {
	models.Channel
	Unread int `json:"unread"`
}

func (h *Handler) GetUnread(c *gin.Context) {
	snapshot, err := h.unread.ComputeUnread(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to compute unread: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute unread"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) GetUnreadForChannel(c *gin.Context) {
	channelID := c.Param("channel_id")
	count, err := h.store.GetUnreadCountForChannel(c.Request.Context(), channelID)
	if err != nil {
		h.logger.Errorf("Failed to count unread for channel %s: %v", channelID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count unread alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": channelID, "unread": count})
}

func (h *Handler) ListAlerts(c *gin.Context) {
	filter := models.AlertFilter{
		ChannelID: c.Query("channel_id"),
		Limit:     defaultPageSize,
	}

	var err error
	if raw := c.Query("unread"); raw != "" {
		if filter.UnreadOnly, err = strconv.ParseBool(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid unread"})
			return
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil || filter.Limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		if filter.Limit > maxPageSize {
			filter.Limit = maxPageSize
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if filter.Offset, err = strconv.Atoi(raw); err != nil || filter.Offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
			return
		}
	}

	alerts, err := h.store.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		h.logger.Errorf("Failed to list alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (h *Handler) GetAlert(c *gin.Context) {
	id := c.Param("id")
	alert, err := h.store.GetAlert(c.Request.Context(), id)
	if errors.Is(err, store.ErrAlertNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to get alert %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert"})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// MarkRead acknowledges one alert. The response carries the stored row, so
// the UI never shows an alert as read unless the store says it is.
func (h *Handler) MarkRead(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if err := h.store.MarkRead(ctx, id); err != nil {
		h.mutationError(c, "mark alert read", id, err)
		return
	}
	h.logger.WithRequestID(id).Info("Alert acknowledged")
	h.publishAck(events.AlertsAcknowledged{AlertID: id, Read: true})

	alert, err := h.store.GetAlert(ctx, id)
	if err != nil {
		// The acknowledgment is stored; only the reload failed.
		h.logger.Errorf("Failed to reload alert %s after acknowledgment: %v", id, err)
		c.JSON(http.StatusOK, gin.H{"id": id, "is_read": true})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) MarkUnread(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	unmarker, ok := h.store.(store.Unmarker)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Store does not support marking alerts unread"})
		return
	}
	if err := unmarker.MarkUnread(ctx, id); err != nil {
		h.mutationError(c, "mark alert unread", id, err)
		return
	}
	alert, reloadErr := h.store.GetAlert(ctx, id)
	if reloadErr != nil {
		alert = models.Alert{ID: id}
	}

	h.publishAck(events.AlertsAcknowledged{AlertID: id, Read: false})
	// An alert back in the unread set means reminding may have to resume.
	if err := h.bus.Publish(events.TopicAlertsStored, events.AlertStored{
		AlertID:   alert.ID,
		ChannelID: alert.ChannelID,
		Severity:  alert.Severity,
	}); err != nil {
		h.logger.Errorf("Failed to publish unread alert %s: %v", id, err)
	}

	if reloadErr != nil {
		h.logger.Errorf("Failed to reload alert %s after unmarking: %v", id, reloadErr)
		c.JSON(http.StatusOK, gin.H{"id": id, "is_read": false})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) ListChannels(c *gin.Context) {
	ctx := c.Request.Context()
	channels, err := h.store.ListChannels(ctx)
	if err != nil {
		h.logger.Errorf("Failed to list channels: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list channels"})
		return
	}
	counts, err := h.store.GetUnreadCountsByChannel(ctx)
	if err != nil {
		h.logger.Errorf("Failed to count unread by channel: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list channels"})
		return
	}

	views := make([]channelView, 0, len(channels))
	for _, ch := range channels {
		views = append(views, channelView{Channel: ch, Unread: counts[ch.ID]})
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) MarkChannelRead(c *gin.Context) {
	id := c.Param("id")
	changed, err := h.store.MarkAllReadForChannel(c.Request.Context(), id)
	if err != nil {
		h.mutationError(c, "mark channel read", id, err)
		return
	}
	if changed > 0 {
		h.publishAck(events.AlertsAcknowledged{ChannelID: id, Read: true})
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": id, "marked_read": changed})
}

func (h *Handler) DeleteChannel(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteChannel(c.Request.Context(), id); err != nil {
		h.mutationError(c, "delete channel", id, err)
		return
	}
	h.logger.Infof("Deleted channel %s", id)
	h.publishAck(events.AlertsAcknowledged{ChannelID: id})
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.store.GetSettings(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to get settings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"settings":               settings,
		"allowed_beep_intervals": models.BeepIntervals,
	})
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var update models.SettingsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	settings, err := h.session.UpdateSettings(c.Request.Context(), update)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, settings)
	case errors.Is(err, store.ErrNoCurrentUser):
		c.JSON(http.StatusConflict, gin.H{"error": "No user is signed in"})
	case store.IsStorageError(err):
		h.logger.Errorf("Failed to update settings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func (h *Handler) Login(c *gin.Context) {
	var user models.User
	if err := c.ShouldBindJSON(&user); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	user, err := h.session.Login(c.Request.Context(), user)
	if err != nil {
		if store.IsStorageError(err) {
			h.logger.Errorf("Failed to sign in: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.session.Logout(c.Request.Context()); err != nil {
		h.logger.Errorf("Failed to sign out: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign out"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetReminderStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

// WebSocket streams unread, reminder and silence events to a UI client.
func (h *Handler) WebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	if !h.ws.AddConnection(conn) {
		_ = conn.Close()
		return
	}
	defer func() {
		h.ws.RemoveConnection(conn)
		_ = conn.Close()
	}()

	// Client messages are ignored; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) Push(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	payload, err := intake.ParsePayload(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.intake.Enqueue(c.Request.Context(), payload); err != nil {
		h.logger.Errorf("Failed to queue push payload: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Intake unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handler) mutationError(c *gin.Context, op, id string, err error) {
	switch {
	case errors.Is(err, store.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
	case errors.Is(err, store.ErrChannelNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
	default:
		h.logger.Errorf("Failed to %s %s: %v", op, id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + op})
	}
}

func (h *Handler) publishAck(ev events.AlertsAcknowledged) {
	if err := h.bus.Publish(events.TopicAlertsAcknowledged, ev); err != nil {
		h.logger.Errorf("Failed to publish acknowledgment: %v", err)
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
