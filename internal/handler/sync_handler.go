package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"daycard/internal/apperr"
	"daycard/internal/model"
	"daycard/internal/repository"
	"daycard/pkg/mq"
)

const maxPushBody = 10 << 20

// EventPublisher announces accepted pushes. *mq.Publisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// SyncPushedEvent is published after a changeset is stored.
type SyncPushedEvent struct {
	UserID    string    `json:"user_id"`
	Rows      int       `json:"rows"`
	Deleted   int       `json:"deleted"`
	Timestamp time.Time `json:"timestamp"`
}

type SyncHandler struct {
	store     repository.SnapshotStore
	publisher EventPublisher
	logger    *zap.Logger
}

// NewSyncHandler wires the remote store. publisher may be nil.
func NewSyncHandler(store repository.SnapshotStore, publisher EventPublisher, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{store: store, publisher: publisher, logger: logger}
}

// Pull handles GET /sync?since=<watermark>
func (h *SyncHandler) Pull(c *gin.Context) {
	since := c.DefaultQuery("since", repository.DefaultWatermark)

	snap, err := h.store.Pull(c.Request.Context(), userID(c), since)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// Push handles POST /sync: upserts, then settings, then deletions. Every
// field is optional, so an empty body is an empty changeset.
func (h *SyncHandler) Push(c *gin.Context) {
	var cs model.Changeset
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxPushBody)
	if err := json.NewDecoder(body).Decode(&cs); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, h.logger, apperr.Wrap(apperr.KindValidation, "Invalid JSON", err))
		return
	}
	if err := cs.Validate(); err != nil {
		respondError(c, h.logger, err)
		return
	}

	uid := userID(c)
	if err := h.store.Push(c.Request.Context(), uid, cs); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.announce(c.Request.Context(), uid, cs)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// announce is best effort: a broker outage never fails a stored push.
func (h *SyncHandler) announce(ctx context.Context, uid string, cs model.Changeset) {
	if h.publisher == nil || cs.IsEmpty() {
		return
	}
	deleted := len(cs.DeletedTodos) + len(cs.DeletedHabits) + len(cs.DeletedHabitLogs) + len(cs.DeletedCalendarSources)
	event := SyncPushedEvent{
		UserID:    uid,
		Rows:      cs.Size(),
		Deleted:   deleted,
		Timestamp: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := h.publisher.Publish(ctx, mq.RoutingKeySyncPushed, event); err != nil {
		h.logger.Warn("Failed to publish sync.pushed",
			zap.String("user_id", uid),
			zap.Error(err),
		)
	}
}
