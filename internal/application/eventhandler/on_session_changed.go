// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на смену сессии и запускают побочные эффекты,
// такие как сброс кешей.
package eventhandler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SESSION CHANGED HANDLER
// Сбрасывает учебные данные при выходе и при смене пользователя,
// чтобы данные одного ученика не показались другому.
// ═══════════════════════════════════════════════════════════════════════════

// DataInvalidator - кеш, который умеет сбрасываться.
type DataInvalidator interface {
	Invalidate(ctx context.Context, userID string)
	InvalidateAll(ctx context.Context)
}

// OnSessionChangedHandler обрабатывает события сессии.
type OnSessionChangedHandler struct {
	cache  DataInvalidator
	logger *slog.Logger

	mu      sync.Mutex
	current string // последний вошедший пользователь
}

// NewOnSessionChangedHandler создаёт обработчик.
func NewOnSessionChangedHandler(cache DataInvalidator, logger *slog.Logger) *OnSessionChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnSessionChangedHandler{
		cache:  cache,
		logger: logger.With("handler", "on_session_changed"),
	}
}

// Register подписывает обработчик на нужные события.
func (h *OnSessionChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{
		shared.EventSignedIn,
		shared.EventSessionRestored,
		shared.EventSignedOut,
	} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle обрабатывает событие. Реализует shared.EventHandler.
func (h *OnSessionChangedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	sessionEvent, ok := event.(shared.SessionEvent)
	if !ok {
		h.logger.Warn("received non-SessionEvent", "event_type", event.EventType())
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch sessionEvent.EventType() {
	case shared.EventSignedOut:
		// Демо-вход идёт без ID, поэтому сбрасываем всё.
		if sessionEvent.UserID == "" {
			h.cache.InvalidateAll(ctx)
		} else {
			h.cache.Invalidate(ctx, sessionEvent.UserID)
		}
		h.current = ""
		h.logger.Debug("student data dropped on sign-out", "user_id", sessionEvent.UserID)

	case shared.EventSignedIn, shared.EventSessionRestored:
		if h.current != "" && h.current != sessionEvent.UserID {
			h.cache.Invalidate(ctx, h.current)
			h.logger.Info("user switched, previous data dropped",
				"previous_user_id", h.current,
				"user_id", sessionEvent.UserID,
			)
		}
		h.current = sessionEvent.UserID
	}
	return nil
}
