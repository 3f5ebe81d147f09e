package ws

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/portfoliokit/realtime-gateway/pkg/logger"
)

// ConnContext is the immutable per-connection context. The correlation id is
// generated once at registration and shared by every frame on the socket, so
// all log lines for one client session can be joined on request_id.
type ConnContext struct {
	RequestID string
	UserID    string
	Logger    *zap.Logger
	Request   *http.Request
}

// NewConnContext builds the context for a freshly upgraded connection.
// UserID is empty for anonymous connections and never changes afterwards.
func NewConnContext(base *zap.Logger, userID string, r *http.Request) *ConnContext {
	requestID := uuid.NewString()

	log := logger.ForConnection(base, requestID)
	if userID != "" {
		log = log.With(zap.String("user_id", userID))
	}

	return &ConnContext{
		RequestID: requestID,
		UserID:    userID,
		Logger:    log,
		Request:   r,
	}
}

// Authenticated reports whether the handshake pinned a verified identity.
func (c *ConnContext) Authenticated() bool {
	return c.UserID != ""
}
