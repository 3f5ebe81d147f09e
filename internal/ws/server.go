package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/portfoliokit/realtime-gateway/internal/auth"
	"github.com/portfoliokit/realtime-gateway/internal/metrics"
	"github.com/portfoliokit/realtime-gateway/internal/protocol"
)

const (
	// closeServiceRestart tells clients to reconnect after a drain (RFC 6455
	// registered code 1012).
	closeServiceRestart = 1012

	// closeForbidden is sent when strict mode rejects an unauthenticated
	// handshake.
	closeForbidden = 4403
)

// TokenVerifier validates a handshake bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// Server owns the websocket upgrade path and the per-connection lifecycle:
// Connecting -> (optional) Authenticating -> Open -> Closed.
type Server struct {
	dispatcher   *Dispatcher
	registry     *Registry
	metrics      *metrics.Recorder
	verifier     TokenVerifier
	authRequired bool
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

// NewServer wires the upgrade handler over its collaborators. A nil verifier
// treats every presented token as unverifiable.
func NewServer(dispatcher *Dispatcher, registry *Registry, recorder *metrics.Recorder, verifier TokenVerifier, authRequired bool, logger *zap.Logger) *Server {
	return &Server{
		dispatcher:   dispatcher,
		registry:     registry,
		metrics:      recorder,
		verifier:     verifier,
		authRequired: authRequired,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway sits behind the platform's reverse proxy, which
			// enforces origin policy before traffic reaches this process.
			CheckOrigin:  func(*http.Request) bool { return true },
			Subprotocols: []string{"bearer"},
		},
	}
}

// HandleWS upgrades the request and runs the connection until it closes.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := s.authenticate(r)

	wsc, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	if s.authRequired && userID == "" {
		// Strict deployments refuse anonymous connections, but only after the
		// upgrade so the client receives a close frame with a generic code.
		msg := websocket.FormatCloseMessage(closeForbidden, "forbidden")
		_ = wsc.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = wsc.Close()
		s.logger.Warn("rejected unauthenticated connection", zap.String("remote_addr", r.RemoteAddr))
		return
	}

	connCtx := NewConnContext(s.logger, userID, r)
	conn := newConn(wsc, connCtx)

	s.registry.Add(conn)
	s.metrics.ConnectionOpened()
	connCtx.Logger.Info("connection opened",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("authenticated", connCtx.Authenticated()),
	)

	if err := conn.Send(protocol.EventWelcome, protocol.WelcomePayload{
		Version: protocol.Version,
		Message: "connected",
	}); err != nil {
		connCtx.Logger.Warn("failed to send welcome", zap.Error(err))
	}

	s.readLoop(conn)
}

// authenticate extracts and verifies the optional handshake token. Failures
// downgrade to anonymous; the specific check that failed is logged, never
// sent to the client.
func (s *Server) authenticate(r *http.Request) string {
	token := bearerToken(r)
	if token == "" {
		return ""
	}

	if s.verifier == nil {
		s.logger.Warn("handshake token presented but no verifier configured")
		return ""
	}

	claims, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		s.logger.Warn("handshake authentication failed, continuing anonymous",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return ""
	}

	return claims.Subject
}

// readLoop processes frames in arrival order for one connection. It owns the
// connection's cleanup: registry removal, gauge update, and the close log.
func (s *Server) readLoop(c *Conn) {
	log := c.Context().Logger

	defer func() {
		c.Close()
		s.registry.Remove(c)
		s.metrics.ConnectionClosed()
	}()

	c.ws.SetReadLimit(maxMessageSize)

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				log.Info("connection closed",
					zap.Int("code", closeErr.Code),
					zap.String("reason", closeErr.Text),
				)
			} else {
				log.Info("connection closed", zap.Error(err))
			}
			return
		}

		s.dispatcher.HandleMessage(c, raw)
	}
}

// Shutdown drains every open connection with a reconnect-hint close frame and
// waits for the registry to empty. The caller stops the HTTP listener only
// after this returns, preserving drain -> stop listener -> exit ordering.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("draining websocket connections", zap.Int("connections", s.registry.Count()))

	s.registry.Range(func(c *Conn) bool {
		c.closeWithCode(closeServiceRestart, "server restarting")
		return true
	})

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for s.registry.Count() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain timed out with %d connections still open", s.registry.Count())
		case <-ticker.C:
		}
	}

	s.logger.Info("all websocket connections drained")
	return nil
}

// bearerToken pulls the handshake token from the websocket subprotocol header
// ("bearer,<token>") or the token query parameter.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Sec-WebSocket-Protocol"); header != "" {
		parts := strings.Split(header, ",")
		if len(parts) >= 2 && strings.TrimSpace(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}
