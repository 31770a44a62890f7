package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/vexlio/drover/api/schemas"
	"github.com/vexlio/drover/internal/config"
)

// Time allowed to write a single frame to the extension.
const writeWait = 10 * time.Second

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// pendingCommand is one in-flight command waiter. result is written exactly
// once, before done is closed.
type pendingCommand struct {
	done   chan struct{}
	result json.RawMessage
}

// Server owns the single persistent connection to the bridge extension and
// correlates command responses back to their callers by id.
//
// The extension dials in; we never dial out. Only one live connection is
// tracked: a second incoming connection displaces tracking of the first
// without evicting it. Pending waiters are never failed on disconnect; each
// one resolves only through its matching response or its own timeout.
type Server struct {
	cfg      config.BridgeConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server

	// mu guards conn, connected, and pending. The read loop and senders run
	// on separate goroutines, so unlike a single-threaded event loop this
	// state needs real mutual exclusion.
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	pending   map[string]*pendingCommand

	// writeMu serializes frame writes to the current connection.
	writeMu sync.Mutex
}

// NewServer creates a bridge server. Call Start to begin listening.
func NewServer(cfg config.BridgeConfig, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.Named("bridge"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The extension connects from a chrome-extension:// origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pending: make(map[string]*pendingCommand),
	}
}

// Start begins listening for the extension on the configured loopback port.
// It returns once the listener is bound; serving continues in the background
// until Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	s.httpServer = &http.Server{Handler: mux}

	go func() {
		if serveErr := s.httpServer.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("Bridge server stopped unexpectedly", zap.Error(serveErr))
		}
	}()

	s.logger.Info("Bridge server started, waiting for extension",
		zap.String("addr", "ws://"+addr))
	return nil
}

// Stop closes the listening endpoint and releases the connection handle.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.logger.Info("Bridge server stopped")
	return err
}

// Connected reports whether an extension connection is currently active.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && s.conn != nil
}

// handleWS upgrades an incoming extension connection and runs its read loop.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageSize)

	s.mu.Lock()
	if s.conn != nil {
		// A newer connection displaces tracking of the old one. The old
		// connection is not actively evicted; its read loop will clean up
		// on its own when the socket dies.
		s.logger.Warn("New extension connection displaces existing one",
			zap.String("remote", conn.RemoteAddr().String()))
	}
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.logger.Info("Bridge extension connected",
		zap.String("remote", conn.RemoteAddr().String()))

	welcome := schemas.Envelope{
		Type:    schemas.MessageTypeWelcome,
		Message: "Connected to drover bridge server",
	}
	if err := s.writeEnvelope(conn, &welcome); err != nil {
		s.logger.Error("Failed to send welcome message", zap.Error(err))
	}

	s.readLoop(conn)
}

// readLoop pumps frames from the extension until the connection dies.
// Pending waiters are deliberately left alone on exit; they finish via their
// own timeouts.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.connected = false
		}
		s.mu.Unlock()
		conn.Close()
		s.logger.Info("Bridge extension disconnected")
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Extension read error", zap.Error(err))
			}
			return
		}

		var env schemas.Envelope
		if err := jsonCodec.Unmarshal(message, &env); err != nil {
			// Malformed frame: log and keep the connection open.
			s.logger.Error("Invalid JSON from extension",
				zap.ByteString("message", message), zap.Error(err))
			continue
		}
		s.handleMessage(&env)
	}
}

// handleMessage routes one inbound frame by its type.
func (s *Server) handleMessage(env *schemas.Envelope) {
	switch env.Type {
	case schemas.MessageTypeWelcome:
		s.logger.Debug("Extension acknowledged welcome", zap.String("message", env.Message))
	case schemas.MessageTypeReady:
		s.logger.Info("Bridge extension is ready")
	case schemas.MessageTypeResponse:
		s.resolve(env.ID, env.Result)
	case schemas.MessageTypeError:
		// Asynchronous extension errors are informational only; they never
		// resolve a waiter.
		s.logger.Error("Bridge extension reported error", zap.String("error", env.Error))
	default:
		s.logger.Debug("Ignoring unknown message type", zap.String("type", env.Type))
	}
}

// resolve completes the waiter registered for id, if any. Each response
// resolves at most one waiter; responses for unknown ids (already timed out,
// already resolved, or cancelled) are dropped silently.
func (s *Server) resolve(id string, result json.RawMessage) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("Dropping response for unknown command id", zap.String("id", id))
		return
	}
	p.result = result
	close(p.done)
}

// removePending unregisters a waiter without resolving it.
func (s *Server) removePending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Server) writeEnvelope(conn *websocket.Conn, env *schemas.Envelope) error {
	payload, err := jsonCodec.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// SendCommand sends a command to the extension and blocks until the matching
// response arrives, the timeout elapses, or ctx is cancelled.
//
// Responses may arrive in any order; correlation is purely id-based. On
// timeout or cancellation the waiter is removed, so a late response for this
// command is discarded rather than delivered.
func (s *Server) SendCommand(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	s.mu.Lock()
	conn := s.conn
	if conn == nil || !s.connected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := uuid.NewString()
	p := &pendingCommand{done: make(chan struct{})}
	s.pending[id] = p
	s.mu.Unlock()

	if params == nil {
		params = map[string]any{}
	}
	env := schemas.Envelope{
		Type:    schemas.MessageTypeCommand,
		ID:      id,
		Command: &schemas.Command{Method: method, Params: params},
	}
	if err := s.writeEnvelope(conn, &env); err != nil {
		s.removePending(id)
		return nil, fmt.Errorf("write command %q: %w", method, err)
	}

	timeout := s.cfg.CommandTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		s.removePending(id)
		return nil, ctx.Err()
	case <-timer.C:
		// The response may have landed between the timer firing and this
		// select waking up.
		select {
		case <-p.done:
			return p.result, nil
		default:
		}
		s.removePending(id)
		s.logger.Error("Command timed out",
			zap.String("method", method), zap.Duration("timeout", timeout))
		return nil, &CommandTimeoutError{Method: method, Timeout: timeout}
	}
}

// pendingCount reports the number of in-flight waiters. Test hook.
func (s *Server) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
