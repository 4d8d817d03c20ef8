package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/rockhype/internal/live"
	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 15 * time.Second
	writeWait        = 10 * time.Second
	closeGrace       = time.Second
	modelPrefix      = "models/"
)

type GeminiDialer struct {
	endpoint string
	apiKey   string
	dialer   *websocket.Dialer
}

func NewGeminiDialer(endpoint, apiKey string) *GeminiDialer {
	return &GeminiDialer{
		endpoint: endpoint,
		apiKey:   apiKey,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (d *GeminiDialer) Dial(ctx context.Context, cfg live.SessionConfig) (live.Stream, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", live.ErrStreamProtocol, err)
	}
	q := u.Query()
	q.Set("key", d.apiKey)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	slog.Info("dialing live voice service", "host", u.Host, "model", cfg.Model, "voice", cfg.Voice)
	conn, resp, err := d.dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resp != nil {
			return nil, fmt.Errorf("%w: websocket dial failed (status %d): %v", live.ErrStreamProtocol, resp.StatusCode, redact(err, d.apiKey))
		}
		return nil, fmt.Errorf("%w: websocket dial failed: %v", live.ErrStreamProtocol, redact(err, d.apiKey))
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(newSetupMessage(cfg)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: send setup: %v", live.ErrStreamProtocol, err)
	}
	if err := awaitSetupComplete(dialCtx, conn); err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	slog.Info("live voice session acknowledged", "model", cfg.Model)
	return &geminiStream{conn: conn}, nil
}

func awaitSetupComplete(ctx context.Context, conn *websocket.Conn) error {
	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read setup acknowledgment: %w", classifyReadError(err))
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("%w: malformed setup acknowledgment: %v", live.ErrStreamProtocol, err)
		}
		if msg.SetupComplete != nil {
			_ = conn.SetReadDeadline(time.Time{})
			return nil
		}
	}
}

type geminiStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (s *geminiStream) Send(ctx context.Context, chunk live.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []blob{{MIMEType: chunk.MIMEType, Data: chunk.Data}},
		},
	})
}

// Receive blocks on the socket; closing the stream unblocks it.
func (s *geminiStream) Receive(ctx context.Context) (live.ServerMessage, error) {
	for {
		if err := ctx.Err(); err != nil {
			return live.ServerMessage{}, err
		}
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return live.ServerMessage{}, classifyReadError(err)
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		var raw serverMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return live.ServerMessage{}, fmt.Errorf("%w: malformed server message: %v", live.ErrStreamProtocol, err)
		}
		msg, ok := raw.toServerMessage()
		if !ok {
			continue
		}
		if msg.GoAway {
			slog.Warn("live voice service announced disconnect", "time_left", raw.GoAway.TimeLeft)
		}
		return msg, nil
	}
}

func (s *geminiStream) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func classifyReadError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Errorf("%w: closed with code %d: %s", live.ErrStreamProtocol, closeErr.Code, closeErr.Text)
	}
	return fmt.Errorf("%w: %v", live.ErrStreamProtocol, err)
}

func redact(err error, secret string) string {
	if secret == "" {
		return err.Error()
	}
	return strings.ReplaceAll(err.Error(), secret, "REDACTED")
}

func qualifiedModel(model string) string {
	if strings.HasPrefix(model, modelPrefix) {
		return model
	}
	return modelPrefix + model
}
