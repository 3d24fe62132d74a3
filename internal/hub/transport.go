package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a message-oriented duplex connection. Close may be called
// concurrently with ReadMessage and must unblock it.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a Transport to a hub URL. token is the access token for this
// attempt, or "" for an anonymous connection.
type Dialer interface {
	Dial(ctx context.Context, rawURL, token string) (Transport, error)
}

// HubURL joins a REST base URL and a hub path, mapping http(s) to ws(s).
func HubURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}

// WebSocketDialer dials hubs with gorilla/websocket.
type WebSocketDialer struct {
	Dialer *websocket.Dialer

	// ServerTimeout is the longest silence tolerated from the server before
	// the connection is treated as dropped. Zero disables the deadline.
	ServerTimeout time.Duration

	// WriteTimeout bounds each write. Zero means no deadline.
	WriteTimeout time.Duration
}

// Dial implements Dialer. The token travels both as the access_token query
// parameter, which is what hubs read for WebSocket upgrades, and as a bearer
// header.
func (d *WebSocketDialer) Dial(ctx context.Context, rawURL, token string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing hub url: %w", err)
	}

	header := http.Header{}
	if token != "" {
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s%s: status %d: %w", u.Host, u.Path, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing %s%s: %w", u.Host, u.Path, err)
	}

	return &wsTransport{
		conn:         conn,
		readTimeout:  d.ServerTimeout,
		writeTimeout: d.WriteTimeout,
	}, nil
}

type wsTransport struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	// gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	if t.readTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return nil, err
		}
	}
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
