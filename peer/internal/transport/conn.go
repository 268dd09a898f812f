package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/sketchrelay/sketchrelay/pkg/types"
)

// Conn is one WebSocket connection to the relay. Send may be called
// concurrently with Recv and with itself.
type Conn struct {
	ws *websocket.Conn
}

// Dial opens a connection to url. Inbound frames larger than maxMessageBytes
// fail the connection.
func Dial(ctx context.Context, url string, maxMessageBytes int64, header http.Header) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	if maxMessageBytes > 0 {
		ws.SetReadLimit(maxMessageBytes)
	}
	return &Conn{ws: ws}, nil
}

// Send writes env as one JSON text frame.
func (c *Conn) Send(ctx context.Context, env types.Envelope) error {
	if err := wsjson.Write(ctx, c.ws, env); err != nil {
		return fmt.Errorf("transport: send %s: %w", env.Event, err)
	}
	return nil
}

// Recv reads the next frame. Frames that are not valid JSON are an error;
// the connection is unusable afterwards.
func (c *Conn) Recv(ctx context.Context) (types.Envelope, error) {
	var env types.Envelope
	if err := wsjson.Read(ctx, c.ws, &env); err != nil {
		return types.Envelope{}, fmt.Errorf("transport: receive: %w", err)
	}
	return env, nil
}

// Close sends a normal closure and releases the connection.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}
