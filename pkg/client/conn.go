package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a message-oriented connection. *websocket.Conn implements it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// writeDeadliner is implemented by connections that support write deadlines.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Dial connects to a topicsync server and returns a client over the
// connection. The client does nothing until Run is called.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	return DialWithHeader(ctx, url, nil, opts...)
}

// DialWithHeader is Dial with extra handshake headers, such as cookies or
// authorization.
func DialWithHeader(ctx context.Context, url string, header http.Header, opts ...Option) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	return New(conn, opts...), nil
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
