package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/kasuganosora/gamecaps/rpc"
	"go.uber.org/zap"
)

// clientTransport is the dialing side of a websocket RPC connection.
type clientTransport struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (t *clientTransport) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *clientTransport) WriteMessage(data []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *clientTransport) Close() error {
	t.wmu.Lock()
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.wmu.Unlock()
	return t.conn.Close()
}

// Dial connects to a /ws endpoint and returns an RPC client on it.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*rpc.Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return rpc.NewClient(&clientTransport{conn: conn}, logger), nil
}
