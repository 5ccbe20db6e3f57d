package chat

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 5 * time.Second
	maxFrameSize = 1 << 20
)

// ServeWS upgrades the request and runs the connection until it closes.
func (r *Relay) ServeWS(w http.ResponseWriter, req *http.Request) {
	identity := r.Identify(req)

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn().Err(err).Str("origin", req.Header.Get("Origin")).Msg("websocket upgrade failed")
		return
	}

	c := r.Connect(identity, TransportWebSocket, func(*Client) { conn.Close() })
	go r.writePump(c, conn)
	r.readPump(c, conn)
}

func (r *Relay) readPump(c *Client, conn *websocket.Conn) {
	defer func() {
		r.Disconnect(c)
		conn.Close()
	}()

	deadline := r.cfg.PingInterval + r.cfg.PingTimeout
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Debug().Err(err).Str("conn_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(deadline))
		r.Dispatch(r.ctx, c, frame)
	}
}

// writePump is the only writer on conn. One frame per websocket message.
func (r *Relay) writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(r.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
