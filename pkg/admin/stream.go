package admin

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// handleLogStream upgrades to a websocket and sends every new log entry as
// one JSON text message until the client goes away or the server stops.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("log stream upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	entries, unsubscribe := s.reg.SubscribeLogs()
	defer unsubscribe()

	// CloseRead discards client frames and cancels ctx when the peer closes.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "")
			return
		case e, ok := <-entries:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, conn, e); err != nil {
				s.log.Debug("log stream closed", "error", err)
				return
			}
		}
	}
}
