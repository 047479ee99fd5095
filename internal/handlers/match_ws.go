// internal/handlers/match_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Liunai/pallavolo/internal/middleware"
	"github.com/Liunai/pallavolo/internal/notify"
)

const (
	wsSubprotocol   = "match"
	wsPingInterval  = 30 * time.Second
	wsWriteDeadline = 5 * time.Second
)

// MatchWSHandler streams a match's full document on every committed change.
// The first frame is a snapshot; a close or delete ends the stream.
func (s *APIServer) MatchWSHandler(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")

	origins := s.WSOriginPatterns
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{wsSubprotocol},
		OriginPatterns: origins,
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != wsSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the match subprotocol")
		return
	}

	u, err := s.authn.Authenticate(r)
	if err != nil {
		c.Close(InvalidAuthTokenError, "invalid auth token")
		return
	}

	// Subscribe before reading the snapshot so no commit falls between them.
	sub := s.Hub.Subscribe(matchID)
	defer sub.Close()

	m, err := s.Lifecycle.GetMatch(r.Context(), matchID)
	if err != nil {
		c.Close(InvalidMatchIDError, "match does not exist")
		return
	}

	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)
	s.Metrics.WebsocketConnected()
	defer s.Metrics.WebsocketDisconnected()

	// Clients never send frames; CloseRead handles control frames and
	// cancels ctx once the peer goes away.
	ctx := c.CloseRead(r.Context())

	snapshot := notify.MatchEvent{Type: notify.EventMatchSnapshot, MatchID: matchID, Match: m}
	err = s.writePump(ctx, c, snapshot, sub)

	switch {
	case err == nil:
		c.Close(MatchEndedCode, "match ended")
	case errors.Is(err, context.Canceled):
		c.Close(websocket.StatusNormalClosure, "")
		err = nil
	}
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
	s.Logger.WithFields(logrus.Fields{"match": matchID, "user": u.UID}).Debug("change feed finished")
}

// writePump returns nil after delivering a terminal event.
func (s *APIServer) writePump(ctx context.Context, c *websocket.Conn, first notify.MatchEvent, sub *notify.Subscription) error {
	if err := writeEvent(ctx, c, first); err != nil {
		return err
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return context.Canceled
			}
			if err := writeEvent(ctx, c, ev); err != nil {
				return err
			}
			if ev.Terminal() {
				return nil
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, wsWriteDeadline)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, c *websocket.Conn, ev notify.MatchEvent) error {
	wctx, cancel := context.WithTimeout(ctx, wsWriteDeadline)
	defer cancel()
	return wsjson.Write(wctx, c, ev)
}
