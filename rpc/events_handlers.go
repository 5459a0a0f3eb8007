package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"nftsettle/storage"
)

const wsWriteTimeout = 10 * time.Second

type eventsSinceParams struct {
	From uint64 `json:"from"`
}

func (s *Server) handleEventsSince(w http.ResponseWriter, req *RPCRequest) {
	var params eventsSinceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	if s.feed == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "event feed unavailable", nil)
		return
	}
	backlog, err := s.feed.Backlog(params.From)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "event backfill failed", err.Error())
		return
	}
	if backlog == nil {
		backlog = []storage.StoredEvent{}
	}
	writeResult(w, req.ID, backlog)
}

// handleEventsWS streams settlement events over a websocket. An optional
// cursor query parameter replays journaled events from that sequence before
// switching to live delivery.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		http.Error(w, "event feed unavailable", http.StatusServiceUnavailable)
		return
	}
	var cursor uint64
	var replay bool
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
		replay = true
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, cursor, replay); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor uint64, replay bool) error {
	updates, cancel := s.feed.Subscribe()
	defer cancel()

	if replay {
		backlog, err := s.feed.Backlog(cursor)
		if err != nil {
			return err
		}
		for _, stored := range backlog {
			if err := writeStoredEvent(ctx, conn, stored); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case stored, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeStoredEvent(ctx, conn, stored); err != nil {
				return err
			}
		}
	}
}

func writeStoredEvent(ctx context.Context, conn *websocket.Conn, stored storage.StoredEvent) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
