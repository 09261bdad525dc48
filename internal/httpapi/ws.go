package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pdrpinto/gridpath"
)

// wsRequest is one text frame sent by a client. ID is echoed in the result so
// clients can match results, which arrive in completion order.
type wsRequest struct {
	ID     string         `json:"id"`
	Start  *gridpath.Vec3 `json:"start"`
	Target *gridpath.Vec3 `json:"target"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeMsgpack(v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *Server) streamPaths(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("ws_upgrade_failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &wsConn{conn: conn}
	var pending sync.WaitGroup
	defer pending.Wait()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			cancel()
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var message wsRequest
		if err := json.Unmarshal(payload, &message); err != nil || message.Start == nil || message.Target == nil {
			s.logger.Debug("ws_discard_malformed", slog.Int("bytes", len(payload)))
			_ = out.writeMsgpack(pathResponse{ID: message.ID, Status: statusError, Error: "start and target positions are required"})
			continue
		}

		request := s.service.RequestPath(ctx, *message.Start, *message.Target)
		id := message.ID
		if id == "" {
			id = request.ID.String()
		}
		pending.Add(1)
		go func() {
			defer pending.Done()
			result, err := request.Wait(ctx)
			if err != nil && ctx.Err() != nil {
				return
			}
			if err := out.writeMsgpack(newPathResponse(id, request, result, err)); err != nil {
				s.logger.Debug("ws_write_failed", slog.String("error", err.Error()))
			}
		}()
	}
}
