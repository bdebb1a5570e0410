// Package transport implements the WebSocket carrier for the streaming
// session protocol of spec §6.1: one connection is one session, carrying
// JSON text frames for Init/DataChunk/Control inbound and Ready/
// ChunkResult/Error/Closed outbound, grounded on the teacher's
// providers/openai realtime-websocket client's json.Marshal-over-
// websocket.TextMessage framing (here run as a server instead of a
// client).
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mediarun/runtime/logger"
	"github.com/mediarun/runtime/manifest"
	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/runtime"
	"github.com/mediarun/runtime/session"
	"github.com/mediarun/runtime/wire"
)

const (
	writeWait           = 10 * time.Second
	maxMessageSize      = 32 * 1024 * 1024
	controlCommandClose = "Close"
)

// ClientMessageType tags the three shapes a client ever sends.
type ClientMessageType string

const (
	ClientInit      ClientMessageType = "Init"
	ClientDataChunk ClientMessageType = "DataChunk"
	ClientControl   ClientMessageType = "Control"
)

// InitPayload is the Init message body (spec §6.1).
type InitPayload struct {
	Manifest      manifest.PipelineManifest `json:"manifest"`
	ClientVersion string                    `json:"client_version"`
}

// DataChunkPayload is the DataChunk message body.
type DataChunkPayload struct {
	TargetNodeID string                 `json:"target_node_id"`
	Buffer       *wire.Buffer           `json:"buffer,omitempty"`
	NamedBuffers map[string]wire.Buffer `json:"named_buffers,omitempty"`
	Sequence     uint64                 `json:"sequence"`
	TimestampMs  int64                  `json:"timestamp_ms"`
}

// ControlPayload is the Control message body; Command is "Close".
type ControlPayload struct {
	Command string `json:"command"`
}

// ClientMessage is one inbound frame. Exactly one payload field is set,
// matching Type.
type ClientMessage struct {
	Type      ClientMessageType `json:"type"`
	Init      *InitPayload      `json:"init,omitempty"`
	DataChunk *DataChunkPayload `json:"data_chunk,omitempty"`
	Control   *ControlPayload   `json:"control,omitempty"`
}

// Server upgrades HTTP connections to WebSocket and runs one Session per
// connection against a shared runtime.Runtime.
type Server struct {
	rt       *runtime.Runtime
	upgrader websocket.Upgrader
}

// NewServer constructs a Server borrowing rt's shared compiler, gate,
// scheduler, and event bus for every session it opens.
func NewServer(rt *runtime.Runtime) *Server {
	return &Server{
		rt: rt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the session for the lifetime of
// the connection. It returns once the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("transport: upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	sess := s.rt.OpenSession("")
	defer s.rt.Sessions().Forget(sess.ID())

	done := make(chan struct{})
	go s.writeLoop(conn, sess, done)
	s.readLoop(conn, sess)
	<-done
}

func (s *Server) readLoop(conn *websocket.Conn, sess *session.Session) {
	initialized := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !initialized {
				_ = sess.Close(context.Background())
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Error("transport: malformed client message", "session_id", sess.ID(), "error", err)
			continue
		}

		switch msg.Type {
		case ClientInit:
			if msg.Init == nil || initialized {
				continue
			}
			initialized = true
			if err := sess.Init(context.Background(), msg.Init.ClientVersion, msg.Init.Manifest); err != nil {
				logger.Error("transport: session init failed", "session_id", sess.ID(), "error", err)
				return
			}
		case ClientDataChunk:
			if msg.DataChunk == nil {
				continue
			}
			chunk := node.Chunk{
				TargetNodeID: msg.DataChunk.TargetNodeID,
				Buffer:       msg.DataChunk.Buffer,
				NamedBuffers: msg.DataChunk.NamedBuffers,
				Sequence:     msg.DataChunk.Sequence,
				TimestampMs:  msg.DataChunk.TimestampMs,
			}
			if err := sess.Push(chunk); err != nil {
				logger.Error("transport: push failed", "session_id", sess.ID(), "error", err)
			}
		case ClientControl:
			if msg.Control != nil && msg.Control.Command == controlCommandClose {
				_ = sess.Close(context.Background())
				return
			}
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, sess *session.Session, done chan<- struct{}) {
	defer close(done)
	for msg := range sess.Messages() {
		data, err := json.Marshal(msg)
		if err != nil {
			logger.Error("transport: encode server message failed", "session_id", sess.ID(), "error", err)
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
