package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mediarun/runtime/catalog"
	"github.com/mediarun/runtime/manifest"
	"github.com/mediarun/runtime/pkg/config"
	"github.com/mediarun/runtime/runtime"
	"github.com/mediarun/runtime/session"
	"github.com/mediarun/runtime/wire"
)

func jsonBufferPtr(payload string) *wire.Buffer {
	b := wire.NewJSONBuffer(wire.JSON{Payload: []byte(payload)})
	return &b
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	rt, err := runtime.New(runtime.Options{
		Config:            cfg,
		VersionConstraint: ">=1.0.0, <2.0.0",
		SupportedVersions: []string{"1.0.0"},
	})
	require.NoError(t, err)
	s := NewServer(rt)
	return httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
}

// TestSessionScenarioS1OverWebSocket drives the literal S1 scenario
// through an actual WebSocket round trip: Init, one DataChunk, Close,
// expecting Ready, one ChunkResult{result:15}, then Closed{normal}.
func TestSessionScenarioS1OverWebSocket(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	params, err := json.Marshal(catalog.CalculatorParams{Op: catalog.OpAdd, Value: 5})
	require.NoError(t, err)

	initMsg := ClientMessage{
		Type: ClientInit,
		Init: &InitPayload{
			ClientVersion: "1.0.0",
			Manifest: manifest.PipelineManifest{
				ProtocolVersion: "1.0.0",
				Nodes:           []manifest.NodeManifest{{ID: "c", NodeType: "calculator", Params: params}},
				Connections:     []manifest.Connection{{FromNode: "c", ToNode: manifest.ClientEndpoint}},
			},
		},
	}
	require.NoError(t, conn.WriteJSON(initMsg))

	var ready session.Message
	require.NoError(t, conn.ReadJSON(&ready))
	require.Equal(t, session.MessageReady, ready.Type)

	chunkMsg := ClientMessage{
		Type: ClientDataChunk,
		DataChunk: &DataChunkPayload{
			TargetNodeID: "c",
			Buffer:       jsonBufferPtr(`{"value":10}`),
			Sequence:     0,
		},
	}
	require.NoError(t, conn.WriteJSON(chunkMsg))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: ClientControl, Control: &ControlPayload{Command: "Close"}}))

	var result session.Message
	require.NoError(t, conn.ReadJSON(&result))
	require.Equal(t, session.MessageChunkResult, result.Type)
	require.Equal(t, "c", result.ChunkResult.TargetNodeID)

	var closed session.Message
	require.NoError(t, conn.ReadJSON(&closed))
	require.Equal(t, session.MessageClosed, closed.Type)
	require.Equal(t, "normal", closed.Closed.Reason)

	_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
}
