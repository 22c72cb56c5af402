package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"rps_duel/internal/config"
	httpserver "rps_duel/internal/http"
	"rps_duel/internal/service"
	"rps_duel/internal/session"
	"rps_duel/internal/store"
)

// Full-stack test over real websockets: auth, room create/join, one round.
// Rooms live in the in-memory store so no external services are needed.
func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	os.Setenv("JWT_SECRET", "test-secret")
	service.InitJWT()

	cfg := &config.Config{
		AppPort:       "0",
		JWTSecret:     "test-secret",
		APIRateLimit:  1000,
		APIRateWindow: time.Minute,
	}

	sessions := session.Config{
		Store: store.NewMemory(clockwork.NewRealClock()),
		// short delays so resolved rounds clear within the test window
		DisplayDelay:       200 * time.Millisecond,
		ResponseClearDelay: 200 * time.Millisecond,
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	httpserver.RegisterRoutes(r, cfg, sessions, nil, nil, "test")

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func mintToken(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	res, err := http.Post(ts.URL+"/api/auth", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Token    string `json:"token"`
		PlayerID string `json:"player_id"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	require.NotEmpty(t, body.PlayerID)
	return body.Token
}

func dialWS(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitFrame reads frames until one of the wanted type arrives.
func waitFrame(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			continue
		}
		var obj map[string]any
		require.NoError(t, json.Unmarshal(msg, &obj))
		if obj["type"] == typ {
			return obj
		}
	}
	t.Fatalf("no %q frame within deadline", typ)
	return nil
}

// waitView reads state frames until ok returns true for the embedded view.
func waitView(t *testing.T, conn *websocket.Conn, ok func(view map[string]any) bool) map[string]any {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			continue
		}
		var obj map[string]any
		require.NoError(t, json.Unmarshal(msg, &obj))
		if obj["type"] != "state" {
			continue
		}
		view, _ := obj["view"].(map[string]any)
		if view != nil && ok(view) {
			return view
		}
	}
	t.Fatal("no matching state frame within deadline")
	return nil
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func TestE2E_WS_OneRound(t *testing.T) {
	ts := startServer(t)

	connA := dialWS(t, ts, mintToken(t, ts))
	connB := dialWS(t, ts, mintToken(t, ts))

	waitFrame(t, connA, "ready")
	waitFrame(t, connB, "ready")

	// A creates the room, B joins it by code
	send(t, connA, `{"type":"create"}`)
	joined := waitFrame(t, connA, "joined")
	code, _ := joined["room"].(string)
	require.Len(t, code, 4)

	send(t, connB, `{"type":"join","room":"`+code+`"}`)
	waitFrame(t, connB, "joined")

	// both sides see the game start
	waitView(t, connA, func(v map[string]any) bool { return v["phase"] == "playing" })
	waitView(t, connB, func(v map[string]any) bool { return v["phase"] == "playing" })

	// rock beats scissors
	send(t, connA, `{"type":"move","value":"rock"}`)
	send(t, connB, `{"type":"move","value":"scissors"}`)

	viewA := waitView(t, connA, func(v map[string]any) bool { return v["result"] == "win" })
	require.Equal(t, float64(1), viewA["round"])
	require.Equal(t, float64(1), viewA["your_score"])
	require.Equal(t, float64(0), viewA["opp_score"])
	require.Equal(t, "rock", viewA["your_move"])
	require.Equal(t, "scissors", viewA["opp_move"])

	viewB := waitView(t, connB, func(v map[string]any) bool { return v["result"] == "lose" })
	require.Equal(t, float64(0), viewB["your_score"], "loser keeps zero wins")
	require.Equal(t, float64(1), viewB["opp_score"])
	require.Equal(t, float64(1), viewB["round"])

	// display delay elapses and the board clears for round two
	waitView(t, connA, func(v map[string]any) bool {
		return v["result"] == nil && v["your_moved"] == false && v["opp_moved"] == false
	})
}

func TestE2E_WS_JoinErrors(t *testing.T) {
	ts := startServer(t)

	conn := dialWS(t, ts, mintToken(t, ts))
	waitFrame(t, conn, "ready")

	send(t, conn, `{"type":"join","room":"toolongcode"}`)
	errFrame := waitFrame(t, conn, "error")
	require.Contains(t, errFrame["message"], "valid 4-character")

	// full room rejects a third player
	send(t, conn, `{"type":"create"}`)
	joined := waitFrame(t, conn, "joined")
	code := joined["room"].(string)

	connB := dialWS(t, ts, mintToken(t, ts))
	waitFrame(t, connB, "ready")
	send(t, connB, `{"type":"join","room":"`+code+`"}`)
	waitFrame(t, connB, "joined")

	connC := dialWS(t, ts, mintToken(t, ts))
	waitFrame(t, connC, "ready")
	send(t, connC, `{"type":"join","room":"`+code+`"}`)
	errFrame = waitFrame(t, connC, "error")
	require.Contains(t, errFrame["message"], "full")
}

func TestE2E_WS_HostLeaveDeletesRoom(t *testing.T) {
	ts := startServer(t)

	connA := dialWS(t, ts, mintToken(t, ts))
	connB := dialWS(t, ts, mintToken(t, ts))
	waitFrame(t, connA, "ready")
	waitFrame(t, connB, "ready")

	send(t, connA, `{"type":"create"}`)
	joined := waitFrame(t, connA, "joined")
	code := joined["room"].(string)

	send(t, connB, `{"type":"join","room":"`+code+`"}`)
	waitFrame(t, connB, "joined")

	send(t, connA, `{"type":"leave"}`)
	waitFrame(t, connA, "left")

	// guest learns the room is gone
	ended := waitFrame(t, connB, "ended")
	require.Equal(t, "room_deleted", ended["reason"])
}
