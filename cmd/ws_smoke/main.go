package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// Smoke test against a running server: mint two identities through
// /api/auth, seat both in one room over /ws and play a single round.
func main() {
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://127.0.0.1:%s", port)

	tokenA := mintToken(base)
	tokenB := mintToken(base)

	dialer := websocket.DefaultDialer

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	connA, _, err := dialer.Dial(fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, tokenA), nil)
	if err != nil {
		log.Fatalf("dial A: %v", err)
	}
	defer connA.Close()

	connB, _, err := dialer.Dial(fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, tokenB), nil)
	if err != nil {
		log.Fatalf("dial B: %v", err)
	}
	defer connB.Close()

	waitFor := func(conn *websocket.Conn, name, typ string) map[string]any {
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				continue
			}
			log.Printf("%s got: %s", name, string(msg))
			var obj map[string]any
			_ = json.Unmarshal(msg, &obj)
			if t, ok := obj["type"].(string); ok && t == typ {
				return obj
			}
		}
		log.Fatalf("%s: no %q frame within deadline", name, typ)
		return nil
	}

	waitFor(connA, "A", "ready")
	waitFor(connB, "B", "ready")

	// A creates a room, B joins it by code
	write(connA, `{"type":"create"}`)
	joined := waitFor(connA, "A", "joined")
	code, _ := joined["room"].(string)
	if code == "" {
		log.Fatal("no room code in joined frame")
	}
	log.Printf("room code: %s", code)

	write(connB, fmt.Sprintf(`{"type":"join","room":%q}`, code))
	waitFor(connB, "B", "joined")

	// one round: rock beats scissors
	write(connA, `{"type":"move","value":"rock"}`)
	write(connB, `{"type":"move","value":"scissors"}`)

	waitFor(connA, "A", "state")
	waitFor(connB, "B", "state")

	write(connA, `{"type":"leave"}`)
	log.Println("smoke test finished")
}

func mintToken(base string) string {
	res, err := http.Post(base+"/api/auth", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		log.Fatalf("auth request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		log.Fatalf("auth status: %d", res.StatusCode)
	}
	var body struct {
		Token    string `json:"token"`
		PlayerID string `json:"player_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		log.Fatalf("auth decode: %v", err)
	}
	log.Printf("minted identity %s", body.PlayerID)
	return body.Token
}

func write(conn *websocket.Conn, msg string) {
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		log.Fatalf("write: %v", err)
	}
}
