package sdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HsiangNianian/AMonItor/neurosdk/internal/action"
	"github.com/HsiangNianian/AMonItor/neurosdk/internal/protocol"
	"github.com/HsiangNianian/AMonItor/neurosdk/internal/ws"
)

func startPeer(t *testing.T) (string, <-chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return "ws://" + strings.TrimPrefix(srv.URL, "http://"), conns
}

func nextConn(t *testing.T, conns <-chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("game never connected")
		return nil
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env protocol.Envelope
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("peer decode: %v", err)
	}
	return env
}

func TestSessionEndToEnd(t *testing.T) {
	url, conns := startPeer(t)
	game := New("Chess", url, WithSessionOptions(
		ws.WithReconnectInterval(50*time.Millisecond),
		ws.WithPingInterval(time.Minute),
	))
	if err := game.RegisterActions(moveAction("move", nil)); err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() { errc <- game.Run(context.Background()) }()
	t.Cleanup(game.Shutdown)

	conn := nextConn(t, conns)
	if env := readFrame(t, conn); env.Command != protocol.CommandStartup || env.Game != "Chess" {
		t.Fatalf("first frame = %+v", env)
	}
	// Registry resend, then the queued registration from before Run.
	for i := 0; i < 2; i++ {
		if env := readFrame(t, conn); env.Command != protocol.CommandRegisterActions {
			t.Fatalf("frame %d = %+v", i, env)
		}
	}

	resolved := make(chan string, 1)
	pass := action.NewWithoutPayload("pass", "Pass the turn", action.PlainFuncs{Message: "passed"})
	if err := game.ForceAction(nil, "Your move", false, []action.Action{pass}, func(_ context.Context, a action.Action) {
		resolved <- a.Name()
	}); err != nil {
		t.Fatal(err)
	}
	if env := readFrame(t, conn); env.Command != protocol.CommandRegisterActions {
		t.Fatalf("force registration = %+v", env)
	}
	if env := readFrame(t, conn); env.Command != protocol.CommandForceActions {
		t.Fatalf("force frame = %+v", env)
	}

	request := `{"command":"action","data":{"id":"r1","name":"pass"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(request)); err != nil {
		t.Fatal(err)
	}

	// The unregistration of the forced set is queued before the result.
	if env := readFrame(t, conn); env.Command != protocol.CommandUnregisterActions {
		t.Fatalf("frame after action = %+v", env)
	}
	env := readFrame(t, conn)
	if env.Command != protocol.CommandActionResult {
		t.Fatalf("result frame = %+v", env)
	}
	var res protocol.ActionResultPayload
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.ID != "r1" || !res.Success || res.Message != "passed" {
		t.Fatalf("result = %+v", res)
	}
	select {
	case name := <-resolved:
		if name != "pass" {
			t.Fatalf("resolved with %q", name)
		}
	case <-time.After(time.Second):
		t.Fatal("force callback not called")
	}

	game.Shutdown()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return")
	}
}
