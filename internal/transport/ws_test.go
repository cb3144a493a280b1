package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/n0remac/classroom-ptt/internal/logging"
	"github.com/n0remac/classroom-ptt/internal/room"
)

func newTestServer(t *testing.T) (*room.Registry, *httptest.Server) {
	t.Helper()
	log := logging.New(logging.LevelError)
	reg := room.NewRegistry(time.Hour, 6*time.Hour, "", log)
	r := mux.NewRouter()
	RegisterRoutes(r, reg, log)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return reg, srv
}

func dial(t *testing.T, srv *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + code
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	return conn
}

func TestUnknownRoomCodeRejected(t *testing.T) {
	_, srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ZZZ999"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("want dial to fail for unknown room")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %+v", resp)
	}
}

func TestMalformedRoomCodeRejected(t *testing.T) {
	_, srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/not-a-code"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("want dial to fail for malformed room code")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %+v", resp)
	}
}

func TestAcceptSendsHelloGreeting(t *testing.T) {
	reg, srv := newTestServer(t)
	r := reg.CreateRoom(false)
	defer r.Handler.Shutdown()

	conn := dial(t, srv, r.Code)
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if string(data) != helloGreeting {
		t.Fatalf("want %q, got %q", helloGreeting, string(data))
	}
}

func TestRoundTripThroughHandler(t *testing.T) {
	reg, srv := newTestServer(t)
	r := reg.CreateRoom(false)
	defer r.Handler.Shutdown()

	listener := dial(t, srv, r.Code)
	defer listener.Close()
	if _, _, err := listener.ReadMessage(); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if err := listener.WriteMessage(websocket.TextMessage, []byte("LISTEN")); err != nil {
		t.Fatalf("write LISTEN: %v", err)
	}

	speaker := dial(t, srv, r.Code)
	defer speaker.Close()
	if _, _, err := speaker.ReadMessage(); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if err := speaker.WriteMessage(websocket.TextMessage, []byte("RTSalice")); err != nil {
		t.Fatalf("write RTS: %v", err)
	}

	if err := speaker.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, data, err := speaker.ReadMessage()
	if err != nil {
		t.Fatalf("read CTS: %v", err)
	}
	if string(data) != "CTS" {
		t.Fatalf("want CTS, got %q", string(data))
	}
}
