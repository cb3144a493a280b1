// Package transport adapts gorilla/websocket connections onto room actors.
// It owns the upgrade, the room-code validation, and the read/write pump
// pair for each connection; all message semantics live in ptt.Handler.
package transport

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/n0remac/classroom-ptt/internal/logging"
	"github.com/n0remac/classroom-ptt/internal/ptt"
	"github.com/n0remac/classroom-ptt/internal/room"
)

var roomCodePattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)

const helloGreeting = "Hello from WebSocket!"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Rooms are authorized by code, not by browser origin, so there's
		// nothing an origin check would protect here.
		return true
	},
}

// RegisterRoutes mounts the WebSocket endpoint at /{code} on r.
func RegisterRoutes(r *mux.Router, reg *room.Registry, log *logging.Logger) {
	r.HandleFunc("/{code}", serveRoom(reg, log))
}

func serveRoom(reg *room.Registry, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		code := mux.Vars(req)["code"]
		if !roomCodePattern.MatchString(code) {
			http.Error(w, "invalid room code", http.StatusBadRequest)
			return
		}
		rm, ok := reg.Get(code)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Warnf("ws upgrade %s: %v", code, err)
			return
		}

		peer := ptt.NewPeer(uuid.NewString(), conn)
		go writePump(conn, peer, log)

		if err := conn.WriteMessage(websocket.TextMessage, []byte(helloGreeting)); err != nil {
			log.Warnf("ws hello %s: %v", code, err)
			rm.Handler.NotifyClose(peer)
			return
		}

		readPump(conn, peer, rm.Handler, log)
	}
}

func writePump(conn *websocket.Conn, peer *ptt.Peer, log *logging.Logger) {
	defer conn.Close()
	peer.WritePump(func(wireType ptt.WireType, data []byte) error {
		frameType := websocket.TextMessage
		if wireType == ptt.WireBinary {
			frameType = websocket.BinaryMessage
		}
		return conn.WriteMessage(frameType, data)
	})
}

func readPump(conn *websocket.Conn, peer *ptt.Peer, h *ptt.Handler, log *logging.Logger) {
	defer func() {
		h.NotifyClose(peer)
		conn.Close()
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.Dispatch(peer, messageType == websocket.BinaryMessage, data)
	}
}
