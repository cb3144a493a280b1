// Package httpapi implements the Room Registry's HTTP collaborator: room
// creation/join, TTL and cooldown probes, and the ZIP download endpoint.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/n0remac/classroom-ptt/internal/archiver"
	"github.com/n0remac/classroom-ptt/internal/logging"
	"github.com/n0remac/classroom-ptt/internal/room"
)

type errorBody struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Status    int       `json:"status"`
}

func writeError(w http.ResponseWriter, log *logging.Logger, status int, message string) {
	log.Warnf("http error %d: %s", status, message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{
		Timestamp: time.Now(),
		Message:   message,
		Status:    status,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewRouter wires the Room Registry into a gorilla/mux router under
// /api/v1.
func NewRouter(reg *room.Registry, log *logging.Logger) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/rooms", createRoomHandler(reg, log)).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{code}/join", joinRoomHandler(reg, log)).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{code}/ttl", ttlHandler(reg, log)).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{code}/cooldown", cooldownHandler(reg, log)).Methods(http.MethodGet)
	api.HandleFunc("/storage/{code}/download", downloadHandler(reg, log)).Methods(http.MethodGet)

	return r
}

type createRoomRequest struct {
	EnableCloudRecording bool `json:"enableCloudRecording"`
}

type roomResponse struct {
	Code       string    `json:"code"`
	Persistent bool      `json:"persistent"`
	ExpiredAt  time.Time `json:"expiredAt"`
}

func createRoomHandler(reg *room.Registry, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body createRoomRequest
		if req.ContentLength != 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, log, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		r := reg.CreateRoom(body.EnableCloudRecording)
		writeJSON(w, http.StatusCreated, roomResponse{
			Code:       r.Code,
			Persistent: r.Persistent,
			ExpiredAt:  r.ExpiredAt,
		})
	}
}

func joinRoomHandler(reg *room.Registry, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		code := mux.Vars(req)["code"]
		r, ok := reg.Get(code)
		if !ok {
			writeError(w, log, http.StatusNotFound, "room not found")
			return
		}
		writeJSON(w, http.StatusOK, roomResponse{
			Code:       r.Code,
			Persistent: r.Persistent,
			ExpiredAt:  r.ExpiredAt,
		})
	}
}

type ttlResponse struct {
	Code string `json:"code"`
	TTL  int64  `json:"ttl"`
}

func ttlHandler(reg *room.Registry, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		code := mux.Vars(req)["code"]
		ttl, ok := reg.TTL(code)
		if !ok {
			writeError(w, log, http.StatusNotFound, "room not found")
			return
		}
		writeJSON(w, http.StatusOK, ttlResponse{Code: code, TTL: ttl.Milliseconds()})
	}
}

type cooldownResponse struct {
	Code     string `json:"code"`
	Cooldown int64  `json:"cooldown"`
}

func cooldownHandler(reg *room.Registry, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		code := mux.Vars(req)["code"]
		cd, ok := reg.Cooldown(code)
		if !ok {
			writeError(w, log, http.StatusNotFound, "room not found or cooldown expired")
			return
		}
		writeJSON(w, http.StatusOK, cooldownResponse{Code: code, Cooldown: cd.Milliseconds()})
	}
}

func downloadHandler(reg *room.Registry, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		code := mux.Vars(req)["code"]
		entries, ok := reg.DownloadEntries(code)
		if !ok {
			writeError(w, log, http.StatusNotFound, "room not found or cooldown expired")
			return
		}
		data, err := archiver.BuildZIP(code, entries, time.Now())
		if err != nil {
			writeError(w, log, http.StatusInternalServerError, "failed to build archive")
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", "attachment; filename="+code+".zip")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
