package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/CynnixSinn/CyneticsIDE/internal/collab"
	"github.com/CynnixSinn/CyneticsIDE/internal/debug"
	"github.com/CynnixSinn/CyneticsIDE/internal/fsops"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires the websocket surface to the collaboration core.
type Server struct {
	reg      *collab.Registry
	files    *fsops.Service
	debugger *debug.Manager
	log      *slog.Logger
}

func New(reg *collab.Registry, files *fsops.Service, debugger *debug.Manager, log *slog.Logger) *Server {
	return &Server{
		reg:      reg,
		files:    files,
		debugger: debugger,
		log:      log.With("component", "server"),
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.ws)
	r.HandleFunc("/rooms/{id}/tree", s.tree).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	return r
}

// ws performs the connection handshake. roomId, participantId and
// profile are all required; missing any is fatal to the connection and
// nothing is attached. An unknown roomId is never an error, the room is
// created on first reference.
func (s *Server) ws(w http.ResponseWriter, r *http.Request) {
	roomID, participantID, profile, err := parseHandshake(r)
	if err != nil {
		s.log.Warn("handshake rejected", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "err", err)
		return
	}

	part := collab.Participant{
		ID:      participantID,
		Profile: profileBlob(profile),
	}
	c := newClient(s, conn, part)
	c.attach(roomID)
	c.interact()
}

// parseHandshake extracts the required connect parameters. Missing any
// is fatal to the connection; nothing gets attached.
func parseHandshake(r *http.Request) (roomID, participantID, profile string, err error) {
	q := r.URL.Query()
	roomID = q.Get("roomId")
	participantID = q.Get("participantId")
	profile = q.Get("profile")
	if roomID == "" || participantID == "" || profile == "" {
		return "", "", "", fmt.Errorf("%w: roomId, participantId and profile are required", collab.ErrHandshake)
	}
	return roomID, participantID, profile, nil
}

// profileBlob passes the profile through opaque; non-JSON profiles are
// wrapped so the envelope stays valid JSON.
func profileBlob(raw string) json.RawMessage {
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}

func (s *Server) tree(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	paths, err := s.files.Tree(r.Context(), roomID)
	if err != nil {
		s.log.Warn("tree listing failed", "room", roomID, "err", err)
		http.Error(w, "tree listing failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(paths); err != nil {
		s.log.Warn("tree encode failed", "room", roomID, "err", err)
	}
}
