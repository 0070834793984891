package server

import (
	"net/http"
	"time"
)

// Run serves the router on addr. ReadHeaderTimeout bounds slow
// handshakes; the established websockets themselves stay open until
// the peer goes away.
func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Handler:           s.Router(),
		Addr:              addr,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.log.Info("listening", "addr", addr)
	return srv.ListenAndServe()
}
