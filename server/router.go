package server

import (
	"net/http"

	"orbitfire/server/handler"
)

func Route(accept *handler.AcceptHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", accept)
	mux.Handle("GET /healthz", handler.NewHealthHandler())
	return mux
}
