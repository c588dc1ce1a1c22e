package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter mounts the report handler on "/" and "/api/report" for every method,
// so that method rejection stays with the handler.
func NewRouter(reportHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", Health).Methods(http.MethodGet)
	r.Handle("/api/report", reportHandler)
	r.Handle("/", reportHandler)
	return r
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}
