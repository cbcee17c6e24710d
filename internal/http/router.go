package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	SessionStart http.HandlerFunc
	SessionStop  http.HandlerFunc
	Health       http.HandlerFunc
	Metrics      http.Handler
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	if routes.SessionStart != nil {
		mux.Handle("/internal/control/session-start", method(http.MethodPost, routes.SessionStart))
	}
	if routes.SessionStop != nil {
		mux.Handle("/internal/control/session-stop", method(http.MethodPost, routes.SessionStop))
	}
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", routes.Metrics)
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
