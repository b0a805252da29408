package server

import (
	"net/http"
	"strings"

	"github.com/zeusync/boardsync/internal/collab"
)

// ActorHeader carries the writer identity on REST calls. Websocket clients
// may pass it as the actor query parameter instead.
const ActorHeader = "X-Actor"

// actorMiddleware puts the caller identity into the request context.
// Requests without one are rejected, except the health check.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" {
			actor = strings.TrimSpace(r.URL.Query().Get("actor"))
		}
		if actor == "" {
			writeError(w, ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(collab.WithActor(r.Context(), actor)))
	})
}
