package v1

import (
	"context"
	"net/http"
	"strings"

	"github.com/unrolled/secure"
)

type ctxKey string

const ctxKeyActor ctxKey = "actor"

// ActorHeader carries the opaque identity of the caller.
const ActorHeader = "X-Actor-ID"

// defaultActor is recorded when no identity is supplied.
const defaultActor = "system"

// withActor stores the caller identity from ActorHeader in the request context.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" {
			actor = defaultActor
		}
		if len(actor) > 200 {
			badRequest(w, "actor id too long")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyActor, actor)))
	})
}

func actorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(ctxKeyActor).(string); ok {
		return a
	}
	return defaultActor
}

// secureHeaders sets the standard hardening headers on every response.
func secureHeaders() func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
	}).Handler
}
