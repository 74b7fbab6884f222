package controllers

import (
	"context"
	"net/http"

	"github.com/mentorahq/mentora-backend/api/middleware"
	"github.com/mentorahq/mentora-backend/api/responses"
)

// Pinger reports dependency liveness for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if userID := middleware.UserIDFromContext(r.Context()); userID != "" {
			payload["user_id"] = userID
		}
		responses.WriteSuccess(w, payload)
	}
}
