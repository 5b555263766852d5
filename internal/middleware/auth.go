package middleware

import (
	"net/http"

	"github.com/dukerupert/choreflow/internal/auth"
	"github.com/dukerupert/choreflow/internal/store"
)

const (
	ActorHeader = "X-Actor-ID"
	PINHeader   = "X-Actor-PIN"
)

// RequireActor resolves the participant named by X-Actor-ID, checks
// X-Actor-PIN against their PIN and populates the request's Actor.
// Approvers without a PIN are refused.
func RequireActor(participants *store.ParticipantStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(ActorHeader)
			if id == "" {
				http.Error(w, "Missing "+ActorHeader, http.StatusUnauthorized)
				return
			}

			p, err := participants.GetParticipant(r.Context(), id)
			if err != nil {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if p == nil {
				http.Error(w, "Unknown actor", http.StatusUnauthorized)
				return
			}

			if p.IsApprover() && !p.HasPIN {
				http.Error(w, "Approver PIN not set", http.StatusUnauthorized)
				return
			}

			ok, err := participants.VerifyPIN(r.Context(), id, r.Header.Get(PINHeader))
			if err != nil {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(w, "Incorrect PIN", http.StatusUnauthorized)
				return
			}

			ctx := auth.WithActor(r.Context(), auth.Actor{ParticipantID: p.ID, Role: p.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireApprover checks that the actor has the approver role.
func RequireApprover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsApprover(r.Context()) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
