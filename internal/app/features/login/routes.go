// internal/app/features/login/routes.go
package login

import "github.com/go-chi/chi/v5"

// Routes returns the subrouter mounted at /login. The MFA endpoints rely on
// the pre-MFA session written by the password step; they redirect to /login
// when no session is present.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ServeLogin)
	r.Post("/", h.HandleLoginPost)

	r.Get("/mfa", h.ServeMFA)
	r.Post("/mfa", h.HandleMFAPost)
	r.Post("/mfa/resend", h.HandleMFAResend)

	return r
}
