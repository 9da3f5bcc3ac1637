package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"qms/virtual-queue/internal/auth"
	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/observability"
	"qms/virtual-queue/internal/queue"
)

const adminRedirect = "/"

type authContextKey struct{}

type authInfo struct {
	Token    string
	Identity auth.Identity
	Profile  models.Profile
}

func (a authInfo) actor() queue.Actor {
	return queue.Actor{
		UID:   a.Identity.UID,
		Email: a.Identity.Email,
		Name:  a.Profile.Name,
		Admin: a.Profile.IsAdmin(),
	}
}

// requireSession resolves the session token and makes sure the caller has
// a profile before the handler runs.
func (h *Handler) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := sessionTokenFromRequest(r)
		if token == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		identity, err := h.auth.Resolve(r.Context(), token)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		profile, err := h.auth.Profile(r.Context(), identity)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Token: token, Identity: identity, Profile: profile})
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin runs the admin check on every admin request. A caller who
// fails it is signed out and told where to go.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return h.requireSession(func(w http.ResponseWriter, r *http.Request) {
		info, _ := authFromContext(r.Context())
		profile, err := h.auth.VerifyAdmin(r.Context(), info.Identity)
		if err != nil {
			if !errors.Is(err, auth.ErrNotAdmin) {
				h.fail(w, r, err)
				return
			}
			if signOutErr := h.auth.SignOut(r.Context(), info.Token); signOutErr != nil {
				observability.LoggerFromContext(r.Context()).Error().Err(signOutErr).Msg("forced sign-out")
			}
			observability.LoggerFromContext(r.Context()).Warn().
				Str("uid", info.Identity.UID).
				Str("path", r.URL.Path).
				Msg("non-admin reached admin route")
			writeErrorData(w, requestIDFromRequest(r), http.StatusForbidden, "forbidden", "admin access required",
				map[string]string{"redirect": adminRedirect})
			return
		}
		info.Profile = profile
		ctx := context.WithValue(r.Context(), authContextKey{}, info)
		next(w, r.WithContext(ctx))
	})
}

func authFromContext(ctx context.Context) (authInfo, bool) {
	info, ok := ctx.Value(authContextKey{}).(authInfo)
	return info, ok
}

func actorFromRequest(r *http.Request) queue.Actor {
	info, _ := authFromContext(r.Context())
	return info.actor()
}

func sessionTokenFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-Token"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
