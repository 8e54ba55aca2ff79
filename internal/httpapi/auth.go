package httpapi

import (
	"net/http"

	coreerrors "github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/infrastructure/httputil"
	"github.com/stefanposs/webmacs/infrastructure/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	PublicID    string `json:"public_id"`
	Username    string `json:"username"`
}

func (d *Deps) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if !middleware.IsValidEmail(req.Email) {
		handleErr(w, r, d.Logger, coreerrors.InvalidInput("email", "not a valid email address"))
		return
	}
	token, user, err := d.AuthSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleErr(w, r, d.Logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loginResponse{AccessToken: token, PublicID: user.PublicID, Username: user.Username})
}

func (d *Deps) logout(w http.ResponseWriter, r *http.Request) {
	token := extractBearer(r)
	if token == "" {
		httputil.Unauthorized(w, "missing bearer token")
		return
	}
	if err := d.AuthSvc.Logout(r.Context(), token); err != nil {
		handleErr(w, r, d.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
