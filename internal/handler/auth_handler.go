package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/doguto/nari-note-sub000/internal/domain"
	"github.com/doguto/nari-note-sub000/internal/middleware"
	"github.com/doguto/nari-note-sub000/internal/response"
	"github.com/doguto/nari-note-sub000/internal/service"
)

// CookieConfig controls the auth cookie.
type CookieConfig struct {
	Name string
	// Secure also switches SameSite from Lax to Strict.
	Secure bool
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth   *service.AuthService
	cookie CookieConfig
	log    *zap.Logger
	now    func() time.Time
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(auth *service.AuthService, cookie CookieConfig, log *zap.Logger) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = middleware.DefaultCookieName
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{auth: auth, cookie: cookie, log: log, now: time.Now}
}

type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

type UserResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Bio   string `json:"bio,omitempty"`
}

// AuthResponse carries the token for Bearer clients; browsers use the cookie.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

type SessionResponse struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Current   bool      `json:"current"`
}

// SignUp handles POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, h.log, err)
		return
	}

	res, err := h.auth.SignUp(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	h.writeAuth(w, http.StatusCreated, res)
}

// SignIn handles POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, h.log, err)
		return
	}

	res, err := h.auth.SignIn(r.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	h.writeAuth(w, http.StatusOK, res)
}

func (h *AuthHandler) writeAuth(w http.ResponseWriter, status int, res *service.AuthResult) {
	h.setCookie(w, res.Token, res.Session.ExpiresAt)
	response.JSON(w, status, AuthResponse{
		Token:     res.Token,
		ExpiresAt: res.TokenExpiresAt,
		User:      userResponse(res.User),
	})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	user, err := h.auth.Me(r.Context(), id.UserID)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, userResponse(user))
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.auth.Logout(r.Context(), id.SessionKey); err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	h.clearCookie(w)
	response.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// LogoutAll handles POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	n, err := h.auth.LogoutAll(r.Context(), id.UserID)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	h.clearCookie(w)
	response.JSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

// Sessions handles GET /auth/sessions
func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	sessions, err := h.auth.Sessions(r.Context(), id.UserID)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionResponse{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			Current:   s.SessionKey == id.SessionKey,
		})
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(h.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, h.baseCookie(token, maxAge))
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, h.baseCookie("", -1))
}

func (h *AuthHandler) baseCookie(value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if h.cookie.Secure {
		sameSite = http.SameSiteStrictMode
	}
	return &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: sameSite,
	}
}

func userResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Bio: u.Bio}
}
