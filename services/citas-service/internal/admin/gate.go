package admin

import (
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eecmx/citas/libs/auth"
	"github.com/eecmx/citas/libs/httpx"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionCookie = "citas_session"
	defaultTTL    = 8 * time.Hour
)

// KeySource resolves RS256 verification keys by kid.
type KeySource interface {
	Get(ctx context.Context, keyID string) (*rsa.PublicKey, error)
}

type GateConfig struct {
	Secret       string
	TTL          time.Duration
	Keys         KeySource
	SecureCookie bool
	Now          func() time.Time
}

// Gate authenticates the administrator and guards the appointment API.
type Gate struct {
	users    UserStore
	logger   *slog.Logger
	secret   string
	ttl      time.Duration
	verifier *auth.Verifier
	secure   bool
	now      func() time.Time
}

func NewGate(users UserStore, logger *slog.Logger, cfg GateConfig) *Gate {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	var keys auth.KeyLookup
	if cfg.Keys != nil {
		keys = cfg.Keys.Get
	}
	return &Gate{
		users:    users,
		logger:   logger,
		secret:   cfg.Secret,
		ttl:      cfg.TTL,
		verifier: auth.NewVerifier(auth.VerifierConfig{Secret: cfg.Secret, Keys: keys, Now: cfg.Now}),
		secure:   cfg.SecureCookie,
		now:      cfg.Now,
	}
}

func (g *Gate) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /login", g.Login)
	mux.HandleFunc("POST /logout", g.Logout)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login accepts JSON or form-encoded credentials.
func (g *Gate) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			httpx.WriteMessage(w, http.StatusBadRequest, "Solicitud de inicio de sesión inválida.")
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	} else if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Solicitud de inicio de sesión inválida.")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "Usuario y contraseña son obligatorios.")
		return
	}

	user, err := g.users.FindByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		g.logger.Error("login lookup failed", "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
		httpx.WriteMessage(w, http.StatusInternalServerError, "Error interno del servidor.")
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		g.logger.Warn("login rejected", "username", req.Username)
		httpx.WriteMessage(w, http.StatusUnauthorized, "Credenciales inválidas.")
		return
	}

	token, err := auth.SignHS256(auth.NewClaims(user.ID, user.Username, user.Role, g.now(), g.ttl), g.secret)
	if err != nil {
		httpx.WriteMessage(w, http.StatusInternalServerError, "Error interno del servidor.")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.ttl.Seconds()),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(g.ttl.Seconds()),
	})
}

// Logout clears the session cookie. Bearer tokens stay valid until they
// expire.
func (g *Gate) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

type claimsKey struct{}

func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

// RequireAdmin rejects requests without a valid unexpired token (401) or whose
// token does not carry ROLE_ADMIN (403). Expiry is judged by the gate clock.
func (g *Gate) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			httpx.WriteMessage(w, http.StatusUnauthorized, "Autenticación requerida.")
			return
		}
		claims, err := g.verifier.Verify(r.Context(), raw)
		if err != nil {
			g.logger.Debug("token rejected", "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
			httpx.WriteMessage(w, http.StatusUnauthorized, "Sesión inválida o expirada.")
			return
		}
		if claims.Role != RoleAdmin {
			httpx.WriteMessage(w, http.StatusForbidden, "Acceso denegado.")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
