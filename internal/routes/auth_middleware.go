// Authentication middleware
// Resolves the session cookie into a Principal and places it in the
// request context. Handlers that need a signed-in caller use RequireAuth.
package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"logi-track/internal/access"
	"logi-track/internal/jwt"
	"logi-track/internal/storage"
	"logi-track/internal/utils"
)

const AUTH_COOKIE_NAME = "auth_token"

const (
	principalKey = "principal"
	claimsKey    = "sessionClaims"
)

// Get authentication TTL
func authTTL(env *Env) time.Duration {
	return time.Duration(env.Config.UserAuthTTL) * 24 * time.Hour
}

func magicLinkTTL(env *Env) time.Duration {
	return time.Duration(env.Config.MagicLinkTTL) * time.Hour
}

// Set authentication cookie
// The cookie is set to expire when the token expires
func setAuthCookie(c *gin.Context, token string, ttl time.Duration) {
	secure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AUTH_COOKIE_NAME, token, int(ttl.Seconds()), "/", "", secure, true)
}

func clearAuthCookie(c *gin.Context) {
	c.SetCookie(AUTH_COOKIE_NAME, "", -1, "/", "", false, true)
}

// GetPrincipal returns the signed-in caller, or nil for anonymous requests.
func GetPrincipal(c *gin.Context) *access.Principal {
	v, exists := c.Get(principalKey)
	if !exists {
		return nil
	}
	p, _ := v.(*access.Principal)
	return p
}

func getClaims(c *gin.Context) *jwt.SessionClaims {
	v, exists := c.Get(claimsKey)
	if !exists {
		return nil
	}
	claims, _ := v.(*jwt.SessionClaims)
	return claims
}

func setPrincipal(c *gin.Context, claims *jwt.SessionClaims) {
	c.Set(claimsKey, claims)
	c.Set(principalKey, &access.Principal{
		ID:    claims.UserID,
		Email: claims.Email,
		Role:  claims.Role,
	})
}

// signIn issues a new session for user and sets the auth cookie.
func signIn(c *gin.Context, env *Env, user *storage.User) (*jwt.SessionClaims, error) {
	ctx := c.Request.Context()
	ttl := authTTL(env)

	token, claims, err := env.Tokens.NewSession(ctx, user.ID, user.Email, user.Role, ttl)
	if err != nil {
		return nil, err
	}
	setAuthCookie(c, token, ttl)
	setPrincipal(c, claims)

	if err := env.Storage.TouchUserSignIn(ctx, user.ID, time.Now()); err != nil {
		slog.Warn("Failed to record sign-in", "userID", user.ID, "error", err)
	}
	return claims, nil
}

// renewAuth replaces the session when forced, when the token asks for it,
// or when less than half of its lifetime remains.
func renewAuth(c *gin.Context, env *Env, claims *jwt.SessionClaims, forceRenew bool) error {
	if claims.MustRenew {
		slog.Debug("renewAuth: Token marked for mandatory renewal", "userID", claims.UserID)
		forceRenew = true
	}

	renewAge := authTTL(env) / 2
	if !forceRenew && time.Until(claims.ExpiresAt.Time) >= renewAge {
		return nil
	}

	ctx := c.Request.Context()
	user, err := env.Storage.GetUser(ctx, claims.UserID)
	if err != nil {
		return err
	}

	// Invalidate old token by consuming its nonce
	if err := env.Tokens.Revoke(ctx, claims.ID); err != nil {
		slog.Debug("renewAuth: Old session nonce already gone", "error", err)
	}

	slog.Debug("Renewing auth token for user", "userID", user.ID)
	_, err = signIn(c, env, user)
	return err
}

// endSession drops the session of a request whose account is gone.
func endSession(c *gin.Context, env *Env, claims *jwt.SessionClaims) {
	if err := env.Tokens.Revoke(c.Request.Context(), claims.ID); err != nil {
		slog.Warn("SessionMiddleware: Failed to consume session nonce", "error", err)
	}
	clearAuthCookie(c)
	c.Set(principalKey, nil)
	c.Set(claimsKey, nil)
}

// SessionMiddleware resolves the auth cookie. Missing or invalid cookies
// leave the request anonymous. The account is looked up on every request:
// deleted accounts lose their session and a changed role or email renews it.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(AUTH_COOKIE_NAME)
		if err != nil || token == "" {
			c.Next()
			return
		}

		env := getEnv(c)
		ctx := c.Request.Context()
		claims, err := env.Tokens.DecodeSession(ctx, token)
		if err != nil {
			slog.Debug("SessionMiddleware: Invalid auth token", "error", err)
			clearAuthCookie(c)
			c.Next()
			return
		}

		user, err := env.Storage.GetUser(ctx, claims.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			slog.Info("SessionMiddleware: Session for deleted account", "userID", claims.UserID)
			endSession(c, env, claims)
			c.Next()
			return
		} else if err != nil {
			// Role unconfirmed, stay anonymous
			slog.Warn("SessionMiddleware: Failed to load session user", "userID", claims.UserID, "error", err)
			c.Next()
			return
		}
		setPrincipal(c, claims)

		stale := user.Role != claims.Role || user.Email != claims.Email
		if stale {
			slog.Info("SessionMiddleware: Account changed, renewing session", "userID", user.ID, "role", user.Role)
		}
		if err := renewAuth(c, env, claims, stale); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				endSession(c, env, claims)
			} else {
				slog.Warn("SessionMiddleware: Failed to renew auth token", "error", err)
				if stale {
					c.Set(principalKey, nil)
				}
			}
		}
		c.Next()
	}
}

// RequireAuth aborts anonymous requests with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !access.IsAuthenticated(GetPrincipal(c)) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func AuthLogout(c *gin.Context) {
	if claims := getClaims(c); claims != nil {
		if err := getEnv(c).Tokens.Revoke(c.Request.Context(), claims.ID); err != nil {
			slog.Warn("AuthLogout: Failed to consume session nonce", "error", err)
		}
	}
	clearAuthCookie(c)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

func AuthRoutes(r *gin.RouterGroup) {
	r.POST("/login", func(c *gin.Context) {
		env := getEnv(c)
		var req loginRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.Email == "" || req.Password == "" {
			AbortWithHTTPError(c, http.StatusBadRequest, ErrMissingParameter, "Email and password are required")
			return
		}

		user, err := env.Storage.GetUserByEmail(c.Request.Context(), access.NormalizeEmail(req.Email))
		if errors.Is(err, storage.ErrNotFound) {
			AbortWithError(c, ErrInvalidCredentials)
			return
		} else if err != nil {
			AbortWithError(c, err)
			return
		}
		if user.PasswordHash == "" {
			AbortWithError(c, ErrInvalidCredentials)
			return
		}
		if err := access.VerifyPassword(req.Password, user.PasswordHash); err != nil {
			if !errors.Is(err, access.ErrPasswordMismatch) {
				slog.Error("Stored password hash is unreadable", "userID", user.ID, "error", err)
			}
			AbortWithError(c, ErrInvalidCredentials)
			return
		}

		if _, err := signIn(c, env, user); err != nil {
			AbortWithError(c, err)
			return
		}
		slog.Info("User logged in", "userID", user.ID)
		ok(c, GetPrincipal(c))
	})

	r.POST("/logout", RequireAuth(), func(c *gin.Context) {
		AuthLogout(c)
		ok(c, gin.H{"status": "logged_out"})
	})

	// Route to check authentication status
	r.GET("/status", RequireAuth(), func(c *gin.Context) {
		ok(c, GetPrincipal(c))
	})

	// Route to renew authentication token
	r.POST("/renew", RequireAuth(), func(c *gin.Context) {
		if err := renewAuth(c, getEnv(c), getClaims(c), true); err != nil {
			AbortWithError(c, err)
			return
		}
		ok(c, GetPrincipal(c))
	})

	// Single use sign-in link from access approval or password reset mails
	r.GET("/magic/:token", func(c *gin.Context) {
		env := getEnv(c)
		ctx := c.Request.Context()

		claims, err := env.Tokens.ConsumeMagicLink(ctx, c.Param("token"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		user, err := env.Storage.GetUser(ctx, claims.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			AbortWithError(c, jwt.ErrNonValidToken)
			return
		} else if err != nil {
			AbortWithError(c, err)
			return
		}

		// Replace any session already present in this browser
		AuthLogout(c)
		if _, err := signIn(c, env, user); err != nil {
			AbortWithError(c, err)
			return
		}
		slog.Info("User logged in via magic link", "userID", user.ID)
		c.Redirect(http.StatusFound, utils.UrlFor(c, env.Config.BaseURL, "/"))
	})

	// Always answers 200 so the endpoint cannot be used to probe for accounts.
	r.POST("/forgot-password", func(c *gin.Context) {
		env := getEnv(c)
		ctx := c.Request.Context()
		var req emailRequest
		if !bindJSON(c, &req) {
			return
		}
		address := access.NormalizeEmail(req.Email)
		if err := access.ValidEmail(address); err != nil {
			AbortWithError(c, err)
			return
		}

		response := gin.H{"message": "If an account exists, a sign-in link has been sent"}

		user, err := env.Storage.GetUserByEmail(ctx, address)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				slog.Error("Password reset lookup failed", "error", err)
			}
			ok(c, response)
			return
		}

		ttl := magicLinkTTL(env)
		token, err := env.Tokens.NewMagicLink(ctx, user.ID, ttl)
		if err != nil {
			slog.Error("Failed to create magic link", "userID", user.ID, "error", err)
			ok(c, response)
			return
		}
		link := utils.UrlFor(c, env.Config.BaseURL, "/auth/magic/"+token)
		if err := env.Dispatcher.SendPasswordReset(ctx, user.Email, link, ttl); err != nil {
			slog.Error("Failed to send password reset email", "userID", user.ID, "error", err)
		}
		ok(c, response)
	})

	r.POST("/password", RequireAuth(), func(c *gin.Context) {
		env := getEnv(c)
		var req passwordRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := access.ValidPassword(req.Password); err != nil {
			AbortWithError(c, err)
			return
		}
		hash, err := access.HashPassword(req.Password)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		p := GetPrincipal(c)
		if err := env.Storage.UpdateUserPassword(c.Request.Context(), p.ID, hash); err != nil {
			AbortWithError(c, err)
			return
		}
		if err := renewAuth(c, env, getClaims(c), true); err != nil {
			AbortWithError(c, err)
			return
		}
		slog.Info("Password changed", "userID", p.ID)
		ok(c, gin.H{"status": "password_updated"})
	})
}
