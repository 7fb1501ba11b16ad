package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"logi-track/internal/access"
	"logi-track/internal/storage"
	"logi-track/internal/utils"
)

// Length of the temporary password mailed to approved requesters.
const tempPasswordLength = 12

type accessRequestBody struct {
	Email       string  `json:"email"`
	CompanyName string  `json:"company_name"`
	Message     *string `json:"message"`
}

type reviewBody struct {
	Status storage.AccessRequestStatus `json:"status"`
}

func AccessRequestRoutes(r *gin.RouterGroup) {
	// Anonymous
	r.POST("", func(c *gin.Context) {
		env := getEnv(c)
		var body accessRequestBody
		if !bindJSON(c, &body) {
			return
		}

		address := access.NormalizeEmail(body.Email)
		company := strings.TrimSpace(body.CompanyName)
		if address == "" || company == "" {
			AbortWithHTTPError(c, http.StatusBadRequest, ErrMissingParameter, "Email and company name are required")
			return
		}
		if err := access.ValidEmail(address); err != nil {
			AbortWithError(c, err)
			return
		}
		if body.Message != nil {
			if msg := strings.TrimSpace(*body.Message); msg == "" {
				body.Message = nil
			} else {
				body.Message = &msg
			}
		}

		req := &storage.AccessRequest{
			Email:       address,
			CompanyName: company,
			Message:     body.Message,
		}
		if err := env.Storage.CreateAccessRequest(c.Request.Context(), req); err != nil {
			AbortWithError(c, err)
			return
		}
		slog.Info("Access request created", "id", req.ID, "email", req.Email)
		respond(c, http.StatusCreated, req)
	})

	r.GET("", RequireAuth(), RequirePermission(access.ListAccessRequests), func(c *gin.Context) {
		status := storage.AccessRequestStatus(c.Query("status"))
		if status != "" && !status.Valid() {
			AbortWithHTTPError(c, http.StatusBadRequest, ErrInvalidParameter, "Invalid status filter")
			return
		}
		requests, err := getEnv(c).Storage.ListAccessRequests(c.Request.Context(), status)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		ok(c, requests)
	})

	r.PATCH("/:id", RequireAuth(), RequirePermission(access.ReviewAccessRequests), func(c *gin.Context) {
		env := getEnv(c)
		ctx := c.Request.Context()

		var body reviewBody
		if !bindJSON(c, &body) {
			return
		}
		if body.Status != storage.AccessRequestApproved && body.Status != storage.AccessRequestRejected {
			AbortWithHTTPError(c, http.StatusBadRequest, ErrInvalidParameter, "Status must be approved or rejected")
			return
		}

		req, err := env.Storage.GetAccessRequest(ctx, c.Param("id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if req.Status != storage.AccessRequestPending {
			AbortWithHTTPError(c, http.StatusBadRequest, storage.ErrInvalidTransition,
				fmt.Sprintf("Access request is already %s", req.Status))
			return
		}

		if body.Status == storage.AccessRequestApproved {
			baseURL := utils.GetBaseURL(c, env.Config.BaseURL)
			req, err = ApproveAccessRequest(ctx, env, req, baseURL)
		} else {
			req, err = env.Storage.TransitionAccessRequest(ctx, req.ID, storage.AccessRequestRejected)
		}
		if err != nil {
			AbortWithError(c, err)
			return
		}

		slog.Info("Access request reviewed", "id", req.ID, "status", req.Status, "by", GetPrincipal(c).ID)
		ok(c, req)
	})
}

// ApproveAccessRequest provisions an account for the requester, mails the
// sign-in details and only then marks the request approved. If the mail
// cannot be sent, an account created here is deleted again and the request
// stays pending.
func ApproveAccessRequest(ctx context.Context, env *Env, req *storage.AccessRequest, baseURL string) (*storage.AccessRequest, error) {
	if !env.Dispatcher.Configured() {
		return nil, NewHTTPError(http.StatusServiceUnavailable, ErrServiceUnavailable, "Email delivery is not configured")
	}

	user, created, tempPassword, err := provisionUser(ctx, env, req.Email)
	if err != nil {
		return nil, err
	}

	rollback := func() {
		if !created {
			return
		}
		if err := env.Storage.DeleteUser(ctx, user.ID); err != nil {
			slog.Error("Failed to roll back provisioned user", "userID", user.ID, "error", err)
		}
	}

	ttl := magicLinkTTL(env)
	token, err := env.Tokens.NewMagicLink(ctx, user.ID, ttl)
	if err != nil {
		rollback()
		return nil, err
	}
	link := strings.TrimRight(baseURL, "/") + "/auth/magic/" + token

	if err := env.Dispatcher.SendAccessGranted(ctx, user.Email, link, tempPassword, ttl); err != nil {
		rollback()
		return nil, NewHTTPError(http.StatusServiceUnavailable, err, "Failed to send access email")
	}

	approved, err := env.Storage.TransitionAccessRequest(ctx, req.ID, storage.AccessRequestApproved)
	if err != nil {
		rollback()
		return nil, err
	}
	slog.Info("Access granted", "requestID", req.ID, "userID", user.ID, "newAccount", created)
	return approved, nil
}

// provisionUser returns the account for address, creating it with a
// temporary password when it does not exist yet.
func provisionUser(ctx context.Context, env *Env, address string) (*storage.User, bool, string, error) {
	existing, err := env.Storage.GetUserByEmail(ctx, address)
	if err == nil {
		return existing, false, "", nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, "", err
	}

	password, err := access.GeneratePassword(tempPasswordLength)
	if err != nil {
		return nil, false, "", err
	}
	hash, err := access.HashPassword(password)
	if err != nil {
		return nil, false, "", err
	}

	user := &storage.User{
		Email:        address,
		PasswordHash: hash,
		Role:         storage.RoleUser,
	}
	if err := env.Storage.CreateUser(ctx, user); err != nil {
		return nil, false, "", err
	}
	return user, true, password, nil
}
