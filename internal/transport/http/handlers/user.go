package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/transport/http/middleware"
)

// UserLifecycle is the realm-scoped account API served over HTTP.
type UserLifecycle interface {
	Realm() domain.Realm
	Register(ctx context.Context, profile domain.Profile) (domain.User, error)
	VerifyEmail(ctx context.Context, token string) (bool, error)
	Login(ctx context.Context, email, password string) (string, domain.SessionClaims, error)
	Logout(ctx context.Context, claims domain.SessionClaims) error
	GetProfile(ctx context.Context, id string) (domain.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ValidateResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	Delete(ctx context.Context, id, email string) error
	GenerateOTP(ctx context.Context, id, phone string) (string, error)
	VerifyOTP(ctx context.Context, token, code string) (bool, error)
}

// UserHandler exposes one realm's account endpoints.
type UserHandler struct {
	users UserLifecycle
}

// NewUserHandler builds a handler over users.
func NewUserHandler(users UserLifecycle) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterRoutes binds the realm endpoints. auth guards the routes acting on the caller's account.
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup, auth gin.HandlerFunc) {
	r.POST("/create", h.Create)
	r.POST("/login", h.Login)
	r.GET("/verify", h.VerifyEmail)
	r.POST("/forget_password", h.ForgetPassword)
	r.POST("/reset_password", h.ResetPassword)
	r.GET("/reset_password_form", h.ResetPasswordForm)
	r.POST("/verify_otp_phone", h.VerifyOTP)

	r.GET("/get", auth, h.Get)
	r.POST("/logout", auth, h.Logout)
	r.DELETE("/delete", auth, h.Delete)
	r.POST("/otp_phone", auth, h.GenerateOTP)
}

// Create godoc
// @Summary Register a new account in the realm
// @Tags Users
// @Accept json
// @Produce json
// @Param realm path string true "Realm name" Enums(User1, User2)
// @Param request body CreateUserRequest true "Registration request"
// @Success 201 {object} CreateUserResponse
// @Failure 409 {object} ConflictResponse
// @Failure 422 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /{realm}/create [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	user, err := h.users.Register(c.Request.Context(), domain.Profile{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Phone:       req.Phone,
		CountryCode: req.CountryCode,
		Password:    req.Password,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			c.JSON(http.StatusConflict, ConflictResponse{
				Message: "Email already exists",
				Email:   strings.TrimSpace(req.Email),
			})
			return
		}
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateUserResponse{Message: "User created", ID: user.ID})
}

// Get godoc
// @Summary Return the caller's profile
// @Tags Users
// @Produce json
// @Security Bearer
// @Param realm path string true "Realm name" Enums(User1, User2)
// @Success 200 {object} UserProfile
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /{realm}/get [get]
func (h *UserHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	user, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserProfile(user))
}

// Login godoc
// @Summary Exchange credentials for a session token
// @Tags Users
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param realm path string true "Realm name" Enums(User1, User2)
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /{realm}/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	token, _, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{AccessToken: token, TokenType: "bearer"})
}

// Logout godoc
// @Summary Revoke the presented session token
// @Tags Users
// @Produce json
// @Security Bearer
// @Param realm path string true "Realm name" Enums(User1, User2)
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /{realm}/logout [post]
func (h *UserHandler) Logout(c *gin.Context) {
	claims, ok := middleware.GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.users.Logout(c.Request.Context(), claims); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Logged out"})
}

// VerifyEmail godoc
// @Summary Redeem the email verification link
// @Tags Users
// @Produce json
// @Param realm path string true "Realm name" Enums(User1, User2)
// @Param token query string true "Verification token"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /{realm}/verify [get]
func (h *UserHandler) VerifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	if _, err := h.users.VerifyEmail(c.Request.Context(), token); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Email verified successfully"})
}

// ForgetPassword godoc
// @Summary Send a password reset link
// @Tags Password
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param realm path string true "Realm name" Enums(User1, User2)
// @Param request body ForgetPasswordRequest true "Account email"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /{realm}/forget_password [post]
func (h *UserHandler) ForgetPassword(c *gin.Context) {
	var req ForgetPasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	if err := h.users.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Password reset link sent to your email"})
}

// ResetPasswordForm godoc
// @Summary Check that a reset token is still redeemable
// @Tags Password
// @Produce json
// @Param realm path string true "Realm name" Enums(User1, User2)
// @Param token query string true "Reset token"
// @Success 200 {object} ResetFormResponse
// @Failure 400 {object} ErrorResponse
// @Router /{realm}/reset_password_form [get]
func (h *UserHandler) ResetPasswordForm(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	if err := h.users.ValidateResetToken(c.Request.Context(), token); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, ResetFormResponse{Valid: true})
}

// ResetPassword godoc
// @Summary Replace the password using a reset token
// @Description The token may also arrive as a query parameter, as it does in emailed links.
// @Tags Password
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param realm path string true "Realm name" Enums(User1, User2)
// @Param request body ResetPasswordRequest true "Reset request"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /{realm}/reset_password [post]
func (h *UserHandler) ResetPassword(c *gin.Context) {
	req := ResetPasswordRequest{Token: c.Query("token")}
	if err := c.ShouldBind(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	if err := h.users.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Password reset successfully"})
}

// Delete godoc
// @Summary Delete the caller's own account
// @Tags Users
// @Produce json
// @Security Bearer
// @Param realm path string true "Realm name" Enums(User1, User2)
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /{realm}/delete [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	claims, ok := middleware.GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.users.Delete(c.Request.Context(), claims.UserID, claims.Email); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

// GenerateOTP godoc
// @Summary Text a one-time code to the caller
// @Description Uses the stored phone number unless one is supplied.
// @Tags OTP
// @Accept json
// @Produce json
// @Security Bearer
// @Param realm path string true "Realm name" Enums(User1, User2)
// @Param request body OTPRequest false "Destination override"
// @Success 200 {object} OTPResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /{realm}/otp_phone [post]
func (h *UserHandler) GenerateOTP(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req OTPRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindingError(c, err)
			return
		}
	}

	token, err := h.users.GenerateOTP(c.Request.Context(), userID, req.Phone)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, OTPResponse{Message: "OTP generated successfully", Token: token})
}

// VerifyOTP godoc
// @Summary Check a texted code against its token
// @Tags OTP
// @Accept json
// @Produce json
// @Param realm path string true "Realm name" Enums(User1, User2)
// @Param request body VerifyOTPRequest true "Token and code"
// @Success 200 {object} VerifyOTPResponse
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /{realm}/verify_otp_phone [post]
func (h *UserHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	if _, err := h.users.VerifyOTP(c.Request.Context(), req.Token, req.Code); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, VerifyOTPResponse{Message: "OTP verified successfully", Valid: true})
}
