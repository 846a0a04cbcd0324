package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/infra/bloom"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Detail  string            `json:"detail,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	TraceID string            `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// CreateUserRequest defines the registration payload.
type CreateUserRequest struct {
	FirstName   string `json:"first_name" binding:"required,max=100"`
	LastName    string `json:"last_name" binding:"omitempty,max=100"`
	Email       string `json:"email" binding:"required,email,max=254"`
	Phone       string `json:"phone" binding:"omitempty,numeric,min=4,max=15"`
	CountryCode string `json:"country_code" binding:"omitempty,max=5"`
	Password    string `json:"password" binding:"required,min=8,max=128"`
}

// CreateUserResponse is returned after a successful registration.
type CreateUserResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// ConflictResponse is returned when the email is already registered in the realm.
type ConflictResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// LoginRequest accepts JSON or the username/password form used by OAuth2 password clients.
type LoginRequest struct {
	Email    string `json:"email" form:"username" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UserProfile is the public view of a user record. The password hash is never exposed.
type UserProfile struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	CountryCode   string    `json:"country_code,omitempty"`
	Country       string    `json:"country,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// ForgetPasswordRequest starts the reset flow.
type ForgetPasswordRequest struct {
	Email string `json:"email" form:"email" binding:"required,email"`
}

// ResetPasswordRequest completes the reset flow.
type ResetPasswordRequest struct {
	Token       string `json:"token" form:"token" binding:"required"`
	NewPassword string `json:"new_password" form:"password" binding:"required,min=8,max=128"`
}

// ResetFormResponse reports whether a reset token can still be redeemed.
type ResetFormResponse struct {
	Valid bool `json:"valid"`
}

// OTPRequest optionally overrides the destination phone number.
type OTPRequest struct {
	Phone string `json:"phone" binding:"omitempty,e164"`
}

// OTPResponse returns the token that binds the texted code.
type OTPResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// VerifyOTPRequest pairs an OTP token with the code received by SMS.
type VerifyOTPRequest struct {
	Token string `json:"token" binding:"required"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

// VerifyOTPResponse is returned when the code matches.
type VerifyOTPResponse struct {
	Message string `json:"message"`
	Valid   bool   `json:"valid"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// FilterStatsResponse lists the membership filters and their fill level.
type FilterStatsResponse struct {
	Filters []bloom.FilterStats `json:"filters"`
}

func newUserProfile(user domain.User) UserProfile {
	return UserProfile{
		ID:            user.ID,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Email:         user.Email,
		Phone:         user.Phone,
		CountryCode:   user.CountryCode,
		Country:       user.Country,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt,
	}
}
