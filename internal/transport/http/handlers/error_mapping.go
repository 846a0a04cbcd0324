package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/infra/security"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// DomainErrorCases is the default mapping of the error taxonomy. Order matters:
// the first case matching through errors.Is wins.
var DomainErrorCases = []ErrorCase{
	{Err: domain.ErrExpiredToken, Status: http.StatusBadRequest, Message: "token expired"},
	{Err: domain.ErrInvalidToken, Status: http.StatusBadRequest, Message: "invalid token"},
	{Err: domain.ErrUnauthorized, Status: http.StatusUnauthorized, Message: "invalid email or password"},
	{Err: domain.ErrForbidden, Status: http.StatusForbidden, Message: "email not verified"},
	{Err: domain.ErrNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: domain.ErrConflict, Status: http.StatusConflict, Message: "email already exists"},
	{Err: domain.ErrValidationFailed, Status: http.StatusBadRequest, Message: "validation failed"},
	{Err: domain.ErrInternal, Status: http.StatusInternalServerError, Message: "internal error"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	_ = c.Error(err)

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			resp := NewErrorResponse(c, cs.Message)
			if errors.Is(cs.Err, domain.ErrValidationFailed) {
				resp.Detail = validationDetail(err)
			}
			c.JSON(cs.Status, resp)
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// respondDomainError maps usecase errors with the default table.
func respondDomainError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, DomainErrorCases, http.StatusInternalServerError, "internal error")
}

// respondBindingError answers 422 for payloads that fail struct validation and 400 for
// payloads that cannot be decoded at all.
func respondBindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		resp := NewErrorResponse(c, "invalid request payload")
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	resp := NewErrorResponse(c, "validation failed")
	resp.Fields = make(map[string]string, len(verrs))
	for _, fe := range verrs {
		resp.Fields[fieldName(fe)] = fe.Tag()
	}
	c.JSON(http.StatusUnprocessableEntity, resp)
}

func validationDetail(err error) string {
	var policy *security.PasswordValidationError
	if errors.As(err, &policy) {
		return policy.Message
	}
	msg := err.Error()
	prefix := domain.ErrValidationFailed.Error() + ": "
	if strings.HasPrefix(msg, prefix) {
		return strings.TrimPrefix(msg, prefix)
	}
	return ""
}

// fieldName turns the struct field into the snake_case key clients send.
func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
