package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Error renders a typed error with the status its kind maps to.
func Error(c *gin.Context, err error) {
	c.JSON(pkgerrors.HTTPStatus(err), ErrorEnvelope{
		Error: APIError{Message: pkgerrors.Message(err)},
	})
}

// ErrorWithStatus renders an error under an explicit status and code.
func ErrorWithStatus(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{Message: msg, Code: code},
	})
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func Created(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
