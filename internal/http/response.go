// Package http implements the gin HTTP surface (spec §6): process_text,
// answer, graph projection/lookup, and source/chat-session CRUD, following
// the teacher's internal/handlers response-envelope idiom
// (internal/handlers/response.go).
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/platform/apierr"
)

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondErr maps a domainerr.Kind (spec §7) to an HTTP status and writes
// the error envelope.
func respondErr(c *gin.Context, err error) {
	wrapped := toAPIError(err)
	c.JSON(wrapped.Status, errorEnvelope{Error: apiError{Message: wrapped.Error(), Code: wrapped.Code}})
}

func toAPIError(err error) *apierr.Error {
	switch {
	case domainerr.IsKind(err, domainerr.KindInputValidation):
		return apierr.New(http.StatusBadRequest, string(domainerr.KindInputValidation), err)
	case domainerr.IsKind(err, domainerr.KindResourceNotFound):
		return apierr.New(http.StatusNotFound, string(domainerr.KindResourceNotFound), err)
	case domainerr.IsKind(err, domainerr.KindPartialPersist):
		return apierr.New(http.StatusOK, string(domainerr.KindPartialPersist), err)
	default:
		return apierr.New(http.StatusInternalServerError, "InternalError", err)
	}
}
