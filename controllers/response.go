package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"nutrilog/apperr"
	"nutrilog/logging"
)

// respondError writes the {error, message[, detail]} envelope for err.
// Unclassified errors become a 500 without leaking their text.
func respondError(c *gin.Context, err error) {
	l := logging.Ctx(c.Request.Context())
	_ = c.Error(err)

	ae, ok := apperr.As(err)
	if !ok {
		l.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
		return
	}

	status := ae.HTTPStatus()
	ev := l.Warn()
	if ae.Kind == apperr.KindUpstream {
		ev = l.Error().Str("detail", ae.Detail)
	}
	ev.Err(err).Int("status", status).Msg(ae.Kind.String())

	body := gin.H{"error": ae.Kind.String(), "message": ae.Message}
	if ae.Detail != "" {
		body["detail"] = ae.Detail
	}
	c.JSON(status, body)
}

// bindJSON binds the request body and answers 400 itself on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, bindingError(err))
		return false
	}
	return true
}

func bindingError(err error) *apperr.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Validation("field %s failed %s validation", fe.Field(), fe.Tag())
	}
	return apperr.Validation("invalid request body: %v", err)
}
