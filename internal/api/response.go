package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/procesa/pesaje/internal/ledger/schema"
)

// statusFor maps a ledger error to an HTTP status.
func statusFor(err error) int {
	switch {
	case schema.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// fail answers with {success: false, message}.
func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// failErr answers with the status of err and its message.
func failErr(c *gin.Context, err error) {
	fail(c, statusFor(err), err.Error())
}

// number parses an optional numeric form value. Empty input yields ok=false.
func number(field, raw string) (n float64, ok bool, err error) {
	n, ok, err = schema.ParseNumber(strings.TrimSpace(raw))
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", schema.ErrValidation, field, err)
	}
	return n, ok, nil
}
