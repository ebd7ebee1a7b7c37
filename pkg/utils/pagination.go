package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"duochat/pkg/errors"
)

const DefaultMessageLimit = 50

// CursorParams carries the message pagination inputs: how many messages to
// return and, optionally, the message id every returned message must be
// strictly older than.
type CursorParams struct {
	Limit  int
	Before string
}

// GetCursorParams extracts cursor pagination parameters from the request.
// A missing or non-positive limit falls back to DefaultMessageLimit; a limit
// that does not parse as an integer is an INVALID_REQUEST.
func GetCursorParams(c echo.Context) (CursorParams, error) {
	params := CursorParams{
		Limit:  DefaultMessageLimit,
		Before: c.QueryParam("before"),
	}

	if limitStr := c.QueryParam("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return params, errors.InvalidRequest("limit must be an integer", err)
		}
		if limit > 0 {
			params.Limit = limit
		}
	}

	return params, nil
}
