package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func UserNotFound(userID string, err error) *AppError {
	return &AppError{
		Code:    "USER_NOT_FOUND",
		Message: fmt.Sprintf("user %s not found", userID),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func RoomNotFound(roomID string, err error) *AppError {
	return &AppError{
		Code:    "ROOM_NOT_FOUND",
		Message: fmt.Sprintf("room %s not found", roomID),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func MessageNotFound(messageID string, err error) *AppError {
	return &AppError{
		Code:    "MESSAGE_NOT_FOUND",
		Message: fmt.Sprintf("message %s not found", messageID),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func NotAParticipant(userID, roomID string) *AppError {
	return &AppError{
		Code:    "NOT_A_PARTICIPANT",
		Message: fmt.Sprintf("user %s is not a participant of room %s", userID, roomID),
		Status:  http.StatusForbidden,
	}
}

func InvalidRequest(message string, err error) *AppError {
	return &AppError{
		Code:    "INVALID_REQUEST",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Unavailable marks a storage failure that survived the local retry budget.
func Unavailable(message string, err error) *AppError {
	return &AppError{
		Code:    "UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func TooManyRequests(message string) *AppError {
	return &AppError{
		Code:    "TOO_MANY_REQUESTS",
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
