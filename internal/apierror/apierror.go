/*
Copyright 2024 Paychain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"

	ErrValidation         ErrorCode = "VALIDATION_ERROR"
	ErrInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	ErrDailyLimitExceeded ErrorCode = "DAILY_LIMIT_EXCEEDED"
	ErrAccountNotFound    ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrIntegrity          ErrorCode = "INTEGRITY_ERROR"
	ErrMiningTimeout      ErrorCode = "MINING_TIMEOUT"
	ErrPersistence        ErrorCode = "PERSISTENCE_ERROR"
	ErrNoBackupAvailable  ErrorCode = "NO_BACKUP_AVAILABLE"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError builds an APIError and logs the underlying details, if any.
func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// IsCode reports whether err, or any error it wraps, is an APIError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}

	switch apiErr.Code {
	case ErrNotFound, ErrAccountNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrInvalidInput, ErrBadRequest, ErrValidation:
		return http.StatusBadRequest
	case ErrInsufficientFunds, ErrDailyLimitExceeded:
		return http.StatusUnprocessableEntity
	case ErrMiningTimeout:
		return http.StatusServiceUnavailable
	case ErrNoBackupAvailable:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
