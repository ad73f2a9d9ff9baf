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

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/sirupsen/logrus"
)

const actorHeader = "X-Paychain-Actor"

// respondError writes err as an APIError body with the matching status code.
// Details are logged, never returned.
func respondError(c *gin.Context, err error) {
	var apiErr apierror.APIError
	if !errors.As(err, &apiErr) {
		logrus.WithError(err).Error("unexpected error")
		apiErr = apierror.APIError{Code: apierror.ErrInternalServer, Message: "internal server error"}
	}
	c.JSON(apierror.MapErrorToHTTPStatus(apiErr), apierror.APIError{Code: apiErr.Code, Message: apiErr.Message})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, apierror.APIError{Code: apierror.ErrValidation, Message: err.Error()})
}

// pagination reads limit and offset query parameters. Zero means the datasource
// default.
func pagination(c *gin.Context) (int, int, error) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

func actor(c *gin.Context) string {
	if a := c.GetHeader(actorHeader); a != "" {
		return a
	}
	return "admin"
}
