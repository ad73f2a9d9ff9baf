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

package model

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerateUUIDWithSuffix returns a new identifier of the form "<module>_<uuid>".
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// ParseAmount converts a decimal amount string such as "30.50" into integer minor units
// using the given precision (100 for two decimal places). Amounts must be positive and
// must not carry more fractional digits than the precision can represent.
func ParseAmount(amount string, precision int64) (int64, error) {
	if precision <= 0 {
		return 0, errors.New("precision must be greater than zero")
	}

	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}

	minor := d.Mul(decimal.NewFromInt(precision))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more decimal places than precision %d allows", amount, precision)
	}
	if !minor.IsPositive() {
		return 0, errors.New("amount must be greater than zero")
	}
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("amount %s is too large", amount)
	}

	return minor.IntPart(), nil
}

// FormatAmount renders minor units as a fixed-point decimal string.
func FormatAmount(minor int64, precision int64) string {
	if precision <= 1 {
		return decimal.NewFromInt(minor).String()
	}
	places := int32(0)
	for p := precision; p > 1; p /= 10 {
		places++
	}
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(precision)).StringFixed(places)
}
