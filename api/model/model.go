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
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/paychain-labs/paychain/model"
	"github.com/shopspring/decimal"
)

// amountRule checks that a decimal string converts to positive minor units.
func amountRule(precision int64) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		_, err := model.ParseAmount(s, precision)
		return err
	}
}

// openingBalanceRule accepts zero as well as any positive amount.
func openingBalanceRule(precision int64) validation.RuleFunc {
	return func(value interface{}) error {
		_, err := parseOpeningBalance(value.(string), precision)
		return err
	}
}

func parseOpeningBalance(s string, precision int64) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.New("invalid balance")
	}
	if d.IsZero() {
		return 0, nil
	}
	if d.IsNegative() {
		return 0, errors.New("balance cannot be negative")
	}
	return model.ParseAmount(s, precision)
}

func notSink(value interface{}) error {
	s, _ := value.(string)
	if model.IsSink(s) {
		return errors.New("reserved account id")
	}
	return nil
}
