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

package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/paychain-labs/paychain/internal/apierror"
)

// GetDailyDebit returns the completed debits of accountID on day, zero when none.
func (d Datasource) GetDailyDebit(ctx context.Context, accountID, day string) (int64, error) {
	var total int64
	err := d.Conn.QueryRowContext(ctx,
		`SELECT total FROM daily_debits WHERE account_id = $1 AND day = $2`, accountID, day).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve daily debits", err)
	}
	return total, nil
}
