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
	"time"

	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/paychain-labs/paychain/model"
)

func (d Datasource) RecordAuditLog(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error) {
	if entry.AuditID == "" {
		entry.AuditID = model.GenerateUUIDWithSuffix("aud")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC().Truncate(time.Microsecond)

	_, err := d.Conn.ExecContext(ctx,
		`INSERT INTO audit_logs (audit_id, created_at, actor, action, detail) VALUES ($1, $2, $3, $4, $5)`,
		entry.AuditID, entry.Timestamp, entry.Actor, entry.Action, entry.Detail)
	if err != nil {
		return entry, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record audit log", err)
	}
	return entry, nil
}

// GetAuditLogs returns audit entries, most recent first.
func (d Datasource) GetAuditLogs(ctx context.Context, limit, offset int) ([]model.AuditEntry, error) {
	limit, offset = page(limit, offset)
	rows, err := d.Conn.QueryContext(ctx,
		`SELECT audit_id, created_at, actor, action, detail FROM audit_logs
		ORDER BY created_at DESC, audit_id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve audit logs", err)
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.AuditID, &e.Timestamp, &e.Actor, &e.Action, &e.Detail); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan audit log", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve audit logs", err)
	}
	return entries, nil
}
