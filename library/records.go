// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package library

import (
	"context"
	"errors"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/finlore/fsdata/data"
)

// UpsertRecords saves a batch of normalized statement records inside one
// transaction. Records whose (company, kind, period, metric) key already
// exists are left untouched, so the value first ingested is the value kept
// regardless of what a later fetch reports. Returns the number of rows
// actually inserted. A failure mid-batch rolls the whole batch back.
func (myLibrary *Library) UpsertRecords(ctx context.Context, records []*data.StatementRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			if !errors.Is(err, pgx.ErrTxClosed) {
				log.Error().Err(err).Msg("error rolling back statement record tx")
			}
		}
	}()

	var inserted int64
	for _, record := range records {
		tag, err := tx.Exec(ctx, `INSERT INTO financial_statements
			(company_id, statement_kind, fiscal_date_ending, metric_name, metric_value)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (company_id, statement_kind, fiscal_date_ending, metric_name) DO NOTHING`,
			record.CompanyID, record.Kind, record.FiscalDateEnding, record.MetricName, record.MetricValue)
		if err != nil {
			return 0, err
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return inserted, nil
}

// StatementRecords returns every stored fact for one company
func (myLibrary *Library) StatementRecords(ctx context.Context, ticker string) ([]*data.StatementRecord, error) {
	var records []*data.StatementRecord
	err := pgxscan.Select(ctx, myLibrary.Pool, &records,
		`SELECT fs.company_id, c.ticker, fs.statement_kind, fs.fiscal_date_ending, fs.metric_name, fs.metric_value
		FROM financial_statements fs
		JOIN companies c ON fs.company_id = c.id
		WHERE c.ticker = $1
		ORDER BY fs.fiscal_date_ending, fs.metric_name`, ticker)
	return records, err
}

// FlatRecords returns the denormalized long-form export of the whole
// library, one row per stored fact
func (myLibrary *Library) FlatRecords(ctx context.Context) ([]*data.FlatRecord, error) {
	var records []*data.FlatRecord
	err := pgxscan.Select(ctx, myLibrary.Pool, &records,
		`SELECT c.ticker, coalesce(c.name, '') AS company_name,
			to_char(fs.fiscal_date_ending, 'YYYY-MM-DD') AS fiscal_date_ending,
			fs.metric_name, fs.metric_value
		FROM financial_statements fs
		JOIN companies c ON fs.company_id = c.id
		ORDER BY c.ticker, fs.fiscal_date_ending, fs.metric_name`)
	return records, err
}
