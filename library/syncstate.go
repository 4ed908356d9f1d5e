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
	"sort"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/finlore/fsdata/data"
)

// SyncStates returns the per-company sync bookkeeping for every tracked
// company. Companies that have never completed a sync cycle carry a nil
// LastSynced.
func (myLibrary *Library) SyncStates(ctx context.Context) ([]*data.SyncState, error) {
	var states []*data.SyncState
	err := pgxscan.Select(ctx, myLibrary.Pool, &states,
		`SELECT c.id AS company_id, c.ticker, ss.last_synced
		FROM companies c
		LEFT JOIN sync_state ss ON ss.company_id = c.id`)
	return states, err
}

// NextBatch selects up to batchSize tickers due for refresh, never-synced
// companies first, then oldest last-synced
func (myLibrary *Library) NextBatch(ctx context.Context, batchSize int) ([]string, error) {
	states, err := myLibrary.SyncStates(ctx)
	if err != nil {
		return nil, err
	}

	return SelectOldest(states, batchSize), nil
}

// SelectOldest picks the batchSize companies with the oldest (or missing)
// last-synced timestamp. Ties break by ticker ascending so batch selection
// is deterministic across runs.
func SelectOldest(states []*data.SyncState, batchSize int) []string {
	sorted := make([]*data.SyncState, len(states))
	copy(sorted, states)

	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.LastSynced == nil && b.LastSynced == nil:
			return a.Ticker < b.Ticker
		case a.LastSynced == nil:
			return true
		case b.LastSynced == nil:
			return false
		case !a.LastSynced.Equal(*b.LastSynced):
			return a.LastSynced.Before(*b.LastSynced)
		default:
			return a.Ticker < b.Ticker
		}
	})

	if batchSize > len(sorted) {
		batchSize = len(sorted)
	}

	tickers := make([]string, 0, batchSize)
	for _, state := range sorted[:batchSize] {
		tickers = append(tickers, state.Ticker)
	}

	return tickers
}

// MarkSynced records a successful, fully committed fetch-and-load cycle for
// a company. Callers must not invoke this when any statement-kind step of
// the cycle failed; an untouched timestamp is what gets the company retried
// on the next run.
func (myLibrary *Library) MarkSynced(ctx context.Context, ticker string, ts time.Time) error {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `INSERT INTO sync_state (company_id, last_synced)
		SELECT id, $2 FROM companies WHERE ticker=$1
		ON CONFLICT (company_id) DO UPDATE SET last_synced = EXCLUDED.last_synced`,
		ticker, ts)
	return err
}
