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

// Package pipeline orchestrates the fetch-normalize-upsert cycle. Companies
// are processed strictly one at a time, and within a company the three
// statement kinds load sequentially, each in its own transaction. The
// external rate limit is budgeted per call, so there is no concurrent
// fetching.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/finlore/fsdata/alphavantage"
	"github.com/finlore/fsdata/data"
	"github.com/finlore/fsdata/healthcheck"
)

// Fetcher is the upstream statement provider
type Fetcher interface {
	FetchCompanyOverview(ctx context.Context, ticker string) (*alphavantage.CompanyOverview, error)
	FetchStatement(ctx context.Context, ticker string, kind data.StatementKind) ([]byte, error)
}

// Store is the persistence surface the pipeline writes through. It is
// satisfied by *library.Library.
type Store interface {
	GetOrCreateCompany(ctx context.Context, ticker string, name string) (*data.Company, error)
	BackfillCompanyName(ctx context.Context, ticker string, name string) error
	UpsertRecords(ctx context.Context, records []*data.StatementRecord) (int64, error)
	NextBatch(ctx context.Context, batchSize int) ([]string, error)
	MarkSynced(ctx context.Context, ticker string, ts time.Time) error
}

type Pipeline struct {
	Client Fetcher
	Store  Store

	// Tickers seeds the tracked-company universe; companies are created on
	// first encounter and thereafter scheduled through sync state
	Tickers []string

	// BatchSize caps how many companies one run refreshes so a large
	// universe can be cycled through without exhausting the request quota
	BatchSize int

	// HealthCheckID, when set, is pinged after each run
	HealthCheckID string

	now func() time.Time
}

func New(client Fetcher, store Store, tickers []string, batchSize int) *Pipeline {
	return &Pipeline{
		Client:    client,
		Store:     store,
		Tickers:   tickers,
		BatchSize: batchSize,
		now:       time.Now,
	}
}

// Run executes one batch of the incremental refresh. No failure below the
// per-company-per-statement-kind step is fatal; the pipeline makes
// best-effort progress across the whole batch and reports aggregate counts.
func (pipeline *Pipeline) Run(ctx context.Context) (*data.RunSummary, error) {
	summary := &data.RunSummary{
		RunID:     uuid.New(),
		StartTime: pipeline.now(),
	}

	defer func() {
		summary.EndTime = pipeline.now()
	}()

	logger := log.With().Str("RunID", summary.RunID.String()).Logger()

	// make sure every configured ticker is tracked before batch selection
	for _, ticker := range pipeline.Tickers {
		if _, err := pipeline.Store.GetOrCreateCompany(ctx, ticker, ""); err != nil {
			return summary, err
		}
	}

	batch, err := pipeline.Store.NextBatch(ctx, pipeline.BatchSize)
	if err != nil {
		return summary, err
	}

	logger.Info().Strs("Batch", batch).Msg("starting statement refresh")

	for _, ticker := range batch {
		// a long-running batch stops between companies, never inside a
		// company's load
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		summary.NumCompanies++

		if pipeline.processCompany(ctx, logger.With().Str("Ticker", ticker).Logger(), ticker, summary) {
			if err := pipeline.Store.MarkSynced(ctx, ticker, pipeline.now()); err != nil {
				logger.Error().Err(err).Str("Ticker", ticker).Msg("could not record sync state")
			}
		} else {
			summary.NumFailures++
		}
	}

	logger.Info().Int64("NumRecords", summary.NumRecords).Int("NumCompanies", summary.NumCompanies).
		Int("NumFailures", summary.NumFailures).Msg("pipeline run finished")

	if pipeline.HealthCheckID != "" {
		ping := healthcheck.Ping
		if summary.NumFailures > 0 {
			ping = healthcheck.PingFailure
		}
		if err := ping(pipeline.HealthCheckID); err != nil {
			logger.Error().Err(err).Msg("could not ping health check")
		}
	}

	return summary, nil
}

// processCompany runs the full fetch-normalize-upsert cycle for one
// company and reports whether every statement kind committed. Partial
// failure leaves the company's sync timestamp untouched so it is retried
// on the next run.
func (pipeline *Pipeline) processCompany(ctx context.Context, logger zerolog.Logger, ticker string, summary *data.RunSummary) bool {
	company, err := pipeline.Store.GetOrCreateCompany(ctx, ticker, "")
	if err != nil {
		logger.Error().Err(err).Msg("could not load company")
		return false
	}

	if company.Name == "" {
		overview, err := pipeline.Client.FetchCompanyOverview(ctx, ticker)
		if err != nil {
			// keep going with the bare ticker; the name backfills on a
			// later run
			logger.Warn().Err(err).Msg("could not fetch company overview")
		} else {
			company.Name = overview.Name
			if err := pipeline.Store.BackfillCompanyName(ctx, ticker, overview.Name); err != nil {
				logger.Error().Err(err).Msg("could not backfill company name")
			}
		}
	}

	committed := true

	for _, kind := range data.StatementKinds {
		payload, err := pipeline.Client.FetchStatement(ctx, ticker, kind)
		if err != nil {
			logger.Error().Err(err).Str("StatementKind", string(kind)).Msg("statement fetch failed")
			committed = false
			continue
		}

		records, rejects, err := data.Normalize(payload, company, kind)
		if err != nil {
			logger.Error().Err(err).Str("StatementKind", string(kind)).Msg("could not normalize payload")
			committed = false
			continue
		}

		if len(rejects) > 0 {
			logger.Debug().Str("StatementKind", string(kind)).Int("NumRejects", len(rejects)).
				Msg("normalizer dropped fields")
		}

		inserted, err := pipeline.Store.UpsertRecords(ctx, records)
		if err != nil {
			logger.Error().Err(err).Str("StatementKind", string(kind)).Msg("could not save statement records")
			committed = false
			continue
		}

		summary.NumRecords += inserted
		logger.Info().Str("StatementKind", string(kind)).Int64("NumInserted", inserted).Msg("loaded statement")
	}

	return committed
}
