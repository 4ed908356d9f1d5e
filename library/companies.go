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

	"github.com/alphadose/haxmap"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/finlore/fsdata/data"
)

var (
	companyCache *haxmap.Map[string, *data.Company]
)

func init() {
	companyCache = haxmap.New[string, *data.Company]()
}

// cacheCompany stores a copy of the company so callers can never mutate the
// cached entry through a returned pointer
func cacheCompany(company *data.Company) {
	cached := *company
	companyCache.Set(company.Ticker, &cached)
}

// cacheCompanyName applies the backfill rule to a cached entry: a name
// already stored is never overwritten
func cacheCompanyName(ticker string, name string) {
	company, ok := companyCache.Get(ticker)
	if !ok {
		return
	}

	if company.Name == "" || company.Name == ticker {
		updated := *company
		updated.Name = name
		companyCache.Set(ticker, &updated)
	}
}

// LoadCompanyCache warms the ticker to company map from the database.
// The cache is safe for concurrent readers on the presentation path.
func (myLibrary *Library) LoadCompanyCache(ctx context.Context) {
	var companies []*data.Company
	err := pgxscan.Select(ctx, myLibrary.Pool, &companies, "SELECT id, ticker, coalesce(name, '') AS name FROM companies")
	if err != nil {
		log.Error().Err(err).Msg("could not load company cache")
		return
	}

	for _, company := range companies {
		cacheCompany(company)
	}
}

// GetOrCreateCompany looks up a company by ticker, creating it on first
// encounter. The operation is idempotent on ticker; when the company
// already exists the stored name is returned and any newly supplied name is
// ignored (first-write-wins).
func (myLibrary *Library) GetOrCreateCompany(ctx context.Context, ticker string, name string) (*data.Company, error) {
	if cached, ok := companyCache.Get(ticker); ok {
		company := *cached
		return &company, nil
	}

	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	company := &data.Company{Ticker: ticker, Name: name}
	err = conn.QueryRow(ctx,
		`INSERT INTO companies (ticker, name) VALUES ($1, $2) ON CONFLICT (ticker) DO NOTHING RETURNING id`,
		ticker, name).Scan(&company.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		// already present; keep the stored name
		err = conn.QueryRow(ctx, `SELECT id, coalesce(name, '') AS name FROM companies WHERE ticker=$1`, ticker).
			Scan(&company.ID, &company.Name)
	}
	if err != nil {
		return nil, err
	}

	cacheCompany(company)
	return company, nil
}

// BackfillCompanyName fills in a company name that was unknown at creation.
// Names already stored are never overwritten.
func (myLibrary *Library) BackfillCompanyName(ctx context.Context, ticker string, name string) error {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`UPDATE companies SET name=$2 WHERE ticker=$1 AND (name IS NULL OR name='' OR name=ticker)`,
		ticker, name)
	if err != nil {
		return err
	}

	cacheCompanyName(ticker, name)
	return nil
}

// Companies returns all tracked companies ordered by ticker
func (myLibrary *Library) Companies(ctx context.Context) ([]*data.Company, error) {
	var companies []*data.Company
	err := pgxscan.Select(ctx, myLibrary.Pool, &companies,
		"SELECT id, ticker, coalesce(name, '') AS name FROM companies ORDER BY ticker")
	return companies, err
}
