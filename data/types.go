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
package data

import (
	"time"

	"github.com/google/uuid"
)

type StatementKind string

const (
	IncomeStatement StatementKind = "INCOME_STATEMENT"
	BalanceSheet    StatementKind = "BALANCE_SHEET"
	CashFlow        StatementKind = "CASH_FLOW"
)

// StatementKinds lists every statement kind in the order the pipeline
// fetches them for a company.
var StatementKinds = []StatementKind{IncomeStatement, BalanceSheet, CashFlow}

// Company is a tracked entity identified by its ticker. Companies are
// created on first encounter and never deleted; the name may be backfilled
// later if it was unknown at creation time.
type Company struct {
	ID     int64  `db:"id"`
	Ticker string `db:"ticker"`
	Name   string `db:"name"`
}

// StatementRecord is a single long-form fact: one metric for one company,
// statement kind and fiscal period. The store enforces uniqueness over
// (company, kind, period, metric).
type StatementRecord struct {
	CompanyID        int64         `db:"company_id"`
	Ticker           string        `db:"ticker"`
	Kind             StatementKind `db:"statement_kind"`
	FiscalDateEnding time.Time     `db:"fiscal_date_ending"`
	MetricName       string        `db:"metric_name"`
	MetricValue      int64         `db:"metric_value"`
}

// Reject records a single field that the normalizer dropped while flattening
// an annual report. Rejects are results, not errors; a malformed field never
// aborts normalization of the rest of the report.
type Reject struct {
	Ticker           string
	Kind             StatementKind
	FiscalDateEnding string
	MetricName       string
	RawValue         string
	Reason           string
}

// WideRow is one (company, period) row pivoted out of the long-form store
// with a fixed column per required metric. Metrics absent from storage are
// zero. WideRows are derived fresh on each query and never persisted.
type WideRow struct {
	Ticker                  string
	CompanyName             string
	FiscalDateEnding        time.Time
	TotalRevenue            int64
	GrossProfit             int64
	OperatingIncome         int64
	NetIncome               int64
	TotalCurrentAssets      int64
	TotalCurrentLiabilities int64
}

// DerivedMetrics holds the computed financial ratios for one
// (company, period). RevenueGrowthPct is only meaningful when
// HasRevenueGrowth is set; the first period of a company's series has no
// prior period to grow from.
type DerivedMetrics struct {
	Ticker             string
	FiscalDateEnding   time.Time
	GrossMarginPct     float64
	OperatingMarginPct float64
	NetMarginPct       float64
	CurrentRatio       float64
	RevenueGrowthPct   float64
	HasRevenueGrowth   bool
}

// SyncState is the per-company incremental-sync bookkeeping row.
// LastSynced is nil for companies that have never completed a full
// fetch-and-load cycle.
type SyncState struct {
	CompanyID  int64      `db:"company_id"`
	Ticker     string     `db:"ticker"`
	LastSynced *time.Time `db:"last_synced"`
}

// RunSummary describes a completed pipeline run
type RunSummary struct {
	RunID        uuid.UUID
	StartTime    time.Time
	EndTime      time.Time
	NumRecords   int64
	NumCompanies int
	NumFailures  int
}
