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
	"sort"
	"time"
)

// WideColumn binds one required provider metric to its WideRow column.
type WideColumn struct {
	Metric string
	Header string
	Value  func(*WideRow) int64
	assign func(*WideRow, int64)
}

// WideColumns lists the pivoted metric columns in display order. Reshape
// only pivots metrics named here; everything else in storage stays
// long-form. Metrics absent from storage fill as zero.
var WideColumns = []WideColumn{
	{"totalRevenue", "Revenue",
		func(r *WideRow) int64 { return r.TotalRevenue },
		func(r *WideRow, v int64) { r.TotalRevenue = v }},
	{"grossProfit", "Gross Profit",
		func(r *WideRow) int64 { return r.GrossProfit },
		func(r *WideRow, v int64) { r.GrossProfit = v }},
	{"operatingIncome", "Operating Income",
		func(r *WideRow) int64 { return r.OperatingIncome },
		func(r *WideRow, v int64) { r.OperatingIncome = v }},
	{"netIncome", "Net Income",
		func(r *WideRow) int64 { return r.NetIncome },
		func(r *WideRow, v int64) { r.NetIncome = v }},
	{"totalCurrentAssets", "Current Assets",
		func(r *WideRow) int64 { return r.TotalCurrentAssets },
		func(r *WideRow, v int64) { r.TotalCurrentAssets = v }},
	{"totalCurrentLiabilities", "Current Liabilities",
		func(r *WideRow) int64 { return r.TotalCurrentLiabilities },
		func(r *WideRow, v int64) { r.TotalCurrentLiabilities = v }},
}

var wideAssign map[string]func(*WideRow, int64)

func init() {
	wideAssign = make(map[string]func(*WideRow, int64), len(WideColumns))
	for _, column := range WideColumns {
		wideAssign[column.Metric] = column.assign
	}
}

// RequiredMetrics returns the provider metric names the reshaper pivots
// into WideRow columns.
func RequiredMetrics() []string {
	names := make([]string, len(WideColumns))
	for i, column := range WideColumns {
		names[i] = column.Metric
	}
	return names
}

type wideKey struct {
	ticker string
	period time.Time
}

// Reshape pivots long-form records into one WideRow per (company, period).
// Output is grouped by ticker and within a ticker ordered by fiscal date
// ascending, oldest first. Derive depends on that ordering for the
// period-over-period growth calculation.
func Reshape(records []*StatementRecord, names map[string]string) []*WideRow {
	rows := make(map[wideKey]*WideRow)

	for _, record := range records {
		key := wideKey{ticker: record.Ticker, period: record.FiscalDateEnding}
		row, ok := rows[key]
		if !ok {
			row = &WideRow{
				Ticker:           record.Ticker,
				CompanyName:      names[record.Ticker],
				FiscalDateEnding: record.FiscalDateEnding,
			}
			rows[key] = row
		}

		if assign, ok := wideAssign[record.MetricName]; ok {
			assign(row, record.MetricValue)
		}
	}

	out := make([]*WideRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].FiscalDateEnding.Before(out[j].FiscalDateEnding)
	})

	return out
}

// Tickers returns the distinct tickers present in a wide-row series,
// preserving the grouped ordering Reshape produces.
func Tickers(rows []*WideRow) []string {
	var tickers []string
	for _, row := range rows {
		if len(tickers) == 0 || tickers[len(tickers)-1] != row.Ticker {
			tickers = append(tickers, row.Ticker)
		}
	}
	return tickers
}

// FilterTicker returns the subset of rows belonging to one company.
func FilterTicker(rows []*WideRow, ticker string) []*WideRow {
	var out []*WideRow
	for _, row := range rows {
		if row.Ticker == ticker {
			out = append(out, row)
		}
	}
	return out
}
