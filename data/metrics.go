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

import "fmt"

// Epsilon stands in for revenue or current-liability values of exactly zero
// so ratio division stays finite. The resulting figures are large but
// displayable; genuinely zero-revenue periods therefore report misleadingly
// large percentages rather than an explicit not-available marker.
const Epsilon = 1e-9

// NotAvailable is the literal marker the presentation layer renders for
// undefined values, such as growth on the first period of a series.
const NotAvailable = "N/A"

// Derive computes the ratio set for one company's wide-row series. The
// input must be ordered by fiscal date ascending for a single ticker;
// revenue growth for each row is computed against the immediately preceding
// row and is unavailable for the first row.
func Derive(rows []*WideRow) []*DerivedMetrics {
	out := make([]*DerivedMetrics, 0, len(rows))

	for i, row := range rows {
		revenue := nonZero(float64(row.TotalRevenue))
		liabilities := nonZero(float64(row.TotalCurrentLiabilities))

		metrics := &DerivedMetrics{
			Ticker:             row.Ticker,
			FiscalDateEnding:   row.FiscalDateEnding,
			GrossMarginPct:     float64(row.GrossProfit) / revenue * 100,
			OperatingMarginPct: float64(row.OperatingIncome) / revenue * 100,
			NetMarginPct:       float64(row.NetIncome) / revenue * 100,
			CurrentRatio:       float64(row.TotalCurrentAssets) / liabilities,
		}

		if i > 0 {
			prev := nonZero(float64(rows[i-1].TotalRevenue))
			metrics.RevenueGrowthPct = (float64(row.TotalRevenue) - prev) / prev * 100
			metrics.HasRevenueGrowth = true
		}

		out = append(out, metrics)
	}

	return out
}

func nonZero(v float64) float64 {
	if v == 0 {
		return Epsilon
	}
	return v
}

// FormatPercent renders a percentage metric with two decimals and a percent
// suffix
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// FormatRatio renders a ratio metric with two decimals
func FormatRatio(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// FormatGrowth renders revenue growth, or the not-available marker for
// periods with no prior history
func FormatGrowth(m *DerivedMetrics) string {
	if !m.HasRevenueGrowth {
		return NotAvailable
	}
	return FormatPercent(m.RevenueGrowthPct)
}
