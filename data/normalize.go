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
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// MaxPeriods bounds how much statement history is retained per company and
// statement kind. Only the newest periods by fiscal date survive
// normalization; older reports supplied by the provider are discarded.
const MaxPeriods = 3

const fiscalDateField = "fiscalDateEnding"

// reportedCurrency is a string field present in every statement report; it
// is skipped outright rather than counted as a coercion reject.
const currencyField = "reportedCurrency"

type statementPayload struct {
	Symbol        string            `json:"symbol"`
	AnnualReports []json.RawMessage `json:"annualReports"`
}

// Normalize flattens one statement payload into long-form records, one per
// numeric metric per retained period. Payloads without the expected
// annualReports collection produce zero records and a log message; that is
// a recoverable condition, not an error. Individual fields that hold a
// "None" sentinel or fail integer coercion are dropped into the returned
// reject list without disturbing the rest of the report.
func Normalize(payload []byte, company *Company, kind StatementKind) ([]*StatementRecord, []Reject, error) {
	var parsed statementPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, nil, err
	}

	if len(parsed.AnnualReports) == 0 {
		log.Warn().Str("Ticker", company.Ticker).Str("StatementKind", string(kind)).
			Msg("payload has no annual reports")
		return nil, nil, nil
	}

	reports := make([]map[string]string, 0, len(parsed.AnnualReports))
	for _, raw := range parsed.AnnualReports {
		var report map[string]string
		if err := json.Unmarshal(raw, &report); err != nil {
			log.Warn().Err(err).Str("Ticker", company.Ticker).Str("StatementKind", string(kind)).
				Msg("skipping malformed annual report")
			continue
		}
		reports = append(reports, report)
	}

	// newest first, keep the most recent periods only
	sort.Slice(reports, func(i, j int) bool {
		return reports[i][fiscalDateField] > reports[j][fiscalDateField]
	})
	if len(reports) > MaxPeriods {
		reports = reports[:MaxPeriods]
	}

	var (
		records []*StatementRecord
		rejects []Reject
	)

	for _, report := range reports {
		fiscalDateStr := report[fiscalDateField]
		fiscalDate, err := time.Parse("2006-01-02", fiscalDateStr)
		if err != nil {
			log.Warn().Err(err).Str("Ticker", company.Ticker).Str("FiscalDateEnding", fiscalDateStr).
				Msg("skipping report with unparseable fiscal date")
			continue
		}

		for name, value := range report {
			if name == fiscalDateField || name == currencyField {
				continue
			}

			if value == "" || value == "None" {
				rejects = append(rejects, Reject{
					Ticker:           company.Ticker,
					Kind:             kind,
					FiscalDateEnding: fiscalDateStr,
					MetricName:       name,
					RawValue:         value,
					Reason:           "null sentinel",
				})
				continue
			}

			numeric, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				rejects = append(rejects, Reject{
					Ticker:           company.Ticker,
					Kind:             kind,
					FiscalDateEnding: fiscalDateStr,
					MetricName:       name,
					RawValue:         value,
					Reason:           "not an integer",
				})
				continue
			}

			records = append(records, &StatementRecord{
				CompanyID:        company.ID,
				Ticker:           company.Ticker,
				Kind:             kind,
				FiscalDateEnding: fiscalDate,
				MetricName:       name,
				MetricValue:      numeric,
			})
		}
	}

	if len(rejects) > 0 {
		log.Debug().Str("Ticker", company.Ticker).Str("StatementKind", string(kind)).
			Int("NumRejects", len(rejects)).Msg("dropped non-numeric metric fields")
	}

	return records, rejects, nil
}
