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
	"os"
	"time"

	"github.com/gocarina/gocsv"
)

// FlatRecord is one row of the denormalized long-form export, the
// interchange format between the pipeline and the presentation consumer
// when direct store access is unavailable.
type FlatRecord struct {
	Ticker           string `csv:"ticker" db:"ticker"`
	CompanyName      string `csv:"company_name" db:"company_name"`
	FiscalDateEnding string `csv:"fiscal_date_ending" db:"fiscal_date_ending"`
	MetricName       string `csv:"metric_name" db:"metric_name"`
	MetricValue      int64  `csv:"metric_value" db:"metric_value"`
}

// WriteFlatFile saves long-form export rows as CSV
func WriteFlatFile(fn string, records []*FlatRecord) error {
	fh, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer fh.Close()

	return gocsv.MarshalFile(&records, fh)
}

// ReadFlatFile loads a previously exported CSV
func ReadFlatFile(fn string) ([]*FlatRecord, error) {
	fh, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var records []*FlatRecord
	if err := gocsv.UnmarshalFile(fh, &records); err != nil {
		return nil, err
	}

	return records, nil
}

// StatementRecords converts flat export rows back into long-form statement
// records plus a ticker to company-name map, suitable for Reshape. Rows with
// unparseable dates are skipped.
func StatementRecords(flat []*FlatRecord) ([]*StatementRecord, map[string]string) {
	records := make([]*StatementRecord, 0, len(flat))
	names := make(map[string]string)

	for _, row := range flat {
		fiscalDate, err := time.Parse("2006-01-02", row.FiscalDateEnding)
		if err != nil {
			continue
		}

		names[row.Ticker] = row.CompanyName
		records = append(records, &StatementRecord{
			Ticker:           row.Ticker,
			FiscalDateEnding: fiscalDate,
			MetricName:       row.MetricName,
			MetricValue:      row.MetricValue,
		})
	}

	return records, names
}
