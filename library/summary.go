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
	"fmt"
	"strings"
	"time"

	"github.com/xeonx/timeago"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Summary returns a description of the library in markdown
func (myLibrary *Library) Summary(ctx context.Context) (string, error) {
	p := message.NewPrinter(language.English)
	builder := strings.Builder{}

	if _, err := builder.WriteString(fmt.Sprintf("# %s\n", myLibrary.Name)); err != nil {
		return "", err
	}

	if _, err := builder.WriteString("## Details\n\n"); err != nil {
		return "", err
	}

	if _, err := builder.WriteString(fmt.Sprintf("Database: %s\n\n", myLibrary.DBUrl)); err != nil {
		return "", err
	}

	numCompanies, err := myLibrary.NumCompanies(ctx)
	if err != nil {
		return "", err
	}

	if _, err := builder.WriteString(p.Sprintf("  * Companies Tracked: %d\n", numCompanies)); err != nil {
		return "", err
	}

	totalRecords, err := myLibrary.TotalRecords(ctx)
	if err != nil {
		return "", err
	}

	if _, err := builder.WriteString(p.Sprintf("  * Statement Facts: %d\n\n", totalRecords)); err != nil {
		return "", err
	}

	lastUpdated, err := myLibrary.LastUpdated(ctx)
	if err != nil {
		return "", err
	}

	if lastUpdated.Equal(time.Time{}) || lastUpdated.Year() == 1 {
		if _, err := builder.WriteString("Last Synced: Never\n\n"); err != nil {
			return "", err
		}
	} else {
		age := timeago.English.Format(lastUpdated)
		if _, err := builder.WriteString(fmt.Sprintf("Last Synced: %s (%s)\n\n", age, lastUpdated.Local().Format("01/02/2006"))); err != nil {
			return "", err
		}
	}

	if _, err := builder.WriteString("## Companies\n\n"); err != nil {
		return "", err
	}

	states, err := myLibrary.SyncStates(ctx)
	if err != nil {
		return "", err
	}

	companies, err := myLibrary.Companies(ctx)
	if err != nil {
		return "", err
	}

	lastSynced := make(map[string]*time.Time, len(states))
	for _, state := range states {
		lastSynced[state.Ticker] = state.LastSynced
	}

	for _, company := range companies {
		synced := "never synced"
		if ts := lastSynced[company.Ticker]; ts != nil {
			synced = timeago.English.Format(*ts)
		}

		if _, err := builder.WriteString(p.Sprintf("  * %s (%s) last synced %s\n", company.Name, company.Ticker, synced)); err != nil {
			return "", err
		}
	}

	return builder.String(), nil
}
