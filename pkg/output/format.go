// Package output provides utilities for formatting and displaying atlas
// results.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/iwvelando/tax-atlas/internal/atlas"
	"github.com/iwvelando/tax-atlas/internal/catalog"
	"github.com/iwvelando/tax-atlas/internal/tax"
	"github.com/iwvelando/tax-atlas/pkg/format"
	"github.com/iwvelando/tax-atlas/pkg/optimization"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NotReached is shown in place of an income the search could not find.
const NotReached = "not reached"

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, profile tax.Profile, entries []atlas.Entry) error {
	p := message.NewPrinter(language.English)

	if _, err := p.Fprintf(w, "--- Effective income tax for %.2f USD (%s) ---\n", profile.IncomeUSD, describeProfile(profile)); err != nil {
		return err
	}
	fmt.Fprintf(w, "Country | Rate | Tax | Notes\n")
	fmt.Fprintf(w, "_______ | ____ | ___ | _____\n")
	for _, entry := range entries {
		owed := ""
		if entry.Result.Finite() {
			owed = format.Amount(entry.Result.Tax, entry.Result.Currency)
		}
		if _, err := fmt.Fprintf(w, "%s | %s | %s | %s\n",
			entry.Country,
			format.Percentage(entry.Result.Percentage),
			owed,
			entry.Result.Notice,
		); err != nil {
			return err
		}
	}

	summary := atlas.Summarize(entries)
	fmt.Fprintf(w, "\n")
	_, err := p.Fprintf(w, "%d countries, %d with a rate", summary.Count, summary.Available)
	if err != nil {
		return err
	}
	if summary.Available > 0 {
		lowest, highest, mean := summary.Min, summary.Max, summary.Mean
		fmt.Fprintf(w, "; lowest %s (%s), highest %s (%s), mean %s",
			format.Percentage(&lowest), summary.MinCountry,
			format.Percentage(&highest), summary.MaxCountry,
			format.Percentage(&mean),
		)
	}
	_, err = fmt.Fprintf(w, "\n")
	return err
}

// CsvFormat outputs in comma-separated value format.
func CsvFormat(w io.Writer, entries []atlas.Entry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"country", "percentage", "tax", "local income", "currency", "link", "notice"}); err != nil {
		return err
	}
	for _, entry := range entries {
		percentage, owed, local := "", "", ""
		if entry.Result.Finite() {
			value, _ := entry.Result.Value()
			percentage = fmt.Sprintf("%.6f", value)
			owed = fmt.Sprintf("%.2f", entry.Result.Tax)
			local = fmt.Sprintf("%.2f", entry.Result.LocalIncome)
		}
		record := []string{
			entry.Country,
			percentage,
			owed,
			local,
			entry.Result.Currency,
			entry.Result.Link,
			entry.Result.Notice,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Document is the JSON rendering of an atlas run.
type Document struct {
	Profile tax.Profile   `json:"profile"`
	Entries []atlas.Entry `json:"entries"`
	Summary atlas.Summary `json:"summary"`
}

// NewDocument bundles entries with their summary.
func NewDocument(profile tax.Profile, entries []atlas.Entry) Document {
	if entries == nil {
		entries = []atlas.Entry{}
	}
	return Document{Profile: profile, Entries: entries, Summary: atlas.Summarize(entries)}
}

// JSONFormat outputs the entries and their summary as indented JSON.
func JSONFormat(w io.Writer, profile tax.Profile, entries []atlas.Entry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewDocument(profile, entries))
}

// ExplainFormat outputs the per-bracket breakdown of one country's tax.
func ExplainFormat(w io.Writer, entry atlas.Entry, explanations []catalog.Explanation) error {
	p := message.NewPrinter(language.English)
	currency := entry.Result.Currency

	fmt.Fprintf(w, "--- Breakdown for %s ---\n", entry.Country)
	if len(explanations) == 0 {
		_, err := fmt.Fprintf(w, "No bracket breakdown available (%s)\n", format.Percentage(entry.Result.Percentage))
		return err
	}
	_, _ = p.Fprintf(w, "Income: %.2f %s\n", entry.Result.LocalIncome, currency)
	for _, explanation := range explanations {
		if len(explanation.Slices) == 0 {
			rate := explanation.FlatRate
			fmt.Fprintf(w, "%s: flat %s = %s\n", explanation.Component, format.Percentage(&rate), format.Amount(explanation.Tax, currency))
			continue
		}
		marginal := explanation.MarginalRate
		fmt.Fprintf(w, "%s (marginal %s):\n", explanation.Component, format.Percentage(&marginal))
		for _, slice := range explanation.Slices {
			rate := slice.Rate
			upTo := "and above"
			if !math.IsInf(slice.UpTo, 1) {
				upTo = "to " + format.Amount(slice.UpTo, "")
			}
			fmt.Fprintf(w, "  %s %s at %s: %s\n",
				format.Amount(slice.From, ""), upTo, format.Percentage(&rate), format.Amount(slice.Tax, currency))
		}
		fmt.Fprintf(w, "  subtotal %s\n", format.Amount(explanation.Tax, currency))
	}
	_, err := fmt.Fprintf(w, "Total: %s (%s)\n", format.Amount(entry.Result.Tax, currency), format.Percentage(entry.Result.Percentage))
	return err
}

// SolveFormat outputs the incomes found for a target effective rate.
func SolveFormat(w io.Writer, summaries []optimization.Summary) error {
	if len(summaries) == 0 {
		return nil
	}
	target := summaries[0].Target
	fmt.Fprintf(w, "--- Income reaching an effective rate of %s ---\n", format.Percentage(&target))
	fmt.Fprintf(w, "Country | Income | Rate | Notes\n")
	fmt.Fprintf(w, "_______ | ______ | ____ | _____\n")
	for _, summary := range summaries {
		income := summary.ValueDisplay
		if !summary.Converged {
			income = NotReached
		}
		achieved := summary.Achieved
		if _, err := fmt.Fprintf(w, "%s | %s | %s | %s\n",
			summary.TargetName,
			income,
			format.Percentage(&achieved),
			strings.Join(summary.Notes, "; "),
		); err != nil {
			return err
		}
	}
	return nil
}

func describeProfile(profile tax.Profile) string {
	parts := []string{"single"}
	if profile.Married {
		parts[0] = "married"
	}
	if profile.OneIncome {
		parts = append(parts, "one income")
	} else {
		parts = append(parts, "two incomes")
	}
	return strings.Join(parts, ", ")
}
