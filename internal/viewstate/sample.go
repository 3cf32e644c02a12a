package viewstate

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"traty/internal/core"
)

//go:embed sample_expenses.yaml
var sampleYAML []byte

type sampleRecord struct {
	Amount   string `yaml:"amount"`
	Currency string `yaml:"currency"`
	Category string `yaml:"category"`
	Comment  string `yaml:"comment"`
	Date     string `yaml:"date"`
}

// SampleExpenses returns the demonstration dataset in insertion order.
func SampleExpenses() ([]core.Expense, error) {
	var records []sampleRecord
	if err := yaml.Unmarshal(sampleYAML, &records); err != nil {
		return nil, fmt.Errorf("decode sample data: %w", err)
	}

	out := make([]core.Expense, 0, len(records))
	for i, r := range records {
		e, err := core.ExpenseInput{
			Amount:   r.Amount,
			Currency: r.Currency,
			Category: r.Category,
			Comment:  r.Comment,
			Date:     r.Date,
		}.Build()
		if err != nil {
			return nil, fmt.Errorf("sample record %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}
