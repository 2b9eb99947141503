package rag

import (
	"fmt"
	"sort"
	"strings"

	"finchat/models"
	"finchat/pkg/chunk"
	"finchat/pkg/metric"
)

const systemTemplate = `You are a financial analysis assistant for %s.
Answer using only the financial data listed below. If the data does not contain what is asked, say that it is not available instead of guessing.
Quote figures with their fiscal year and currency. Amounts are in %s unless a line states otherwise. Keep answers short and factual.

Financial data:
%s`

// BuildPrompt assembles the system instructions, the selected chunks (ordered
// by year and metric), the bounded history and the question.
func BuildPrompt(company models.Company, chunks []chunk.Chunk, history []Message, question string) Prompt {
	ordered := append([]chunk.Chunk(nil), chunks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Year != ordered[j].Year {
			return ordered[i].Year < ordered[j].Year
		}
		return metric.Order(ordered[i].Metric) < metric.Order(ordered[j].Metric)
	})
	var b strings.Builder
	for _, c := range ordered {
		b.WriteString("- ")
		b.WriteString(c.Text)
		b.WriteByte('\n')
	}
	currency := company.Currency
	if currency == "" {
		currency = "USD"
	}
	return Prompt{
		System:   fmt.Sprintf(systemTemplate, company.Name, currency, b.String()),
		History:  history,
		Question: strings.TrimSpace(question),
	}
}
