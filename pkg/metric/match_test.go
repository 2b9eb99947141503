package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Total Revenue: ":              "total revenue",
		"1. Net Income":                  "net income",
		"(iv) Cash & Cash Equivalents":   "cash and cash equivalents",
		"Shareholders' Equity":           "shareholders equity",
		"Long-term   debt":               "long term debt",
		"a) Cost of goods sold":          "cost of goods sold",
		"2023 Revenue":                   "2023 revenue",
		"":                               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestMatch(t *testing.T) {
	cases := []struct {
		label string
		want  Metric
		ok    bool
	}{
		{"Revenue", Revenue, true},
		{"Net Sales", Revenue, true},
		{"Total revenues (USD)", Revenue, true},
		{"Deferred revenue", Unrecognized, false},
		{"Cost of Revenue", CostOfRevenue, true},
		{"Cost of sales", CostOfRevenue, true},
		{"Net income attributable to shareholders", NetIncome, true},
		{"Total Assets", TotalAssets, true},
		{"Total current assets", CurrentAssets, true},
		{"Other current assets", Unrecognized, false},
		{"Total non-current assets", Unrecognized, false},
		{"Total liabilities and equity", Unrecognized, false},
		{"Total Shareholders' Equity", TotalEquity, true},
		{"Cash and cash equivalents", Cash, true},
		{"Net cash from operating activities", Unrecognized, false},
		{"Long-term borrowings", LongTermDebt, true},
		{"Gross Profit", GrossProfit, true},
		{"Operating profit", OperatingIncome, true},
		{"Other operating income", Unrecognized, false},
		{"Revenu", Revenue, true},
		{"Totl assets", TotalAssets, true},
		{"Employees", Unrecognized, false},
		{"Assets", TotalAssets, true},
		{"Cash", Cash, true},
		{"Cash at bank", Cash, true},
		{"Right-of-use assets", Unrecognized, false},
		{"Other assets", Unrecognized, false},
		{"Financial assets", Unrecognized, false},
		{"Contract liabilities", Unrecognized, false},
		{"Other liabilities", Unrecognized, false},
		{"Petty cash", Unrecognized, false},
		{"Sales and marketing expenses", Unrecognized, false},
		{"Other equity", Unrecognized, false},
		{"", Unrecognized, false},
	}
	for _, tc := range cases {
		got, ok := Match(tc.label)
		assert.Equal(t, tc.ok, ok, "label %q", tc.label)
		assert.Equal(t, tc.want, got, "label %q", tc.label)
	}
}

func TestMatchQuality(t *testing.T) {
	m, q := MatchQuality("Total assets")
	assert.Equal(t, TotalAssets, m)
	assert.Equal(t, Exact, q)

	m, q = MatchQuality("Total assets (audited)")
	assert.Equal(t, TotalAssets, m)
	assert.Equal(t, Contained, q)

	m, q = MatchQuality("Totl assets")
	assert.Equal(t, TotalAssets, m)
	assert.Equal(t, Fuzzy, q)

	_, q = MatchQuality("Other assets")
	assert.Equal(t, NoMatch, q)
}

func TestMentions(t *testing.T) {
	got := Mentions("How did revenue and net income change between 2022 and 2023?")
	assert.Equal(t, []Metric{Revenue, NetIncome}, got)

	got = Mentions("What were current assets?")
	assert.Equal(t, []Metric{CurrentAssets}, got)

	got = Mentions("What is the cost of revenue?")
	assert.Equal(t, []Metric{CostOfRevenue}, got)

	assert.Equal(t, []Metric{Cash}, Mentions("how much cash do we hold?"))
	assert.Empty(t, Mentions("hello there"))
}

func TestVocabularyOrder(t *testing.T) {
	all := All()
	assert.Len(t, all, 12)
	assert.Equal(t, Revenue, all[0])
	assert.Equal(t, CostOfRevenue, all[len(all)-1])
	for i, m := range all {
		assert.Equal(t, i, Order(m))
		assert.True(t, Valid(m))
	}
	assert.False(t, Valid(Unrecognized))
	assert.Equal(t, len(all), Order(Unrecognized))
	assert.Equal(t, "Net Income", Label(NetIncome))
}
