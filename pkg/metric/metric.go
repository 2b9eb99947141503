// Package metric holds the canonical financial line-item vocabulary and the pure
// label normalization/matching used by extraction and retrieval.
package metric

// Metric is a canonical line-item name as stored in financial_facts.metric.
type Metric string

const (
	Revenue            Metric = "revenue"
	NetIncome          Metric = "net_income"
	TotalAssets        Metric = "total_assets"
	TotalLiabilities   Metric = "total_liabilities"
	TotalEquity        Metric = "total_equity"
	CurrentAssets      Metric = "current_assets"
	CurrentLiabilities Metric = "current_liabilities"
	Cash               Metric = "cash_and_equivalents"
	LongTermDebt       Metric = "long_term_debt"
	GrossProfit        Metric = "gross_profit"
	OperatingIncome    Metric = "operating_income"
	CostOfRevenue      Metric = "cost_of_revenue"

	// Unrecognized is the bucket for rows that match nothing. It is never stored.
	Unrecognized Metric = "unrecognized"
)

// definition ties a metric to its display label and recognized label variants.
// Synonyms are written in normalized form.
type definition struct {
	Metric   Metric
	Label    string
	Synonyms []string
	// Exact lists generic one-word labels ("assets", "cash") that only match a
	// whole label, never as part of a longer one such as "Other assets".
	Exact []string
	// Excludes lists words that veto a containment match (e.g. "deferred revenue").
	Excludes []string
}

// vocabulary is ordered: the order is the fixed read ordering and breaks match ties.
var vocabulary = []definition{
	{
		Metric: Revenue, Label: "Revenue",
		Synonyms: []string{"revenue", "revenues", "total revenue", "total revenues", "net sales", "total sales", "net revenue", "net revenues", "operating revenue"},
		Exact:    []string{"sales", "turnover"},
		Excludes: []string{"deferred", "unearned", "cost", "costs", "expense", "expenses"},
	},
	{
		Metric: NetIncome, Label: "Net Income",
		Synonyms: []string{"net income", "net profit", "net earnings", "profit after tax", "net income loss", "net profit loss", "profit for the year", "profit for the period", "net loss"},
	},
	{
		Metric: TotalAssets, Label: "Total Assets",
		Synonyms: []string{"total assets", "assets total"},
		Exact:    []string{"assets"},
		Excludes: []string{"current", "net", "intangible", "tax"},
	},
	{
		Metric: TotalLiabilities, Label: "Total Liabilities",
		Synonyms: []string{"total liabilities", "liabilities total"},
		Exact:    []string{"liabilities"},
		Excludes: []string{"current", "equity", "tax", "lease"},
	},
	{
		Metric: TotalEquity, Label: "Total Equity",
		Synonyms: []string{"total equity", "shareholders equity", "stockholders equity", "total shareholders equity", "total stockholders equity", "net worth"},
		Exact:    []string{"equity"},
		Excludes: []string{"liabilities"},
	},
	{
		Metric: CurrentAssets, Label: "Current Assets",
		Synonyms: []string{"total current assets", "current assets"},
		Excludes: []string{"non current", "noncurrent", "other"},
	},
	{
		Metric: CurrentLiabilities, Label: "Current Liabilities",
		Synonyms: []string{"total current liabilities", "current liabilities"},
		Excludes: []string{"non current", "noncurrent", "other"},
	},
	{
		Metric: Cash, Label: "Cash and Equivalents",
		Synonyms: []string{"cash and cash equivalents", "cash and equivalents", "cash equivalents", "cash and bank balances", "cash at bank"},
		Exact:    []string{"cash"},
		Excludes: []string{"flow", "flows", "restricted", "activities", "net"},
	},
	{
		Metric: LongTermDebt, Label: "Long-Term Debt",
		Synonyms: []string{"long term debt", "long term borrowings", "non current borrowings", "noncurrent borrowings", "long term loans"},
		Excludes: []string{"current portion"},
	},
	{
		Metric: GrossProfit, Label: "Gross Profit",
		Synonyms: []string{"gross profit", "gross margin", "gross income"},
		Excludes: []string{"percent", "ratio"},
	},
	{
		Metric: OperatingIncome, Label: "Operating Income",
		Synonyms: []string{"operating income", "operating profit", "income from operations", "ebit", "operating loss"},
		Excludes: []string{"other", "non"},
	},
	{
		Metric: CostOfRevenue, Label: "Cost of Revenue",
		Synonyms: []string{"cost of revenue", "cost of revenues", "cost of sales", "cost of goods sold", "cogs"},
	},
}

var (
	byMetric = map[Metric]definition{}
	order    = map[Metric]int{}
)

func init() {
	for i, d := range vocabulary {
		byMetric[d.Metric] = d
		order[d.Metric] = i
	}
}

// All returns the vocabulary in its fixed order.
func All() []Metric {
	out := make([]Metric, len(vocabulary))
	for i, d := range vocabulary {
		out[i] = d.Metric
	}
	return out
}

// Valid reports whether m belongs to the vocabulary.
func Valid(m Metric) bool {
	_, ok := byMetric[m]
	return ok
}

// Label returns the display label ("Net Income") of m, or the raw name when unknown.
func Label(m Metric) string {
	if d, ok := byMetric[m]; ok {
		return d.Label
	}
	return string(m)
}

// Order returns the position of m in the fixed ordering; unknown metrics sort last.
func Order(m Metric) int {
	if i, ok := order[m]; ok {
		return i
	}
	return len(vocabulary)
}
