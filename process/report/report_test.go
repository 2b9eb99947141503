package report

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	"finchat/internal/testdb"
	"finchat/models"
	"finchat/pkg/extract"
	"finchat/pkg/metric"
	"finchat/pkg/sheet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seed(t *testing.T) (*gorm.DB, models.Company) {
	t.Helper()
	db := testdb.Open(t)
	c := testdb.Company(t, db, "Acme", nil)
	facts := []models.FinancialFact{
		{CompanyID: c.ID, Year: 2022, Metric: metric.Revenue, Value: decimal.NewFromInt(1000), Currency: "USD"},
		{CompanyID: c.ID, Year: 2023, Metric: metric.Revenue, Value: decimal.RequireFromString("1250.5"), Currency: "USD"},
		{CompanyID: c.ID, Year: 2023, Metric: metric.TotalAssets, Value: decimal.NewFromInt(5000), Currency: "USD"},
	}
	require.NoError(t, db.Omit("Company").Create(&facts).Error)
	return db, c
}

func TestLoadByIDAndName(t *testing.T) {
	db, c := seed(t)
	ctx := context.Background()

	byName, err := Load(ctx, db, "Acme")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byName.Company.ID)
	assert.Len(t, byName.Facts, 3)
	assert.Equal(t, []int{2022, 2023}, byName.Series.Years)

	byID, err := Load(ctx, db, strconv.FormatUint(uint64(c.ID), 10))
	require.NoError(t, err)
	assert.Equal(t, "Acme", byID.Company.Name)

	_, err = Load(ctx, db, "Nobody")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestWriteTable(t *testing.T) {
	db, _ := seed(t)
	r, err := Load(context.Background(), db, "Acme")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, FormatTable))
	out := buf.String()
	assert.Contains(t, out, "company=Acme")
	assert.Contains(t, out, "1,250.5")
	assert.Contains(t, out, "5,000")
	assert.NotContains(t, out, "Net Income")

	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.Contains(l, "Total Assets") {
			lines = append(lines, l)
		}
	}
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "-")
}

func TestWriteCSV(t *testing.T) {
	db, _ := seed(t)
	r, err := Load(context.Background(), db, "Acme")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, FormatCSV))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "company,year,metric,value,currency", lines[0])
	assert.Equal(t, "Acme,2022,Revenue,1000,USD", lines[1])
}

func TestWriteXLSXReadsBack(t *testing.T) {
	db, _ := seed(t)
	r, err := Load(context.Background(), db, "Acme")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, FormatXLSX))

	g, err := sheet.Parse("acme.xlsx", "", buf.Bytes())
	require.NoError(t, err)
	res, err := extract.Extract(g, extract.Options{DefaultCurrency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, extract.LayoutWide, res.Layout)

	facts := res.Facts()
	require.Len(t, facts, 3)
	assert.Equal(t, 2023, facts[1].Year)
	assert.Equal(t, metric.Revenue, facts[1].Metric)
	assert.True(t, facts[1].Value.Equal(decimal.RequireFromString("1250.5")))
}

func TestUnknownFormat(t *testing.T) {
	db, _ := seed(t)
	r, err := Load(context.Background(), db, "Acme")
	require.NoError(t, err)
	assert.ErrorIs(t, r.Write(&bytes.Buffer{}, "pdf"), ErrUnknownFormat)
}
