package report

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actuarial_valuation/pkg/core/projection"
	"actuarial_valuation/pkg/core/projection/projtest"
	"actuarial_valuation/pkg/core/valuation"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func smallTable() *Table {
	return &Table{
		Name:    "period",
		Index:   "t",
		Columns: []string{"premiums", "pv_premiums"},
		RowKeys: []string{"0", "1"},
		Rows:    [][]float64{{100, 200}, {100, math.NaN()}},
	}
}

func sampleDocument() Document {
	return Document{
		Title:         "Valuation Report",
		ValuationDate: time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
		Sections: []Section{{
			Heading: "base / TERM",
			Summary: valuation.Summary{
				Product:  "TERM",
				Policies: 2,
				Periods:  61,
				Items: []valuation.ValuationLineItem{
					{Name: "Present Value of Premiums", Cell: valuation.CellPVPremiums, Value: 1234567.891},
					{Name: "Best Estimate Liability", Cell: valuation.CellBEL, Value: -1200},
					{Name: "Risk Adjustment", Cell: valuation.CellRA, Value: math.NaN()},
				},
			},
		}},
	}
}

func TestWriteCSV_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, smallTable()))
	newGolden(t).Assert(t, "period_csv", buf.Bytes())
}

func TestWriteJSON_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, smallTable()))
	newGolden(t).Assert(t, "period_json", buf.Bytes())
}

func TestMarkdown_Golden(t *testing.T) {
	newGolden(t).Assert(t, "summary_markdown", []byte(Markdown(sampleDocument())))
}

func TestRenderHTML(t *testing.T) {
	page, err := RenderHTML("Valuation <base>", Markdown(sampleDocument()))
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	require.NoError(t, err)

	assert.Equal(t, "Valuation <base>", doc.Find("title").Text())
	assert.Equal(t, "Valuation Report", doc.Find("h1").Text())
	assert.Equal(t, "base / TERM", doc.Find("h2").Text())

	rows := doc.Find("table tbody tr")
	require.Equal(t, 3, rows.Length())
	first := rows.First().Find("td")
	assert.Equal(t, "Present Value of Premiums", first.Eq(0).Text())
	assert.Equal(t, "1,234,567.89", strings.TrimSpace(first.Eq(1).Text()))
}

func valuedGraph(t *testing.T) *projection.Graph {
	t.Helper()
	a := projtest.Policy("A", 2)
	b := projtest.Policy("B", 5)
	b.PolicyCount = 4
	g, err := projection.NewGraph(projection.RunContext{ValuationDate: projtest.ValuationDate},
		projtest.Population(t, a, b),
		projtest.Bundle(t, projtest.Rates{Mortality: 0.01, Lapse: 0.08, FixedExp: 60, CommPc: 0.05, Discount: 0.003}))
	require.NoError(t, err)
	require.NoError(t, valuation.Attach(g))
	return g
}

func TestPeriodTable(t *testing.T) {
	g := valuedGraph(t)
	tbl, err := PeriodTable(g)
	require.NoError(t, err)

	assert.Len(t, tbl.Rows, g.MaxProjLen())
	assert.Equal(t, "0", tbl.RowKeys[0])
	assert.Equal(t, PeriodColumns, tbl.Columns)

	pv, ok := tbl.Column(valuation.CellPVPremiums)
	require.True(t, ok)
	assert.Equal(t, 0.0, pv[len(pv)-1])
}

func TestPolicyTable_KeepsPopulationOrder(t *testing.T) {
	g := valuedGraph(t)
	tbl, err := PolicyTable(g, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, tbl.RowKeys)
}

func TestPolicyTableSumsToPeriodTable(t *testing.T) {
	g := valuedGraph(t)
	policies, err := PolicyTable(g, 0)
	require.NoError(t, err)
	periods, err := PeriodTable(g)
	require.NoError(t, err)

	for _, c := range []string{projection.CellPremiums, projection.CellClaims, valuation.CellPVPremiums, valuation.CellBEL} {
		sum, ok := policies.Sum(c)
		require.True(t, ok, c)
		col, ok := periods.Column(c)
		require.True(t, ok, c)
		assert.InDelta(t, col[0], sum, 1e-9, c)
	}
}

func TestTablesNeedValuationCells(t *testing.T) {
	g, err := projection.NewGraph(projection.RunContext{ValuationDate: projtest.ValuationDate},
		projtest.Population(t, projtest.Policy("A", 1)), projtest.Bundle(t, projtest.Rates{}))
	require.NoError(t, err)

	_, err = PeriodTable(g)
	assert.ErrorContains(t, err, "not registered")
}
