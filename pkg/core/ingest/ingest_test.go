package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actuarial_valuation/pkg/core/assumption"
)

const hjsonBundle = `{
  # Flat basis used by the loader tests
  name: base
  tables: [
    {
      name: mortality
      columns: ["age", "sex"]
      buckets: { age: { min: 18, max: 20 } }
      rows: [
        { key: ["18", "M"], value: 0.001 }
        { key: ["19", "M"], value: 0.0011 }
        { key: ["20", "M"], value: 0.0012 }
      ]
    }
    {
      name: lapse
      columns: ["product", "policy_year"]
      rows: [
        { key: ["TERM", "1"], value: 0.1 }
      ]
    }
  ]
  series: [
    {
      name: inflation
      points: [
        { month: "2024-01", value: 0.03 }
      ]
    }
    {
      name: discount_curve
      points: [
        { month: "2024-01-31", value: 0.004 }
        { month: "2024-02", value: 0.0041 }
      ]
    }
  ]
}`

func TestParseBundle_HJSON(t *testing.T) {
	b, err := ParseBundle([]byte(hjsonBundle))
	require.NoError(t, err)
	assert.Equal(t, "base", b.Name)

	mort, err := b.Table(assumption.TableMortality)
	require.NoError(t, err)
	key, err := mort.BucketKey(assumption.ColAge, 75)
	require.NoError(t, err)
	v, ok := mort.Lookup([]string{key, "M"})
	assert.True(t, ok)
	assert.Equal(t, 0.0012, v)

	infl, err := b.Series(assumption.SeriesInflation)
	require.NoError(t, err)
	assert.Equal(t, assumption.FillForward, infl.Fill, "inflation carries forward unless told otherwise")

	disc, err := b.Series(assumption.SeriesDiscount)
	require.NoError(t, err)
	assert.Equal(t, assumption.FillNone, disc.Fill)
	assert.Equal(t, 2, disc.Len())
}

func TestParseBundle_Repair(t *testing.T) {
	broken := `{"name": "base", "tables": [], "series": [`

	_, err := ParseBundle([]byte(broken))
	require.Error(t, err)

	b, err := ParseBundle([]byte(broken), WithRepair())
	require.NoError(t, err)
	assert.Equal(t, "base", b.Name)
}

func TestLoadBundle_MissingFile(t *testing.T) {
	_, err := LoadBundle(filepath.Join(t.TempDir(), "nope.hjson"))
	assert.ErrorContains(t, err, "read bundle")
}

const modelPoints = `policy_id,date_of_birth,entry_date,sex,product,policy_term,sum_assured,annual_premium,premium_frequency,premium_increase,policy_count,tpd_cover
P1,1980-03-15,2020-07-01,m,TERM,10,100000,1200,12,Y,1,N
P2,15/06/1975,2019/01/01,F,LEVEL,20,250000,3000,1,0,2.5,yes
`

func TestReadModelPoints(t *testing.T) {
	policies, err := ReadModelPoints(strings.NewReader(modelPoints))
	require.NoError(t, err)
	require.Len(t, policies, 2)

	p1 := policies[0]
	assert.Equal(t, "P1", p1.ID)
	assert.Equal(t, "M", p1.Sex)
	assert.Equal(t, time.Date(1980, time.March, 15, 0, 0, 0, 0, time.UTC), p1.DateOfBirth)
	assert.True(t, p1.PremiumIncrease)
	assert.False(t, p1.TPDCover)

	p2 := policies[1]
	assert.Equal(t, time.Date(1975, time.June, 15, 0, 0, 0, 0, time.UTC), p2.DateOfBirth)
	assert.Equal(t, 2.5, p2.PolicyCount)
	assert.Equal(t, 1, p2.PremiumFrequency)
	assert.True(t, p2.TPDCover)
}

func TestReadModelPoints_RecordsBlankRequiredCells(t *testing.T) {
	data := "policy_id,date_of_birth,entry_date,sex,product,policy_term,sum_assured,annual_premium,premium_frequency,policy_count\n" +
		"P1,1980-05-01,2020-01-01,M,TERM,20,,,12,\n"
	policies, err := ReadModelPoints(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, policies, 1)

	p := policies[0]
	assert.Equal(t, 0.0, p.SumAssured)
	assert.Equal(t, []string{"SumAssured", "AnnualPremium"}, p.Blank, "optional columns are never blank")

	full, err := ReadModelPoints(strings.NewReader(modelPoints))
	require.NoError(t, err)
	assert.Empty(t, full[0].Blank)
}

func TestReadModelPoints_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "", "empty model point file"},
		{"missing column", "policy_id,sex\nP1,M\n", `missing required column "date_of_birth"`},
		{"bad number", strings.Replace(modelPoints, "100000", "lots", 1), `sum_assured: "lots" is not a number`},
		{"bad date", strings.Replace(modelPoints, "2020-07-01", "July", 1), "line 2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadModelPoints(strings.NewReader(tc.data))
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoadModelPoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mp.csv")
	require.NoError(t, os.WriteFile(path, []byte(modelPoints), 0o644))

	policies, err := LoadModelPoints(path)
	require.NoError(t, err)
	assert.Len(t, policies, 2)
}
