package tables

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asMap(r Record) map[string]string {
	m := make(map[string]string, len(r))
	for _, f := range r {
		m[f.Key] = f.Value
	}
	return m
}

func TestFold(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		rows    [][]string
		want    []map[string]string
	}{
		{
			name:    "zip or fallback per row",
			headers: []string{"H1", "H2"},
			rows:    [][]string{{"a", "b"}, {"c"}},
			want:    []map[string]string{{"H1": "a", "H2": "b"}, {"col_1": "c"}},
		},
		{
			name:    "no headers means positional keys",
			headers: nil,
			rows:    [][]string{{"a", "b"}},
			want:    []map[string]string{{"col_1": "a", "col_2": "b"}},
		},
		{
			name:    "too many cells falls back",
			headers: []string{"H1"},
			rows:    [][]string{{"a", "b"}, {"c"}},
			want:    []map[string]string{{"col_1": "a", "col_2": "b"}, {"H1": "c"}},
		},
		{
			name:    "empty rows are skipped",
			headers: []string{"H1"},
			rows:    [][]string{{}, {"x"}},
			want:    []map[string]string{{"H1": "x"}},
		},
		{
			name:    "duplicate header keeps last value",
			headers: []string{"K", "K"},
			rows:    [][]string{{"1", "2"}},
			want:    []map[string]string{{"K": "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := Fold(tt.headers, tt.rows)
			got := make([]map[string]string, 0, len(records))
			for _, r := range records {
				got = append(got, asMap(r))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse(t *testing.T) {
	markup := `
<table id="results">
  <caption> Energy   sources </caption>
  <thead><tr><th>Name</th><th> Code </th></tr></thead>
  <tbody>
    <tr><td>Other energy</td><td>E-01</td></tr>
    <tr><td colspan="2">subtotal only</td></tr>
    <tr></tr>
  </tbody>
</table>
<table><tbody><tr><td>second table</td></tr></tbody></table>`

	table, err := Parse(markup)
	require.NoError(t, err)

	assert.Equal(t, "Energy sources", table.Caption)
	assert.Equal(t, []string{"Name", "Code"}, table.Headers)
	require.Equal(t, 2, table.Rows())

	assert.Equal(t, Record{{Key: "Name", Value: "Other energy"}, {Key: "Code", Value: "E-01"}}, table.Records[0])
	assert.Equal(t, map[string]string{"col_1": "subtotal only"}, asMap(table.Records[1]))
}

func TestParse_HeaderRowWithoutThead(t *testing.T) {
	markup := `<table>
<tr><th>A</th><th>B</th></tr>
<tr><td>1</td><td>2</td></tr>
</table>`

	table, err := Parse(markup)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, table.Headers)
	require.Equal(t, 1, table.Rows())
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, asMap(table.Records[0]))
}

func TestParse_NestedTableIgnored(t *testing.T) {
	markup := `<table>
<thead><tr><th>Outer</th></tr></thead>
<tbody><tr><td>cell<table><tbody><tr><td>inner</td><td>x</td></tr></tbody></table></td></tr></tbody>
</table>`

	table, err := Parse(markup)
	require.NoError(t, err)
	require.Equal(t, 1, table.Rows())
	assert.Contains(t, asMap(table.Records[0])["Outer"], "cell")
}

func TestParse_NoTable(t *testing.T) {
	_, err := Parse("<div>nothing here</div>")
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestRecord_MarshalJSONKeepsOrder(t *testing.T) {
	r := Record{{Key: "z", Value: "1"}, {Key: "a", Value: "2"}, {Key: "m", Value: `"q"`}}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"1","a":"2","m":"\"q\""}`, string(data))

	empty, err := json.Marshal(Record{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(empty))
}
