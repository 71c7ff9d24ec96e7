// Package tables folds an HTML table into ordered, field-keyed records.
//
// Column keys come from the header row when a body row has exactly as many
// cells as there are headers; any other row gets positional keys col_1,
// col_2, ... Each row is decided independently. Rows without cells are dropped.
package tables

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoTable is returned when the markup contains no table element.
var ErrNoTable = errors.New("no table element found")

// Field is one cell of a record.
type Field struct {
	Key   string
	Value string
}

// Record is one table row. Field order follows column order and is kept
// when the record is encoded as a JSON object.
type Record []Field

// MarshalJSON encodes the record as an object with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Table is the result of reading one table.
type Table struct {
	Caption string
	Headers []string
	Records []Record
}

// Rows returns the number of records.
func (t *Table) Rows() int {
	return len(t.Records)
}

// Parse reads the first table found in markup.
func Parse(markup string) (*Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	headers := headerCells(table)

	var rows [][]string
	table.ChildrenFiltered("tbody").ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
		rows = append(rows, cellTexts(tr.ChildrenFiltered("td")))
	})

	return &Table{
		Caption: cleanText(table.ChildrenFiltered("caption").First().Text()),
		Headers: headers,
		Records: Fold(headers, rows),
	}, nil
}

// headerCells returns the header texts: the thead row, or else a leading
// body row made only of th cells.
func headerCells(table *goquery.Selection) []string {
	if th := table.ChildrenFiltered("thead").Find("tr th"); th.Length() > 0 {
		return cellTexts(th)
	}

	first := table.ChildrenFiltered("tbody").ChildrenFiltered("tr").First()
	if first.ChildrenFiltered("td").Length() == 0 {
		if th := first.ChildrenFiltered("th"); th.Length() > 0 {
			return cellTexts(th)
		}
	}
	return nil
}

// Fold converts rows of cell text into records.
func Fold(headers []string, rows [][]string) []Record {
	records := make([]Record, 0, len(rows))
	for _, cells := range rows {
		if len(cells) == 0 {
			continue
		}

		record := make(Record, 0, len(cells))
		if len(headers) > 0 && len(cells) == len(headers) {
			for i, h := range headers {
				record = record.set(h, cells[i])
			}
		} else {
			for i, c := range cells {
				record = append(record, Field{Key: fmt.Sprintf("col_%d", i+1), Value: c})
			}
		}
		records = append(records, record)
	}
	return records
}

// set assigns key, overwriting an earlier column with the same header.
func (r Record) set(key, value string) Record {
	for i := range r {
		if r[i].Key == key {
			r[i].Value = value
			return r
		}
	}
	return append(r, Field{Key: key, Value: value})
}

func cellTexts(sel *goquery.Selection) []string {
	texts := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, cleanText(s.Text()))
	})
	return texts
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
