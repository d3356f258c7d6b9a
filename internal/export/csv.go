// Package export writes trial rows as CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/verte-zerg/seqrecall/internal/model"
)

// Column modes accepted by ColumnsFor.
const (
	ColumnsAnalysis = "analysis"
	ColumnsAll      = "all"
)

// AnalysisColumns are the columns written in analysis mode, in order.
var AnalysisColumns = []string{
	"participant_number",
	"netid",
	"sequence",
	"recall",
	"correct_count",
	"total_letters",
	"accuracy",
	"compressibility",
	"pattern_type",
	"rt_seconds",
}

// RecallRows keeps rows that carry a non-empty sequence and a recall key.
func RecallRows(rows []model.Row) []model.Row {
	out := make([]model.Row, 0, len(rows))
	for _, row := range rows {
		seq, ok := row["sequence"]
		if !ok || FormatValue(seq) == "" {
			continue
		}
		if _, ok := row["recall"]; !ok {
			continue
		}
		out = append(out, row)
	}
	return out
}

// ColumnsFor returns the header for a column mode.
func ColumnsFor(mode string, rows []model.Row) ([]string, error) {
	switch mode {
	case "", ColumnsAnalysis:
		return append([]string(nil), AnalysisColumns...), nil
	case ColumnsAll:
		seen := map[string]struct{}{}
		var cols []string
		for _, row := range rows {
			for key := range row {
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				cols = append(cols, key)
			}
		}
		sort.Strings(cols)
		return cols, nil
	default:
		return nil, fmt.Errorf("unknown column mode %q (want %s or %s)", mode, ColumnsAnalysis, ColumnsAll)
	}
}

// Write encodes rows as CSV with a header line. Missing values are empty.
func Write(w io.Writer, columns []string, rows []model.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = FormatValue(row[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Encode returns the CSV bytes for rows.
func Encode(columns []string, rows []model.Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, columns, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatValue renders a decoded JSON value as a CSV cell.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// RecordRows converts records to rows.
func RecordRows(records []model.TrialRecord) []model.Row {
	rows := make([]model.Row, len(records))
	for i, r := range records {
		rows[i] = r.Row()
	}
	return rows
}
