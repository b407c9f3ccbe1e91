package agents

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteScorecardCSV streams a scorecard as CSV.
func WriteScorecardCSV(w io.Writer, card Scorecard) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Metric", "Score", "Weight", "Period"}); err != nil {
		return err
	}
	for _, m := range card.Metrics {
		record := []string{
			m.Metric,
			strconv.FormatFloat(m.Score, 'f', 2, 64),
			strconv.FormatFloat(m.Weight, 'f', 2, 64),
			m.Period,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{"Composite", strconv.FormatFloat(card.Composite, 'f', 2, 64), "", ""}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Uploaded rows obey the same bounds as JSON scorecard submissions.
const (
	maxMetricNameLen = 80
	maxMetricScore   = 100
	maxMetricWeight  = 10
)

// ParseScorecardCSV reads metric rows from an uploaded CSV. The expected
// layout matches the export: a header row, then metric,score,weight per
// line. Rows that fail to parse or fall outside the metric bounds are
// reported as issues; parsing continues so the caller can surface every
// problem at once.
func ParseScorecardCSV(r io.Reader) ([]MetricInput, []string) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		inputs []MetricInput
		issues []string
		line   int
	)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			issues = append(issues, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if line == 1 && looksLikeHeader(record) {
			continue
		}
		if len(record) < 3 {
			issues = append(issues, fmt.Sprintf("line %d: expected metric,score,weight", line))
			continue
		}
		score, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			issues = append(issues, fmt.Sprintf("line %d: invalid score %q", line, record[1]))
			continue
		}
		weight, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			issues = append(issues, fmt.Sprintf("line %d: invalid weight %q", line, record[2]))
			continue
		}
		if record[0] == "" {
			issues = append(issues, fmt.Sprintf("line %d: metric name required", line))
			continue
		}
		if len(record[0]) > maxMetricNameLen {
			issues = append(issues, fmt.Sprintf("line %d: metric name exceeds %d characters", line, maxMetricNameLen))
			continue
		}
		if score < 0 || score > maxMetricScore {
			issues = append(issues, fmt.Sprintf("line %d: score %s out of range 0-%d", line, record[1], maxMetricScore))
			continue
		}
		if weight < 0 || weight > maxMetricWeight {
			issues = append(issues, fmt.Sprintf("line %d: weight %s out of range 0-%d", line, record[2], maxMetricWeight))
			continue
		}
		inputs = append(inputs, MetricInput{Metric: record[0], Score: score, Weight: weight})
	}
	return inputs, issues
}

func looksLikeHeader(record []string) bool {
	return len(record) > 0 && (record[0] == "Metric" || record[0] == "metric")
}
