package bigquery

import (
	"testing"

	"cloud.google.com/go/bigquery"
)

func TestDMLAffectedRows(t *testing.T) {
	tests := []struct {
		name   string
		status *bigquery.JobStatus
		want   int64
	}{
		{name: "nil status", status: nil, want: -1},
		{name: "no statistics", status: &bigquery.JobStatus{}, want: -1},
		{
			name: "non-query details",
			status: &bigquery.JobStatus{
				Statistics: &bigquery.JobStatistics{Details: &bigquery.LoadStatistics{}},
			},
			want: -1,
		},
		{
			name: "no rows matched",
			status: &bigquery.JobStatus{
				Statistics: &bigquery.JobStatistics{
					Details: &bigquery.QueryStatistics{NumDMLAffectedRows: 0},
				},
			},
			want: 0,
		},
		{
			name: "rows deleted",
			status: &bigquery.JobStatus{
				Statistics: &bigquery.JobStatistics{
					Details: &bigquery.QueryStatistics{NumDMLAffectedRows: 3},
				},
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dmlAffectedRows(tt.status); got != tt.want {
				t.Errorf("dmlAffectedRows() = %d, want %d", got, tt.want)
			}
		})
	}
}
