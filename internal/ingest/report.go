package ingest

import "time"

// Status is the final state of one index within a batch.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
)

// Stage names the step at which an index failed.
type Stage string

const (
	StageAcquire Stage = "acquire"
	StageApply   Stage = "apply"
	StageCommit  Stage = "commit"
)

// IndexOutcome summarizes what one batch did to one index.
type IndexOutcome struct {
	Index     string `json:"index"`
	Items     int    `json:"items"`
	Added     int    `json:"added"`
	Deleted   int    `json:"deleted"`
	Malformed int    `json:"malformed"`
	Status    Status `json:"status"`
	Stage     Stage  `json:"stage,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report is the acknowledgement of one Apply call.
// Indexes are listed in first-seen order.
type Report struct {
	BatchID   string         `json:"batchId"`
	StartedAt time.Time      `json:"startedAt"`
	Duration  time.Duration  `json:"durationNs"`
	Items     int            `json:"items"`
	Indexes   []IndexOutcome `json:"indexes"`
}

// Failed returns the number of indexes that did not commit.
func (r Report) Failed() int {
	n := 0
	for _, o := range r.Indexes {
		if o.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Outcome returns the outcome for index, if the batch touched it.
func (r Report) Outcome(index string) (IndexOutcome, bool) {
	for _, o := range r.Indexes {
		if o.Index == index {
			return o, true
		}
	}
	return IndexOutcome{}, false
}
