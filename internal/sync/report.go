package sync

// RecordFailure is one per-record persistence failure. Continue-on-error is
// explicit data flow: failures are collected, not thrown.
type RecordFailure struct {
	Entity string
	Key    string
	Err    error
}

// BatchReport aggregates the persistence phase's per-record outcomes.
type BatchReport struct {
	Written  map[string]int
	Failures []RecordFailure
}

func newBatchReport() *BatchReport {
	return &BatchReport{Written: map[string]int{}}
}

func (r *BatchReport) record(entity, key string, err error) {
	if err != nil {
		r.Failures = append(r.Failures, RecordFailure{Entity: entity, Key: key, Err: err})
		return
	}
	r.Written[entity]++
}
