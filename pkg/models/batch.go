package models

const (
	// TableLogEvents is the destination table this connector fills
	TableLogEvents = "logevents"
	// PrimaryKeyLogID is the primary key column of TableLogEvents
	PrimaryKeyLogID = "log_id"
)

// TableSchema declares a destination table to the platform
type TableSchema struct {
	PrimaryKey []string `json:"primary_key"`
}

// SyncBatch is the envelope returned to the platform on every successful
// invocation.
type SyncBatch struct {
	State   State                  `json:"state"`
	Insert  map[string][]Record    `json:"insert"`
	Delete  map[string][]Record    `json:"delete"`
	Schema  map[string]TableSchema `json:"schema"`
	HasMore bool                   `json:"hasMore"`
}

// LogEventsSchema returns a fresh copy of the static schema declaration
func LogEventsSchema() map[string]TableSchema {
	return map[string]TableSchema{
		TableLogEvents: {PrimaryKey: []string{PrimaryKeyLogID}},
	}
}

// NewLogEventsBatch assembles a batch for the logevents table. Deletes are
// always empty and records are never nil so both serialize as [].
func NewLogEventsBatch(state State, records []Record, hasMore bool) *SyncBatch {
	if records == nil {
		records = []Record{}
	}
	return &SyncBatch{
		State:   state,
		Insert:  map[string][]Record{TableLogEvents: records},
		Delete:  map[string][]Record{TableLogEvents: {}},
		Schema:  LogEventsSchema(),
		HasMore: hasMore,
	}
}

// RecordCount returns the number of inserted records across all tables
func (b *SyncBatch) RecordCount() int {
	n := 0
	for _, records := range b.Insert {
		n += len(records)
	}
	return n
}
