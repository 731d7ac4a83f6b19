// Package decisionlog keeps an append-only history of applied control
// decisions.
package decisionlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/eosbridge/core/model"
)

// Record captures one applied decision together with the status at the time
// it was emitted.
type Record struct {
	ID string `json:"id"`
	model.Status
}

// NewRecord returns a record with a fresh id.
func NewRecord(st model.Status) Record {
	return Record{ID: uuid.NewString(), Status: st}
}

// Query defines filters for retrieving records. Zero values match anything.
// Limit keeps the most recent records.
type Query struct {
	Start  time.Time
	End    time.Time
	Source model.DecisionSource
	Limit  int
}

func (q Query) match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Source != "" && r.Source != q.Source {
		return false
	}
	return true
}

func (q Query) trim(res []Record) []Record {
	if q.Limit > 0 && len(res) > q.Limit {
		return res[len(res)-q.Limit:]
	}
	return res
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error          { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
