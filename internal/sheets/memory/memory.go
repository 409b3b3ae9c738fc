// Package memory is an in-process spreadsheet mirror used when no Google
// spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/civil"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

type Store struct {
	mu    sync.Mutex
	rows  map[int64]core.Expense
	order []int64
	err   error
}

var _ ports.Mirror = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[int64]core.Expense)}
}

// SetError makes every following call fail with err until reset with nil.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Append stores the expense and returns a synthetic row reference.
// Appending the same ID twice keeps one row.
func (s *Store) Append(_ context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if _, ok := s.rows[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.rows[e.ID] = e
	return fmt.Sprintf("mem:%d", e.ID), nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64, _ civil.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.rows[id]; !ok {
		return nil
	}
	delete(s.rows, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Rows returns the mirrored expenses in append order.
func (s *Store) Rows() []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rows[id])
	}
	return out
}
