// Package memory keeps mirrored ledgers in process.
package memory

import (
	"context"
	"sync"

	"receipts/internal/sheets"
)

type Mirror struct {
	mu   sync.Mutex
	tabs map[string][][]any
}

var _ sheets.Mirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{tabs: make(map[string][][]any)}
}

func (m *Mirror) WriteLedger(_ context.Context, uid string, rows [][]any) error {
	cp := make([][]any, len(rows))
	for i, r := range rows {
		cp[i] = append([]any(nil), r...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs[sheets.TabName(uid)] = cp
	return nil
}

// Rows returns the last rows written for uid.
func (m *Mirror) Rows(uid string) ([][]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tabs[sheets.TabName(uid)]
	return rows, ok
}
