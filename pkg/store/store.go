// Package store holds the session's live view of the authority's
// state: the product catalog, the table list, the selected table's
// expanded order detail and the last fetched completed-order snapshot.
// Every mutation goes through a named operation on Store so the
// status invariant is enforced in one place; reads hand out copies.
package store

import (
	"strconv"
	"strings"
	"sync"

	"github.com/example/possync/pkg/models"
)

// Store is the owned, mutable cache of Table/Product state. A single
// mutex serializes writers; application of whole-table responses is
// last-write-wins at table granularity.
type Store struct {
	mu sync.RWMutex

	products        []models.Product
	tables          []models.Table
	selectedTableID string
	selectedDetail  *models.Table
	completedOrders []models.CompletedOrder
}

func New() *Store {
	return &Store{}
}

// ReplaceAll refreshes both collections wholesale. Used after any
// operation whose side effects are not fully known locally (initial
// load, push-triggered refresh).
func (s *Store) ReplaceAll(products []models.Product, tables []models.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append([]models.Product(nil), products...)
	s.tables = cloneTables(tables)
}

// SetSelected records the selection. Detail for the new table is
// fetched by the reconciliation policy, not here; stale detail from a
// previous selection is dropped immediately.
func (s *Store) SetSelected(tableID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedTableID != tableID {
		s.selectedDetail = nil
	}
	s.selectedTableID = tableID
}

// ClearSelection drops the selection and its detail atomically.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedTableID = ""
	s.selectedDetail = nil
}

// SetSelectedDetail installs the expanded copy of the selected table.
// A response for a table that is no longer selected is dropped, so a
// slow detail fetch can never resurrect a stale selection.
func (s *Store) SetSelectedDetail(table models.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedTableID != table.ID {
		return
	}
	table.NormalizeStatus()
	detail := cloneTable(table)
	s.selectedDetail = &detail
	s.replaceTableLocked(table)
}

// ApplyTableUpdate folds one authoritative post-mutation table into the
// store: the list entry is replaced, and so is the selected detail when
// the update concerns the selected table. Status is re-normalized from
// the line contents so an emptied table is never left occupied.
func (s *Store) ApplyTableUpdate(table models.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table.NormalizeStatus()
	s.replaceTableLocked(table)
	if s.selectedTableID == table.ID {
		detail := cloneTable(table)
		s.selectedDetail = &detail
	}
}

// AppendTable adds a freshly created table to the list.
func (s *Store) AppendTable(table models.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tables {
		if s.tables[i].ID == table.ID {
			s.tables[i] = cloneTable(table)
			return
		}
	}
	s.tables = append(s.tables, cloneTable(table))
}

// RemoveTable deletes a table; if it was selected, the selection and
// detail are cleared in the same critical section.
func (s *Store) RemoveTable(tableID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tables[:0]
	for _, t := range s.tables {
		if t.ID != tableID {
			kept = append(kept, t)
		}
	}
	s.tables = kept
	if s.selectedTableID == tableID {
		s.selectedTableID = ""
		s.selectedDetail = nil
	}
}

// UpsertProduct inserts or replaces a catalog entry after a product
// create/update. Historical completed-order snapshots are untouched.
func (s *Store) UpsertProduct(product models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == product.ID {
			s.products[i] = product
			return
		}
	}
	s.products = append(s.products, product)
}

func (s *Store) RemoveProduct(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.products[:0]
	for _, p := range s.products {
		if p.ID != productID {
			kept = append(kept, p)
		}
	}
	s.products = kept
}

// ReplaceCompletedOrders installs a fetched completed-order snapshot.
func (s *Store) ReplaceCompletedOrders(orders []models.CompletedOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedOrders = cloneCompleted(orders)
}

func (s *Store) Products() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Product(nil), s.products...)
}

func (s *Store) Tables() []models.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTables(s.tables)
}

func (s *Store) SelectedTableID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedTableID
}

// SelectedTableDetail returns the expanded selected table, or false
// when nothing is selected or the detail has not arrived yet.
func (s *Store) SelectedTableDetail() (models.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selectedDetail == nil {
		return models.Table{}, false
	}
	return cloneTable(*s.selectedDetail), true
}

func (s *Store) CompletedOrders() []models.CompletedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneCompleted(s.completedOrders)
}

// NextTableNumber scans names of the form "Table N" and returns the
// next free number, 1 when none match.
func (s *Store) NextTableNumber() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for _, t := range s.tables {
		parts := strings.Fields(t.Name)
		if len(parts) < 2 {
			continue
		}
		n, err := strconv.Atoi(parts[len(parts)-1])
		if err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

func (s *Store) replaceTableLocked(table models.Table) {
	for i := range s.tables {
		if s.tables[i].ID == table.ID {
			s.tables[i] = cloneTable(table)
			return
		}
	}
	s.tables = append(s.tables, cloneTable(table))
}

func cloneTable(t models.Table) models.Table {
	t.Order = append([]models.OrderItem(nil), t.Order...)
	return t
}

func cloneTables(tables []models.Table) []models.Table {
	out := make([]models.Table, len(tables))
	for i, t := range tables {
		out[i] = cloneTable(t)
	}
	return out
}

func cloneCompleted(orders []models.CompletedOrder) []models.CompletedOrder {
	out := make([]models.CompletedOrder, len(orders))
	for i, o := range orders {
		o.Items = append([]models.OrderItem(nil), o.Items...)
		out[i] = o
	}
	return out
}
