package models

import (
	"time"
)

// TableStatus mirrors the authority's table status enum.
type TableStatus string

const (
	TableStatusEmpty    TableStatus = "empty"
	TableStatusOccupied TableStatus = "occupied"
)

type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

// OrderItem is one line of a table's open order. Product is the copy
// served by the authority alongside the line, not a live reference.
type OrderItem struct {
	ID       string  `json:"id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Table is a dining table and its open order. Order is nil in summary
// listings that omit line detail; when detail is present, Status is
// occupied exactly when Order is non-empty.
type Table struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Order  []OrderItem `json:"order"`
	Status TableStatus `json:"status"`
}

// Occupied reports the status the table should carry given its lines.
func (t Table) Occupied() bool {
	return len(t.Order) > 0
}

// NormalizeStatus re-establishes the status invariant from the order
// contents. Only meaningful when line detail is known.
func (t *Table) NormalizeStatus() {
	if t.Occupied() {
		t.Status = TableStatusOccupied
	} else {
		t.Status = TableStatusEmpty
	}
}

// FindItem returns the order line referencing the given product, if any.
func (t Table) FindItem(productID string) (OrderItem, bool) {
	for _, item := range t.Order {
		if item.Product.ID == productID {
			return item, true
		}
	}
	return OrderItem{}, false
}

// CompletedOrder is the immutable archival record of a finished order.
// Items snapshot product name and price at completion time; TableID and
// TableName are kept even if the table is later deleted.
type CompletedOrder struct {
	ID        string      `json:"id"`
	TableID   string      `json:"tableId"`
	TableName string      `json:"tableName"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	Timestamp time.Time   `json:"timestamp"`
}
