// Package client is the surface of the sync core: a Session translates
// user intents into calls against the authority and folds the
// authoritative responses back into the table store, while its
// reconciliation loop keeps the store fresh on push notifications.
package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/example/possync/pkg/gateway"
	"github.com/example/possync/pkg/models"
	"github.com/example/possync/pkg/store"
)

// Authority is the request/response contract the session consumes,
// satisfied by *gateway.Client.
type Authority interface {
	Products(ctx context.Context) ([]models.Product, error)
	CreateProduct(ctx context.Context, in gateway.ProductInput) (models.Product, error)
	UpdateProduct(ctx context.Context, id string, in gateway.ProductInput) (models.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	Tables(ctx context.Context) ([]models.Table, error)
	CreateTable(ctx context.Context, name string) (models.Table, error)
	TableDetail(ctx context.Context, id string) (models.Table, error)
	DeleteTable(ctx context.Context, id string) error

	AddOrderItem(ctx context.Context, tableID, productID string, quantity int) (models.Table, error)
	UpdateOrderItem(ctx context.Context, tableID, itemID string, quantity int) (models.Table, error)
	RemoveOrderItem(ctx context.Context, tableID, itemID string) (models.Table, error)
	CompleteOrder(ctx context.Context, tableID string) (models.CompletedOrder, error)

	CompletedOrders(ctx context.Context) ([]models.CompletedOrder, error)
	CompletedOrdersByDate(ctx context.Context, date string) ([]models.CompletedOrder, error)
}

// View is the active front-end surface; it steers which aggregates the
// reconciliation policy refreshes.
type View string

const (
	ViewPOS        View = "pos"
	ViewManagement View = "management"
	ViewFinancial  View = "financial"
)

// Session owns the store for its lifetime and is the single path
// through which it mutates.
type Session struct {
	authority Authority
	store     *store.Store
	logger    *zap.Logger

	mu         sync.Mutex
	view       View
	dateFilter string

	errs chan error
}

func NewSession(authority Authority, st *store.Store, logger *zap.Logger) *Session {
	return &Session{
		authority: authority,
		store:     st,
		logger:    logger,
		view:      ViewPOS,
		errs:      make(chan error, 16),
	}
}

// Store exposes the read side to the UI layer.
func (s *Session) Store() *store.Store { return s.store }

// Errors delivers failures from background refreshes. All are
// transient and dismissible; none are fatal. The channel never blocks
// the session: an undrained error is dropped.
func (s *Session) Errors() <-chan error { return s.errs }

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Session) DateFilter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dateFilter
}

// AddProduct adds one unit of the product to the selected table's
// order. The authority increments an existing line for the same
// product; the returned table replaces the local entry and is marked
// occupied by its own contents.
func (s *Session) AddProduct(ctx context.Context, product models.Product) error {
	tableID := s.store.SelectedTableID()
	if tableID == "" {
		return errNoTableSelected
	}

	table, err := s.authority.AddOrderItem(ctx, tableID, product.ID, 1)
	if err != nil {
		return fmt.Errorf("failed to add %q to order: %w", product.Name, err)
	}
	s.store.ApplyTableUpdate(table)
	return nil
}

// ChangeQuantity adjusts the selected table's line for the product by
// delta, clamped at zero. Zero removes the line outright: a line never
// survives at quantity 0.
func (s *Session) ChangeQuantity(ctx context.Context, productID string, delta int) error {
	tableID, item, err := s.selectedItem(productID)
	if err != nil {
		return err
	}

	newQuantity := item.Quantity + delta
	if newQuantity < 0 {
		newQuantity = 0
	}

	var table models.Table
	if newQuantity == 0 {
		table, err = s.authority.RemoveOrderItem(ctx, tableID, item.ID)
	} else {
		table, err = s.authority.UpdateOrderItem(ctx, tableID, item.ID, newQuantity)
	}
	if err != nil {
		return fmt.Errorf("failed to change quantity: %w", err)
	}
	s.store.ApplyTableUpdate(table)
	return nil
}

// RemoveItem deletes the selected table's line for the product.
func (s *Session) RemoveItem(ctx context.Context, productID string) error {
	tableID, item, err := s.selectedItem(productID)
	if err != nil {
		return err
	}

	table, err := s.authority.RemoveOrderItem(ctx, tableID, item.ID)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	s.store.ApplyTableUpdate(table)
	return nil
}

// CompleteOrder archives the selected table's order. On success the
// table is emptied locally and the selection cleared; the archival
// record (with its server-computed total) is returned, not folded into
// the store.
func (s *Session) CompleteOrder(ctx context.Context) (models.CompletedOrder, error) {
	detail, ok := s.store.SelectedTableDetail()
	if !ok {
		return models.CompletedOrder{}, errNoTableSelected
	}
	if len(detail.Order) == 0 {
		return models.CompletedOrder{}, errEmptyOrder
	}

	record, err := s.authority.CompleteOrder(ctx, detail.ID)
	if err != nil {
		return models.CompletedOrder{}, fmt.Errorf("failed to complete order: %w", err)
	}

	s.store.ApplyTableUpdate(models.Table{
		ID:     detail.ID,
		Name:   detail.Name,
		Order:  []models.OrderItem{},
		Status: models.TableStatusEmpty,
	})
	s.store.ClearSelection()

	s.logger.Info("Order completed",
		zap.String("table", detail.Name),
		zap.Float64("total", record.Total))
	return record, nil
}

// AddTable creates a table on the authority and appends it locally.
func (s *Session) AddTable(ctx context.Context, name string) (models.Table, error) {
	table, err := s.authority.CreateTable(ctx, name)
	if err != nil {
		return models.Table{}, fmt.Errorf("failed to add table: %w", err)
	}
	s.store.AppendTable(table)
	return table, nil
}

// DeleteTable removes a table, server-confirmed before local removal.
func (s *Session) DeleteTable(ctx context.Context, tableID string) error {
	if err := s.authority.DeleteTable(ctx, tableID); err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	s.store.RemoveTable(tableID)
	return nil
}

// CreateProduct adds a catalog entry.
func (s *Session) CreateProduct(ctx context.Context, in gateway.ProductInput) (models.Product, error) {
	product, err := s.authority.CreateProduct(ctx, in)
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to create product: %w", err)
	}
	s.store.UpsertProduct(product)
	return product, nil
}

// UpdateProduct edits a catalog entry. Historical completed-order
// lines keep their snapshotted price.
func (s *Session) UpdateProduct(ctx context.Context, id string, in gateway.ProductInput) (models.Product, error) {
	product, err := s.authority.UpdateProduct(ctx, id, in)
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to update product: %w", err)
	}
	s.store.UpsertProduct(product)
	return product, nil
}

// DeleteProduct removes a catalog entry, server-confirmed first.
func (s *Session) DeleteProduct(ctx context.Context, id string) error {
	if err := s.authority.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	s.store.RemoveProduct(id)
	return nil
}

// selectedItem resolves the current selection's order line for a
// product, enforcing the editor preconditions.
func (s *Session) selectedItem(productID string) (string, models.OrderItem, error) {
	detail, ok := s.store.SelectedTableDetail()
	if !ok {
		return "", models.OrderItem{}, errNoTableSelected
	}
	item, ok := detail.FindItem(productID)
	if !ok {
		return "", models.OrderItem{}, &PreconditionError{
			Reason: fmt.Sprintf("no order line for product %s", productID),
		}
	}
	return detail.ID, item, nil
}
