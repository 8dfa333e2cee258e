package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// The push channel is a signal, not a payload: it indicates staleness
// without describing the delta, so the only safe reaction is a full
// re-fetch of the affected aggregates. Refreshes are idempotent and
// last-write-wins, which makes at-least-once delivery harmless.

// Bootstrap performs the initial full refresh of products and tables.
func (s *Session) Bootstrap(ctx context.Context) error {
	if err := s.refreshLists(ctx); err != nil {
		return err
	}
	s.logger.Info("Initial state loaded",
		zap.Int("products", len(s.store.Products())),
		zap.Int("tables", len(s.store.Tables())))
	return nil
}

// SelectTable records the selection and fetches the table's expanded
// detail. If the fetch fails the selection is cleared rather than left
// pointing at a table that may no longer exist.
func (s *Session) SelectTable(ctx context.Context, tableID string) error {
	s.store.SetSelected(tableID)

	detail, err := s.authority.TableDetail(ctx, tableID)
	if err != nil {
		s.store.ClearSelection()
		return &StaleSelectionError{TableID: tableID, Err: err}
	}
	s.store.SetSelectedDetail(detail)
	return nil
}

// Deselect clears the selection and its detail.
func (s *Session) Deselect() {
	s.store.ClearSelection()
}

// SetView switches the active view. Entering the financial view
// re-fetches completed orders for the active filter.
func (s *Session) SetView(ctx context.Context, view View) error {
	s.mu.Lock()
	s.view = view
	s.mu.Unlock()

	if view == ViewFinancial {
		return s.refreshCompleted(ctx)
	}
	return nil
}

// SetDateFilter changes the financial date filter (YYYY-MM-DD, empty
// clears it) and re-fetches when the financial view is active.
func (s *Session) SetDateFilter(ctx context.Context, date string) error {
	s.mu.Lock()
	s.dateFilter = date
	active := s.view == ViewFinancial
	s.mu.Unlock()

	if active {
		return s.refreshCompleted(ctx)
	}
	return nil
}

// Run consumes push notifications until ctx is done. Each notification
// triggers a wholesale refresh; failures are logged and surfaced on
// Errors(), never fatal, never retried.
func (s *Session) Run(ctx context.Context, notifications <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-notifications:
			if !ok {
				return
			}
			s.Reconcile(ctx)
		}
	}
}

// Reconcile refreshes every aggregate the current state depends on:
// the product and table lists, the selected table's detail, and the
// completed orders when the financial view is active.
func (s *Session) Reconcile(ctx context.Context) {
	if err := s.refreshLists(ctx); err != nil {
		s.report(err)
	}

	if tableID := s.store.SelectedTableID(); tableID != "" {
		detail, err := s.authority.TableDetail(ctx, tableID)
		if err != nil {
			s.store.ClearSelection()
			s.report(&StaleSelectionError{TableID: tableID, Err: err})
		} else {
			s.store.SetSelectedDetail(detail)
		}
	}

	s.mu.Lock()
	financial := s.view == ViewFinancial
	s.mu.Unlock()
	if financial {
		if err := s.refreshCompleted(ctx); err != nil {
			s.report(err)
		}
	}
}

func (s *Session) refreshLists(ctx context.Context) error {
	products, err := s.authority.Products(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh products: %w", err)
	}
	tables, err := s.authority.Tables(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh tables: %w", err)
	}
	s.store.ReplaceAll(products, tables)
	return nil
}

func (s *Session) refreshCompleted(ctx context.Context) error {
	s.mu.Lock()
	date := s.dateFilter
	s.mu.Unlock()

	orders, err := s.authority.CompletedOrdersByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to refresh completed orders: %w", err)
	}
	s.store.ReplaceCompletedOrders(orders)
	return nil
}

func (s *Session) report(err error) {
	s.logger.Warn("Background refresh failed", zap.Error(err))
	select {
	case s.errs <- err:
	default:
	}
}
