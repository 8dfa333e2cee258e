package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/possync/client"
	"github.com/example/possync/pkg/authoritytest"
	"github.com/example/possync/pkg/config"
	"github.com/example/possync/pkg/gateway"
	"github.com/example/possync/pkg/models"
	"github.com/example/possync/pkg/store"
)

type fixture struct {
	server  *authoritytest.Server
	session *client.Session
	store   *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	server := authoritytest.New()
	t.Cleanup(server.Close)

	gw := gateway.NewClient(&config.APIConfig{BaseURL: server.URL()}, zap.NewNop())
	st := store.New()
	return &fixture{
		server:  server,
		session: client.NewSession(gw, st, zap.NewNop()),
		store:   st,
	}
}

func (f *fixture) seedCafe(t *testing.T) (models.Product, models.Table) {
	t.Helper()
	cake := f.server.SeedProduct(models.Product{ID: "5", Name: "Cheesecake", Price: 6.00, Category: "Dessert"})
	table := f.server.SeedTable(models.Table{ID: "1", Name: "Table 1"})
	require.NoError(t, f.session.Bootstrap(context.Background()))
	return cake, table
}

func TestMutationsRequireSelection(t *testing.T) {
	f := newFixture(t)
	cake, _ := f.seedCafe(t)
	ctx := context.Background()

	var precondition *client.PreconditionError
	assert.ErrorAs(t, f.session.AddProduct(ctx, cake), &precondition)
	assert.ErrorAs(t, f.session.ChangeQuantity(ctx, cake.ID, 1), &precondition)
	assert.ErrorAs(t, f.session.RemoveItem(ctx, cake.ID), &precondition)
	_, err := f.session.CompleteOrder(ctx)
	assert.ErrorAs(t, err, &precondition)

	// Nothing touched the store.
	assert.Empty(t, f.store.SelectedTableID())
	assert.Equal(t, models.TableStatusEmpty, f.store.Tables()[0].Status)
}

func TestAddChangeCompleteScenario(t *testing.T) {
	f := newFixture(t)
	cake, table := f.seedCafe(t)
	ctx := context.Background()

	require.NoError(t, f.session.SelectTable(ctx, table.ID))
	require.NoError(t, f.session.AddProduct(ctx, cake))

	detail, ok := f.store.SelectedTableDetail()
	require.True(t, ok)
	require.Len(t, detail.Order, 1)
	assert.Equal(t, models.TableStatusOccupied, detail.Status)

	require.NoError(t, f.session.ChangeQuantity(ctx, cake.ID, 1))
	detail, _ = f.store.SelectedTableDetail()
	assert.Equal(t, 2, detail.Order[0].Quantity)

	record, err := f.session.CompleteOrder(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 12.00, record.Total, 1e-9)
	require.Len(t, record.Items, 1)
	assert.Equal(t, 2, record.Items[0].Quantity)

	// Table emptied locally, selection cleared.
	assert.Empty(t, f.store.SelectedTableID())
	_, ok = f.store.SelectedTableDetail()
	assert.False(t, ok)
	for _, tb := range f.store.Tables() {
		if tb.ID == table.ID {
			assert.Equal(t, models.TableStatusEmpty, tb.Status)
			assert.Empty(t, tb.Order)
		}
	}

	// The archival record lives with the authority.
	records := f.server.CompletedOrderRecords()
	require.Len(t, records, 1)
	assert.InDelta(t, 12.00, records[0].Total, 1e-9)
}

func TestChangeQuantityToZeroRemovesLine(t *testing.T) {
	f := newFixture(t)
	cake, table := f.seedCafe(t)
	ctx := context.Background()

	require.NoError(t, f.session.SelectTable(ctx, table.ID))
	require.NoError(t, f.session.AddProduct(ctx, cake))

	require.NoError(t, f.session.ChangeQuantity(ctx, cake.ID, -1))

	detail, ok := f.store.SelectedTableDetail()
	require.True(t, ok)
	_, found := detail.FindItem(cake.ID)
	assert.False(t, found, "a line must never survive at quantity 0")
	assert.Empty(t, detail.Order)
	assert.Equal(t, models.TableStatusEmpty, detail.Status)
}

func TestChangeQuantityClampsAtZero(t *testing.T) {
	f := newFixture(t)
	cake, table := f.seedCafe(t)
	ctx := context.Background()

	require.NoError(t, f.session.SelectTable(ctx, table.ID))
	require.NoError(t, f.session.AddProduct(ctx, cake))
	require.NoError(t, f.session.ChangeQuantity(ctx, cake.ID, 1))

	// -5 from quantity 2 clamps to 0 and removes the line.
	require.NoError(t, f.session.ChangeQuantity(ctx, cake.ID, -5))
	detail, _ := f.store.SelectedTableDetail()
	assert.Empty(t, detail.Order)
}

func TestChangeQuantityForAbsentLine(t *testing.T) {
	f := newFixture(t)
	_, table := f.seedCafe(t)
	ctx := context.Background()

	require.NoError(t, f.session.SelectTable(ctx, table.ID))

	var precondition *client.PreconditionError
	assert.ErrorAs(t, f.session.ChangeQuantity(ctx, "missing", 1), &precondition)
}

func TestFailedMutationLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	cake, table := f.seedCafe(t)
	ctx := context.Background()

	require.NoError(t, f.session.SelectTable(ctx, table.ID))
	require.NoError(t, f.session.AddProduct(ctx, cake))
	before, _ := f.store.SelectedTableDetail()

	f.server.FailNext("PATCH", "/tables/")
	err := f.session.ChangeQuantity(ctx, cake.ID, 1)
	require.Error(t, err)

	var remoteErr *gateway.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, "induced failure", remoteErr.Message)

	after, _ := f.store.SelectedTableDetail()
	assert.Equal(t, before, after, "a failed mutation must not partially apply")
}

func TestReconcileRefreshesWholesale(t *testing.T) {
	f := newFixture(t)
	cake, _ := f.seedCafe(t)
	table2 := f.server.SeedTable(models.Table{ID: "2", Name: "Table 2"})
	ctx := context.Background()

	require.NoError(t, f.session.Bootstrap(ctx))
	require.NoError(t, f.session.SelectTable(ctx, table2.ID))

	// Another terminal mutates table 2 and the catalog behind our back.
	other := gateway.NewClient(&config.APIConfig{BaseURL: f.server.URL()}, zap.NewNop())
	_, err := other.AddOrderItem(ctx, table2.ID, cake.ID, 1)
	require.NoError(t, err)
	_, err = other.CreateProduct(ctx, gateway.ProductInput{Name: "Latte", Price: 4.50, Category: "Coffee"})
	require.NoError(t, err)

	f.session.Reconcile(ctx)

	assert.Len(t, f.store.Products(), 2)
	detail, ok := f.store.SelectedTableDetail()
	require.True(t, ok)
	require.Len(t, detail.Order, 1)
	assert.Equal(t, models.TableStatusOccupied, detail.Status)
}

func TestReconcileClearsStaleSelection(t *testing.T) {
	f := newFixture(t)
	_, table := f.seedCafe(t)
	ctx := context.Background()

	require.NoError(t, f.session.SelectTable(ctx, table.ID))

	// The table disappears on the authority before the next refresh.
	other := gateway.NewClient(&config.APIConfig{BaseURL: f.server.URL()}, zap.NewNop())
	require.NoError(t, other.DeleteTable(ctx, table.ID))

	f.session.Reconcile(ctx)

	assert.Empty(t, f.store.SelectedTableID())
	_, ok := f.store.SelectedTableDetail()
	assert.False(t, ok)

	select {
	case err := <-f.session.Errors():
		var stale *client.StaleSelectionError
		require.True(t, errors.As(err, &stale))
		assert.Equal(t, table.ID, stale.TableID)
	default:
		t.Fatal("expected a stale-selection error to be reported")
	}
}

func TestSelectTableFailureClearsSelection(t *testing.T) {
	f := newFixture(t)
	f.seedCafe(t)

	err := f.session.SelectTable(context.Background(), "missing")
	var stale *client.StaleSelectionError
	require.True(t, errors.As(err, &stale))
	assert.Empty(t, f.store.SelectedTableID())
}

func TestDeleteSelectedTableClearsSelection(t *testing.T) {
	f := newFixture(t)
	_, table := f.seedCafe(t)
	ctx := context.Background()

	require.NoError(t, f.session.SelectTable(ctx, table.ID))
	require.NoError(t, f.session.DeleteTable(ctx, table.ID))

	assert.Empty(t, f.store.SelectedTableID())
	_, ok := f.store.SelectedTableDetail()
	assert.False(t, ok)
	assert.Empty(t, f.store.Tables())
}

func TestFinancialViewFetchesCompletedOrders(t *testing.T) {
	f := newFixture(t)
	cake, table := f.seedCafe(t)
	ctx := context.Background()

	require.NoError(t, f.session.SelectTable(ctx, table.ID))
	require.NoError(t, f.session.AddProduct(ctx, cake))
	_, err := f.session.CompleteOrder(ctx)
	require.NoError(t, err)

	assert.Empty(t, f.store.CompletedOrders(), "fetched lazily, not on completion")

	require.NoError(t, f.session.SetView(ctx, client.ViewFinancial))
	require.Len(t, f.store.CompletedOrders(), 1)

	// A filter on a day with no sales empties the snapshot.
	require.NoError(t, f.session.SetDateFilter(ctx, "1999-01-01"))
	assert.Empty(t, f.store.CompletedOrders())

	require.NoError(t, f.session.SetDateFilter(ctx, ""))
	assert.Len(t, f.store.CompletedOrders(), 1)
}

func TestDateFilterOutsideFinancialViewDefersFetch(t *testing.T) {
	f := newFixture(t)
	f.seedCafe(t)
	ctx := context.Background()

	require.NoError(t, f.session.SetDateFilter(ctx, "2026-08-30"))
	assert.Empty(t, f.store.CompletedOrders())
	assert.Equal(t, "2026-08-30", f.session.DateFilter())
}

func TestProductCatalogWorkflow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Bootstrap(context.Background()))
	ctx := context.Background()

	created, err := f.session.CreateProduct(ctx, gateway.ProductInput{Name: "Espresso", Price: 3.50, Category: "Coffee"})
	require.NoError(t, err)
	assert.Len(t, f.store.Products(), 1)

	_, err = f.session.UpdateProduct(ctx, created.ID, gateway.ProductInput{Name: "Espresso", Price: 4.00, Category: "Coffee"})
	require.NoError(t, err)
	assert.InDelta(t, 4.00, f.store.Products()[0].Price, 1e-9)

	require.NoError(t, f.session.DeleteProduct(ctx, created.ID))
	assert.Empty(t, f.store.Products())
}

func TestAddTableAppearsInStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Bootstrap(context.Background()))

	table, err := f.session.AddTable(context.Background(), "Table 1")
	require.NoError(t, err)
	assert.Equal(t, models.TableStatusEmpty, table.Status)
	require.Len(t, f.store.Tables(), 1)
	assert.Equal(t, 2, f.store.NextTableNumber())
}

func TestRunConsumesNotifications(t *testing.T) {
	f := newFixture(t)
	cake, _ := f.seedCafe(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifications := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		f.session.Run(ctx, notifications)
		close(done)
	}()

	// Mutation lands on the authority, then the push signal arrives.
	other := gateway.NewClient(&config.APIConfig{BaseURL: f.server.URL()}, zap.NewNop())
	_, err := other.UpdateProduct(ctx, cake.ID, gateway.ProductInput{Name: "Cheesecake", Price: 7.00, Category: "Dessert"})
	require.NoError(t, err)

	notifications <- struct{}{}

	require.Eventually(t, func() bool {
		products := f.store.Products()
		return len(products) == 1 && products[0].Price == 7.00
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
