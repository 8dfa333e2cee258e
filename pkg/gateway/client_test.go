package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/possync/pkg/authoritytest"
	"github.com/example/possync/pkg/config"
	"github.com/example/possync/pkg/gateway"
	"github.com/example/possync/pkg/models"
)

func newClient(t *testing.T) (*gateway.Client, *authoritytest.Server) {
	t.Helper()
	server := authoritytest.New()
	t.Cleanup(server.Close)
	client := gateway.NewClient(&config.APIConfig{BaseURL: server.URL()}, zap.NewNop())
	return client, server
}

func TestProductLifecycle(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	created, err := client.CreateProduct(ctx, gateway.ProductInput{
		Name: "Espresso", Price: 3.50, Category: "Coffee",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Espresso", created.Name)

	updated, err := client.UpdateProduct(ctx, created.ID, gateway.ProductInput{
		Name: "Espresso", Price: 4.00, Category: "Coffee",
	})
	require.NoError(t, err)
	assert.InDelta(t, 4.00, updated.Price, 1e-9)

	products, err := client.Products(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)

	require.NoError(t, client.DeleteProduct(ctx, created.ID))
	products, err = client.Products(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestTableAndOrderLifecycle(t *testing.T) {
	client, server := newClient(t)
	ctx := context.Background()

	cake := server.SeedProduct(models.Product{ID: "5", Name: "Cheesecake", Price: 6.00, Category: "Dessert"})

	table, err := client.CreateTable(ctx, "Table 1")
	require.NoError(t, err)
	assert.Equal(t, models.TableStatusEmpty, table.Status)

	// Adding the same product twice increments one line.
	_, err = client.AddOrderItem(ctx, table.ID, cake.ID, 1)
	require.NoError(t, err)
	updated, err := client.AddOrderItem(ctx, table.ID, cake.ID, 1)
	require.NoError(t, err)
	require.Len(t, updated.Order, 1)
	assert.Equal(t, 2, updated.Order[0].Quantity)
	assert.Equal(t, models.TableStatusOccupied, updated.Status)

	record, err := client.CompleteOrder(ctx, table.ID)
	require.NoError(t, err)
	assert.InDelta(t, 12.00, record.Total, 1e-9)
	assert.Equal(t, table.ID, record.TableID)
	assert.Equal(t, "Table 1", record.TableName)

	detail, err := client.TableDetail(ctx, table.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Order)
	assert.Equal(t, models.TableStatusEmpty, detail.Status)

	archived, err := client.CompletedOrders(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)

	fetched, err := client.CompletedOrderDetail(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, fetched.ID)
}

func TestRemoveOrderItemReturnsEmptiedTable(t *testing.T) {
	client, server := newClient(t)
	ctx := context.Background()

	cake := server.SeedProduct(models.Product{ID: "5", Name: "Cheesecake", Price: 6.00})
	table := server.SeedTable(models.Table{Name: "Table 1"})

	withItem, err := client.AddOrderItem(ctx, table.ID, cake.ID, 1)
	require.NoError(t, err)
	require.Len(t, withItem.Order, 1)

	emptied, err := client.RemoveOrderItem(ctx, table.ID, withItem.Order[0].ID)
	require.NoError(t, err)
	assert.Empty(t, emptied.Order)
	assert.Equal(t, models.TableStatusEmpty, emptied.Status)
}

func TestCompletedOrdersByDate(t *testing.T) {
	client, server := newClient(t)
	ctx := context.Background()

	server.SeedCompletedOrder(models.CompletedOrder{
		ID: "a", Total: 10, Timestamp: mustTime(t, "2026-08-30T12:00:00Z"),
	})
	server.SeedCompletedOrder(models.CompletedOrder{
		ID: "b", Total: 20, Timestamp: mustTime(t, "2026-08-31T12:00:00Z"),
	})

	filtered, err := client.CompletedOrdersByDate(ctx, "2026-08-30")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].ID)

	all, err := client.CompletedOrdersByDate(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestRemoteErrorCarriesAuthorityMessage(t *testing.T) {
	client, server := newClient(t)
	ctx := context.Background()

	server.FailNext("GET", "/products")
	_, err := client.Products(ctx)
	require.Error(t, err)

	var remoteErr *gateway.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, 500, remoteErr.StatusCode)
	assert.Equal(t, "induced failure", remoteErr.Message)
}

func TestRemoteErrorOnMissingResource(t *testing.T) {
	client, _ := newClient(t)

	_, err := client.TableDetail(context.Background(), "missing")
	var remoteErr *gateway.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, 404, remoteErr.StatusCode)
	assert.Equal(t, "table not found", remoteErr.Message)
}

func TestRemoteErrorOnUnreachableAuthority(t *testing.T) {
	client := gateway.NewClient(&config.APIConfig{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())

	_, err := client.Products(context.Background())
	var remoteErr *gateway.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Zero(t, remoteErr.StatusCode)
}
