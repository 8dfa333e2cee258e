package models

import (
	"sort"
)

// ProductSales is per-product revenue within one day's summary.
type ProductSales struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Total     float64 `json:"total"`
}

// DailySummary aggregates the completed orders of one calendar day.
// Derived on demand from fetched CompletedOrder records, never stored.
type DailySummary struct {
	Date        string         `json:"date"`
	TotalSales  float64        `json:"totalSales"`
	OrderCount  int            `json:"orderCount"`
	TopProducts []ProductSales `json:"topProducts"`
}

// Summarize groups completed orders by the UTC calendar date of their
// timestamp. Per day it folds total sales, order count and per-product
// quantity/revenue from the line snapshots (price at time of sale).
// Products within a day are sorted by revenue descending, days newest
// first.
func Summarize(orders []CompletedOrder) []DailySummary {
	byDate := make(map[string]*DailySummary)

	for _, order := range orders {
		key := order.Timestamp.UTC().Format("2006-01-02")
		day, ok := byDate[key]
		if !ok {
			day = &DailySummary{Date: key}
			byDate[key] = day
		}

		day.TotalSales += order.Total
		day.OrderCount++

		for _, item := range order.Items {
			if item.Product.ID == "" {
				continue
			}
			lineTotal := item.Product.Price * float64(item.Quantity)
			idx := -1
			for i, p := range day.TopProducts {
				if p.ProductID == item.Product.ID {
					idx = i
					break
				}
			}
			if idx >= 0 {
				day.TopProducts[idx].Quantity += item.Quantity
				day.TopProducts[idx].Total += lineTotal
			} else {
				day.TopProducts = append(day.TopProducts, ProductSales{
					ProductID: item.Product.ID,
					Name:      item.Product.Name,
					Quantity:  item.Quantity,
					Total:     lineTotal,
				})
			}
		}
	}

	summaries := make([]DailySummary, 0, len(byDate))
	for _, day := range byDate {
		sort.SliceStable(day.TopProducts, func(i, j int) bool {
			return day.TopProducts[i].Total > day.TopProducts[j].Total
		})
		summaries = append(summaries, *day)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Date > summaries[j].Date
	})
	return summaries
}

// TopN trims a summary's product list to its n highest earners.
func (s DailySummary) TopN(n int) []ProductSales {
	if n > len(s.TopProducts) {
		n = len(s.TopProducts)
	}
	return s.TopProducts[:n]
}

// TotalRevenue sums order totals across the given records.
func TotalRevenue(orders []CompletedOrder) float64 {
	var sum float64
	for _, order := range orders {
		sum += order.Total
	}
	return sum
}

// AverageOrderValue is TotalRevenue divided by order count, 0 when empty.
func AverageOrderValue(orders []CompletedOrder) float64 {
	if len(orders) == 0 {
		return 0
	}
	return TotalRevenue(orders) / float64(len(orders))
}
