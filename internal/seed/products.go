// Package seed loads the demo catalog.
package seed

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductWriter inserts one product, assigning its id and creation time
type ProductWriter interface {
	CreateProduct(ctx context.Context, product *models.Product) error
}

// DemoProducts returns the six storefront demo products
func DemoProducts() []models.Product {
	return []models.Product{
		{
			Name:        "iPhone 13 Pro",
			Description: "The latest iPhone with advanced camera system and A15 Bionic chip",
			Price:       decimal.RequireFromString("999.99"),
			Category:    models.CategorySmartphones,
			Stock:       50,
			ImageURL:    "https://store.storeimages.cdn-apple.com/4982/as-images.apple.com/is/iphone-13-pro-family-hero?wid=940&hei=1112&fmt=png-alpha&.v=1644969385433",
		},
		{
			Name:        "MacBook Pro M2",
			Description: "Powerful laptop with M2 chip and Retina display",
			Price:       decimal.RequireFromString("1299.99"),
			Category:    models.CategoryElectronics,
			Stock:       30,
			ImageURL:    "https://store.storeimages.cdn-apple.com/4982/as-images.apple.com/is/mbp14-space-m2-pro_GEO_EMEA?wid=904&hei=840&fmt=jpeg&qlt=90&.v=1664411206445",
		},
		{
			Name:        "AirPods Pro",
			Description: "Wireless earbuds with active noise cancellation",
			Price:       decimal.RequireFromString("249.99"),
			Category:    models.CategoryAudio,
			Stock:       100,
			ImageURL:    "https://store.storeimages.cdn-apple.com/4982/as-images.apple.com/is/MQD83?wid=572&hei=572&fmt=jpeg&qlt=95&.v=1660803972361",
		},
		{
			Name:        "Apple Watch Series 8",
			Description: "Advanced smartwatch with health monitoring features",
			Price:       decimal.RequireFromString("399.99"),
			Category:    models.CategoryWearables,
			Stock:       75,
			ImageURL:    "https://store.storeimages.cdn-apple.com/4982/as-images.apple.com/is/MQDY3ref_VW_34FR+watch-45-alum-midnight-nc-8s_VW_34FR_WF_CO?wid=750&hei=712&trim=1%2C0&fmt=p-jpg&qlt=95&.v=1683224241054",
		},
		{
			Name:        "iPad Pro",
			Description: "Powerful tablet with M2 chip and Liquid Retina display",
			Price:       decimal.RequireFromString("799.99"),
			Category:    models.CategoryElectronics,
			Stock:       40,
			ImageURL:    "https://store.storeimages.cdn-apple.com/4982/as-images.apple.com/is/ipad-pro-12-11-select-202210?wid=470&hei=556&fmt=jpeg&qlt=95&.v=1664411206445",
		},
		{
			Name:        "Sony WH-1000XM5",
			Description: "Premium noise-cancelling headphones",
			Price:       decimal.RequireFromString("399.99"),
			Category:    models.CategoryAudio,
			Stock:       60,
			ImageURL:    "https://m.media-amazon.com/images/I/51Qh-0Y5QvL._AC_SL1500_.jpg",
		},
	}
}

// Products inserts the demo products in order and returns how many were written.
// It stops at the first failure.
func Products(ctx context.Context, w ProductWriter) (int, error) {
	logger := util.GetLogger()

	n := 0
	for _, p := range DemoProducts() {
		p := p
		if err := w.CreateProduct(ctx, &p); err != nil {
			return n, fmt.Errorf("failed to add product %q: %w", p.Name, err)
		}
		n++
		logger.Info("Added product", zap.String("name", p.Name), zap.String("id", p.ID))
	}
	return n, nil
}
