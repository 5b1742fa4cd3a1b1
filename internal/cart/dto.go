package cart

import (
	"time"

	"github.com/google/uuid"

	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Line is one cart entry joined with its product summary.
type Line struct {
	ProductID uuid.UUID          `json:"product_id"`
	Quantity  int                `json:"quantity"`
	Product   product.ProductDTO `json:"product"`
	UnitPrice types.Money        `json:"unit_price"`
	LineTotal types.Money        `json:"line_total"`
	AddedAt   time.Time          `json:"added_at"`
}

// View is the cart as rendered to clients, whichever backend produced it.
type View struct {
	Items           []Line      `json:"items"`
	ItemCount       int         `json:"item_count"`
	IsAuthenticated bool        `json:"is_authenticated"`
	Subtotal        types.Money `json:"subtotal"`
}

// MergeResult reports how a guest cart was folded into an account cart.
type MergeResult struct {
	Success     bool `json:"success"`
	MergedCount int  `json:"merged_count"`
	Skipped     int  `json:"skipped"`
}

func emptyView(authenticated bool) *View {
	return &View{Items: []Line{}, IsAuthenticated: authenticated, Subtotal: types.ZeroMoney()}
}

func newLine(p models.Product, qty int, addedAt time.Time) Line {
	return Line{
		ProductID: p.ID,
		Quantity:  qty,
		Product:   product.NewProductDTO(p),
		UnitPrice: p.Price,
		LineTotal: p.Price.Mul(qty),
		AddedAt:   addedAt,
	}
}

func buildView(lines []Line, authenticated bool) *View {
	view := emptyView(authenticated)
	for _, line := range lines {
		view.Items = append(view.Items, line)
		view.ItemCount += line.Quantity
		view.Subtotal = view.Subtotal.Add(line.LineTotal)
	}
	return view
}
