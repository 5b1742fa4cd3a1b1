package helpers

import (
	"bytes"
	"sort"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
	"github.com/google/uuid"
)

// Line is one resolved checkout line: a live product row and the quantity.
type Line struct {
	Product  models.Product
	Quantity int
}

// UnitPrice is the server-side price snapshot.
func (l Line) UnitPrice() types.Money {
	return l.Product.Price
}

// Total is unit price times quantity.
func (l Line) Total() types.Money {
	return l.Product.Price.Mul(l.Quantity)
}

// StorePartition holds the lines one store will fulfil as a single order.
type StorePartition struct {
	StoreID uuid.UUID
	Lines   []Line
}

// Total sums the partition's line totals.
func (p StorePartition) Total() types.Money {
	total := types.ZeroMoney()
	for _, line := range p.Lines {
		total = total.Add(line.Total())
	}
	return total
}

// ItemCount sums the partition's quantities.
func (p StorePartition) ItemCount() int {
	n := 0
	for _, line := range p.Lines {
		n += line.Quantity
	}
	return n
}

// PartitionByStore groups lines by owning store. Partitions are ordered by
// store id; lines keep their input order.
func PartitionByStore(lines []Line) []StorePartition {
	index := make(map[uuid.UUID]int)
	var partitions []StorePartition
	for _, line := range lines {
		storeID := line.Product.StoreID
		i, ok := index[storeID]
		if !ok {
			i = len(partitions)
			index[storeID] = i
			partitions = append(partitions, StorePartition{StoreID: storeID})
		}
		partitions[i].Lines = append(partitions[i].Lines, line)
	}
	sort.Slice(partitions, func(a, b int) bool {
		return bytes.Compare(partitions[a].StoreID[:], partitions[b].StoreID[:]) < 0
	})
	return partitions
}

// MergeQuantities folds repeated product ids into one request each, keeping
// first-seen order.
func MergeQuantities(ids []uuid.UUID, qtys []int) ([]uuid.UUID, map[uuid.UUID]int) {
	order := make([]uuid.UUID, 0, len(ids))
	totals := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		if _, seen := totals[id]; !seen {
			order = append(order, id)
		}
		totals[id] += qtys[i]
	}
	return order, totals
}
