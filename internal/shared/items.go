package shared

import "fmt"

// ItemKind tags which valuation family an item belongs to.
type ItemKind string

const (
	// ItemConsumable is stock valued at a moving weighted-average cost.
	ItemConsumable ItemKind = "insumo"
	// ItemPart is stock tracked through FIFO batches.
	ItemPart ItemKind = "refaccion"
)

// Valid reports whether the kind is known.
func (k ItemKind) Valid() bool {
	return k == ItemConsumable || k == ItemPart
}

// ItemRef is a tagged reference to either a consumable or a part. Every
// operation that accepts both families dispatches on the kind exactly once.
type ItemRef struct {
	Kind ItemKind `json:"item_kind"`
	ID   int64    `json:"item_id"`
}

// ConsumableRef builds a consumable reference.
func ConsumableRef(id int64) ItemRef {
	return ItemRef{Kind: ItemConsumable, ID: id}
}

// PartRef builds a part reference.
func PartRef(id int64) ItemRef {
	return ItemRef{Kind: ItemPart, ID: id}
}

// Validate checks the reference is well formed.
func (r ItemRef) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown item kind %q", ErrValidation, r.Kind)
	}
	if r.ID <= 0 {
		return fmt.Errorf("%w: item id required", ErrValidation)
	}
	return nil
}
