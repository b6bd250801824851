package coupon

import (
	"sort"

	"github.com/shopspring/decimal"

	ierr "github.com/subflow/subflow/internal/errors"
)

// ApplyScope controls which items a percentage coupon discounts.
type ApplyScope string

const (
	// ApplyScopeHighestEligibleItem discounts only the single most expensive
	// eligible item.
	ApplyScopeHighestEligibleItem ApplyScope = "highest_eligible_item"
	// ApplyScopeOrderTotal discounts the sum of eligible items, distributed
	// proportionally across them.
	ApplyScopeOrderTotal ApplyScope = "order_total"
)

// Item is a pricing unit the allocation reads. Amounts are minor currency
// units (cents), pre-discount.
type Item struct {
	TotalCents int64 `json:"total_cents"`
	Eligible   bool  `json:"eligible"`
}

// AllocationInput describes one coupon applied to a set of items.
type AllocationInput struct {
	ApplyScope ApplyScope      `json:"apply_scope"`
	PercentOff decimal.Decimal `json:"percent_off"`
	Items      []Item          `json:"items"`
}

// AllocationResult carries per-item discounts in the input's item order plus
// their total. The defining property: the per-item discounts always sum to
// exactly TotalDiscountCents, with no rounding drift.
type AllocationResult struct {
	ItemDiscountCents  []int64 `json:"item_discount_cents"`
	TotalDiscountCents int64   `json:"total_discount_cents"`
}

var oneHundred = decimal.NewFromInt(100)

// ComputeCouponAllocation allocates a percentage discount across items
// according to the coupon's scope. Eligible items are those flagged eligible
// with positive pre-discount totals; with no eligible items or a non-positive
// percentage all discounts are zero.
func ComputeCouponAllocation(input AllocationInput) (*AllocationResult, error) {
	if input.PercentOff.GreaterThan(oneHundred) {
		return nil, ierr.NewError("percent_off cannot exceed 100").
			WithReportableDetails(map[string]interface{}{
				"percent_off": input.PercentOff.String(),
			}).
			Mark(ierr.ErrValidation)
	}

	result := &AllocationResult{
		ItemDiscountCents: make([]int64, len(input.Items)),
	}

	if input.PercentOff.LessThanOrEqual(decimal.Zero) {
		return result, nil
	}

	eligible := make([]int, 0, len(input.Items))
	for i, item := range input.Items {
		if item.Eligible && item.TotalCents > 0 {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return result, nil
	}

	switch input.ApplyScope {
	case ApplyScopeHighestEligibleItem:
		allocateHighestItem(input, eligible, result)
	case ApplyScopeOrderTotal:
		allocateOrderTotal(input, eligible, result)
	default:
		return nil, ierr.NewErrorf("unknown apply_scope: %s", input.ApplyScope).
			Mark(ierr.ErrValidation)
	}

	return result, nil
}

// allocateHighestItem discounts the single eligible item with the largest
// pre-discount total, earliest index winning ties. The discount is clamped to
// the item's own total.
func allocateHighestItem(input AllocationInput, eligible []int, result *AllocationResult) {
	target := eligible[0]
	for _, i := range eligible[1:] {
		if input.Items[i].TotalCents > input.Items[target].TotalCents {
			target = i
		}
	}

	itemTotal := input.Items[target].TotalCents
	discount := percentOf(itemTotal, input.PercentOff)
	if discount < 0 {
		discount = 0
	}
	if discount > itemTotal {
		discount = itemTotal
	}

	result.ItemDiscountCents[target] = discount
	result.TotalDiscountCents = discount
}

// allocateOrderTotal computes one discount on the eligible subtotal, then
// distributes it using the largest-remainder method: floor each item's exact
// proportional share, then hand the leftover cents one at a time to the items
// with the largest fractional remainder, earliest index winning ties.
func allocateOrderTotal(input AllocationInput, eligible []int, result *AllocationResult) {
	var subtotal int64
	for _, i := range eligible {
		subtotal += input.Items[i].TotalCents
	}

	totalDiscount := percentOf(subtotal, input.PercentOff)
	if totalDiscount <= 0 {
		return
	}
	if totalDiscount > subtotal {
		totalDiscount = subtotal
	}

	type share struct {
		index     int
		floor     int64
		remainder decimal.Decimal
	}

	shares := make([]share, len(eligible))
	totalDec := decimal.NewFromInt(totalDiscount)
	subtotalDec := decimal.NewFromInt(subtotal)
	var floorSum int64

	for pos, i := range eligible {
		exact := totalDec.Mul(decimal.NewFromInt(input.Items[i].TotalCents)).Div(subtotalDec)
		floor := exact.Floor()
		shares[pos] = share{
			index:     i,
			floor:     floor.IntPart(),
			remainder: exact.Sub(floor),
		}
		floorSum += floor.IntPart()
	}

	leftover := totalDiscount - floorSum

	// Largest fractional remainder first; ties go to the earliest item.
	sort.SliceStable(shares, func(a, b int) bool {
		cmp := shares[a].remainder.Cmp(shares[b].remainder)
		if cmp != 0 {
			return cmp > 0
		}
		return shares[a].index < shares[b].index
	})

	for pos := range shares {
		if leftover <= 0 {
			break
		}
		shares[pos].floor++
		leftover--
	}

	for _, sh := range shares {
		result.ItemDiscountCents[sh.index] = sh.floor
	}
	result.TotalDiscountCents = totalDiscount
}

// percentOf returns round(amount * percent / 100) in cents, rounding half
// away from zero.
func percentOf(amountCents int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amountCents).
		Mul(percent).
		Div(oneHundred).
		Round(0).
		IntPart()
}
