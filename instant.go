package bazaar

import (
	"github.com/google/uuid"

	"go.uber.org/zap"
)

// InstantBuyResult reports how far an instant buy got. Insufficient
// liquidity or balance is never an error: callers inspect Bought against
// Requested and the balance fields.
type InstantBuyResult struct {
	Requested      int64
	Bought         int64
	InitialBalance int64
	NewBalance     int64
}

// InstantSellResult reports how far an instant sell got. Leftover is the
// requested quantity that found no bid.
type InstantSellResult struct {
	Requested        int64
	Leftover         int64
	CollectedBalance int64
}

// InstantBuy walks sell offers in ascending price order, buying up to
// requested units without ever spending more than balance. Every step is
// committed through it.Update before the walk continues, so an interruption
// mid-walk leaves a consistent book.
func InstantBuy(it OrdersIterator, buyer uuid.UUID, requested int64, balance int64) (*InstantBuyResult, error) {
	result := &InstantBuyResult{
		Requested:      requested,
		InitialBalance: balance,
		NewBalance:     balance,
	}
	if requested <= 0 || balance < 0 {
		return nil, ErrInvalidParam
	}

	remaining := requested
	for remaining > 0 && it.HasNext() {
		offer := it.Next()

		available := offer.UnfilledUnits()
		affordable := result.NewBalance / offer.PricePerUnit
		take := min64(remaining, min64(available, affordable))
		if take == 0 {
			// Cannot afford a single unit at this price level; every later
			// level is at least as expensive. Also halts on zero balance.
			break
		}

		if err := offer.applyFill(take); err != nil {
			return nil, err
		}
		if err := it.Update(offer); err != nil {
			return nil, err
		}

		result.Bought += take
		result.NewBalance -= take * offer.PricePerUnit
		remaining -= take

		logger.Debug("instant buy step",
			zap.String("buyer", buyer.String()),
			zap.String("offer", offer.ID.String()),
			zap.Int64("units", take),
			zap.Int64("price", offer.PricePerUnit))
	}

	return result, nil
}

// InstantSell walks buy offers in descending price order, selling up to
// requested units. There is no balance constraint on a sell.
func InstantSell(it OrdersIterator, seller uuid.UUID, requested int64) (*InstantSellResult, error) {
	if requested <= 0 {
		return nil, ErrInvalidParam
	}
	result := &InstantSellResult{
		Requested: requested,
		Leftover:  requested,
	}

	for result.Leftover > 0 && it.HasNext() {
		offer := it.Next()

		take := min64(result.Leftover, offer.UnfilledUnits())
		if take == 0 {
			continue
		}

		if err := offer.applyFill(take); err != nil {
			return nil, err
		}
		if err := it.Update(offer); err != nil {
			return nil, err
		}

		result.Leftover -= take
		result.CollectedBalance += take * offer.PricePerUnit

		logger.Debug("instant sell step",
			zap.String("seller", seller.String()),
			zap.String("offer", offer.ID.String()),
			zap.Int64("units", take),
			zap.Int64("price", offer.PricePerUnit))
	}

	return result, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
