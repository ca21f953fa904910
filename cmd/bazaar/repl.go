package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hexwell/bazaar"
)

// priceScale is the number of decimal digits carried by the integer
// price unit: a PricePerUnit of 1050 renders as 10.50.
const priceScale = 2

func parsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("bad price %q: %w", s, err)
	}
	scaled := d.Shift(priceScale)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("price %q has more than %d decimal places", s, priceScale)
	}
	if !scaled.IsPositive() {
		return 0, fmt.Errorf("price %q must be positive", s)
	}
	return scaled.IntPart(), nil
}

func formatPrice(p int64) string {
	return decimal.New(p, -priceScale).StringFixed(priceScale)
}

func sessionUser() (uuid.UUID, error) {
	if v, ok := os.LookupEnv("BAZAAR_USER"); ok {
		return uuid.Parse(v)
	}
	return uuid.New(), nil
}

func runREPL(svc bazaar.MarketService) error {
	user, err := sessionUser()
	if err != nil {
		return err
	}
	fmt.Println("session user:", user)

	svc.OnOrderFilled(func(ev bazaar.OrderFilledEvent) {
		if ev.Order.Owner == user {
			fmt.Printf("\n*** order %s filled (%d units at %s) ***\n> ",
				ev.Order.ID, ev.Order.TotalUnits, formatPrice(ev.Order.PricePerUnit))
		}
	})

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			if fields[0] == "quit" || fields[0] == "exit" {
				return nil
			}
			if err := dispatch(svc, user, fields); err != nil {
				fmt.Println("error:", err)
			}
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

func dispatch(svc bazaar.MarketService, user uuid.UUID, fields []string) error {
	ctx := context.Background()

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "help":
		fmt.Print(`commands:
  list-products
  product <product-id>
  list-offers
  add-offer <buy|sell> <product-id> <units> <price>
  cancel-offer <order-id>
  claim-offer <order-id>
  instant-offer <buy|sell> <product-id> <units> [balance]
  quit
`)
		return nil

	case "list-products":
		cat, err := svc.Catalogue(ctx)
		if err != nil {
			return err
		}
		names := make(map[string]string, len(cat.Categories))
		for _, c := range cat.Categories {
			names[c.ID] = c.Name
		}
		for _, p := range cat.Products {
			fmt.Printf("%-24s %s (%s)\n", p.ID, p.Name, names[p.CategoryID])
		}
		return nil

	case "product":
		if len(args) != 1 {
			return fmt.Errorf("usage: product <product-id>")
		}
		sum, err := svc.Summary(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println("buy offers:")
		printLevels(sum.BuyLevels)
		fmt.Println("sell offers:")
		printLevels(sum.SellLevels)
		return nil

	case "list-offers":
		orders, err := svc.OrdersByOwner(ctx, user)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			fmt.Println("no offers")
		}
		for _, o := range orders {
			fmt.Printf("%s %-4s %-24s %d/%d units at %s (claimed %d)\n",
				o.ID, o.Side, o.ProductID, o.FilledUnits, o.TotalUnits,
				formatPrice(o.PricePerUnit), o.ClaimedUnits)
		}
		return nil

	case "add-offer":
		if len(args) != 4 {
			return fmt.Errorf("usage: add-offer <buy|sell> <product-id> <units> <price>")
		}
		side, err := parseSide(args[0])
		if err != nil {
			return err
		}
		units, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return err
		}
		price, err := parsePrice(args[3])
		if err != nil {
			return err
		}
		place := svc.PlaceBuyOrder
		if side == bazaar.Sell {
			place = svc.PlaceSellOrder
		}
		order, err := place(ctx, user, args[1], units, price)
		if err != nil {
			return err
		}
		fmt.Println("placed", order.ID)
		return nil

	case "cancel-offer":
		if len(args) != 1 {
			return fmt.Errorf("usage: cancel-offer <order-id>")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return err
		}
		order, err := svc.CancelOrder(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("cancelled; %d units were never filled\n", order.UnfilledUnits())
		return nil

	case "claim-offer":
		if len(args) != 1 {
			return fmt.Errorf("usage: claim-offer <order-id>")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return err
		}
		res, err := svc.ClaimOrder(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("claimed %d units worth %s (fully claimed: %v)\n",
			res.ClaimedUnits, formatPrice(res.ClaimedValue), res.FullyClaimed)
		return nil

	case "instant-offer":
		if len(args) != 3 && len(args) != 4 {
			return fmt.Errorf("usage: instant-offer <buy|sell> <product-id> <units> [balance]")
		}
		side, err := parseSide(args[0])
		if err != nil {
			return err
		}
		units, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return err
		}
		if side == bazaar.Buy {
			if len(args) != 4 {
				return fmt.Errorf("instant buy needs a balance")
			}
			balance, err := parsePrice(args[3])
			if err != nil {
				return err
			}
			res, err := svc.InstantBuy(ctx, user, args[1], units, balance)
			if err != nil {
				return err
			}
			fmt.Printf("bought %d of %d units, balance %s -> %s\n",
				res.Bought, res.Requested,
				formatPrice(res.InitialBalance), formatPrice(res.NewBalance))
			return nil
		}
		res, err := svc.InstantSell(ctx, user, args[1], units)
		if err != nil {
			return err
		}
		fmt.Printf("sold %d of %d units for %s (%d left over)\n",
			res.Requested-res.Leftover, res.Requested,
			formatPrice(res.CollectedBalance), res.Leftover)
		return nil

	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func parseSide(s string) (bazaar.Side, error) {
	switch s {
	case "buy":
		return bazaar.Buy, nil
	case "sell":
		return bazaar.Sell, nil
	}
	return 0, fmt.Errorf("side must be buy or sell, got %q", s)
}

func printLevels(levels []bazaar.PriceLevel) {
	if len(levels) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, lvl := range levels {
		fmt.Printf("  %8s x %-8d (%d offers)\n",
			formatPrice(lvl.Price), lvl.TotalUnits, lvl.OfferCount)
	}
}
