package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/pricing"
)

// Format renders an execution outcome as an event type, title and body.
func Format(d domain.Decision, o domain.Outcome) (event, title, message string) {
	name := d.Name
	if name == "" {
		name = shortMint(d.Mint)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Mint: %s\n", d.Mint)
	if d.Trigger != "" {
		fmt.Fprintf(&b, "Trigger: %s\n", d.Trigger)
	}
	if d.Action == domain.ActionSell {
		fmt.Fprintf(&b, "Fraction: %.0f%%\n", d.Fraction*100)
	}
	if d.Price > 0 {
		fmt.Fprintf(&b, "Price: %.10f SOL\n", d.Price)
	}

	switch o.Status {
	case domain.OutcomeConfirmed:
		event = EventBuyConfirmed
		title = "Bought " + name
		if d.Action == domain.ActionSell {
			event = EventSellConfirmed
			title = "Sold " + name
		}
		if o.SolAmount > 0 {
			fmt.Fprintf(&b, "SOL: %.6f\n", pricing.LamportsToSOL(o.SolAmount))
		}
		fmt.Fprintf(&b, "Tx: %s", o.Signature)
	case domain.OutcomeSkipped:
		event = EventTradeSkipped
		title = fmt.Sprintf("Skipped %s %s", d.Action, name)
		fmt.Fprintf(&b, "Reason: %s", o.Reason)
	default:
		event = EventTradeFailed
		title = fmt.Sprintf("Failed %s %s", d.Action, name)
		fmt.Fprintf(&b, "Reason: %s", o.Reason)
		if o.Detail != "" {
			fmt.Fprintf(&b, "\nDetail: %s", o.Detail)
		}
	}
	return event, title, b.String()
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + "…" + mint[len(mint)-4:]
}
