package monitor

import (
	"fmt"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// Decision is the outcome of evaluating one change against the policy.
type Decision struct {
	Buy    bool
	Reason string
}

// Decide evaluates whether the current snapshot warrants a purchase.
// It is pure and total: every input yields a decision with a reason,
// misconfiguration included.
func Decide(event models.ChangeEvent, policy models.PurchasePolicy) Decision {
	if !policy.AutoBuy {
		return Decision{Reason: "auto-buy disabled"}
	}

	snap := event.Current
	if !snap.Stock.Purchasable() {
		return Decision{Reason: fmt.Sprintf("stock state %s is not purchasable", snap.Stock)}
	}
	if snap.Price == nil {
		return Decision{Reason: "price absent from snapshot"}
	}

	if policy.MaxPrice != nil {
		ok, err := snap.Price.LessThanOrEqual(*policy.MaxPrice)
		if err != nil {
			return Decision{Reason: fmt.Sprintf("price ceiling misconfigured: %v", err)}
		}
		if !ok {
			return Decision{Reason: fmt.Sprintf("price %s exceeds ceiling %s", snap.Price, policy.MaxPrice)}
		}
	}

	return Decision{Buy: true, Reason: fmt.Sprintf("stock %s at %s within policy", snap.Stock, snap.Price)}
}
