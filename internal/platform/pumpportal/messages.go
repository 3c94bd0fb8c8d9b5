// Package pumpportal implements clients for the PumpPortal real-time data feed
// and its delegated trade API.
package pumpportal

import (
	"encoding/json"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// Feed subscription methods.
const (
	MethodSubscribeNewToken     = "subscribeNewToken"
	MethodUnsubscribeNewToken   = "unsubscribeNewToken"
	MethodSubscribeTokenTrade   = "subscribeTokenTrade"
	MethodUnsubscribeTokenTrade = "unsubscribeTokenTrade"
)

// WSCommand is an outbound control message.
type WSCommand struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

// TradeMessage is an inbound create or trade notification.
type TradeMessage struct {
	Signature             string  `json:"signature"`
	Mint                  string  `json:"mint"`
	TraderPublicKey       string  `json:"traderPublicKey"`
	TxType                string  `json:"txType"`
	InitialBuy            float64 `json:"initialBuy"`
	TokenAmount           float64 `json:"tokenAmount"`
	SolAmount             float64 `json:"solAmount"`
	BondingCurveKey       string  `json:"bondingCurveKey"`
	VTokensInBondingCurve float64 `json:"vTokensInBondingCurve"`
	VSolInBondingCurve    float64 `json:"vSolInBondingCurve"`
	MarketCapSol          float64 `json:"marketCapSol"`
	Name                  string  `json:"name"`
	Symbol                string  `json:"symbol"`
	URI                   string  `json:"uri"`
}

// ParseMessage decodes a raw feed frame. It returns false for subscription
// acknowledgements, unknown transaction types, and malformed frames.
func ParseMessage(raw []byte) (domain.TradeEvent, bool) {
	var msg TradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.TradeEvent{}, false
	}
	if msg.Mint == "" {
		return domain.TradeEvent{}, false
	}
	kind, ok := eventKind(msg.TxType)
	if !ok {
		return domain.TradeEvent{}, false
	}
	return msg.ToDomain(kind), true
}

// ToDomain converts the wire message into a TradeEvent of the given kind.
func (m *TradeMessage) ToDomain(kind domain.EventKind) domain.TradeEvent {
	return domain.TradeEvent{
		Kind:          kind,
		Mint:          m.Mint,
		Name:          m.Name,
		Symbol:        m.Symbol,
		Trader:        m.TraderPublicKey,
		BondingCurve:  m.BondingCurveKey,
		TokenAmount:   m.TokenAmount,
		SolAmount:     m.SolAmount,
		InitialBuy:    m.InitialBuy,
		MarketCapSol:  m.MarketCapSol,
		SolReserves:   m.VSolInBondingCurve,
		TokenReserves: m.VTokensInBondingCurve,
		ReceivedAt:    time.Now().UTC(),
	}
}

func eventKind(txType string) (domain.EventKind, bool) {
	switch txType {
	case "create":
		return domain.EventCreate, true
	case "buy":
		return domain.EventBuy, true
	case "sell":
		return domain.EventSell, true
	default:
		return "", false
	}
}
