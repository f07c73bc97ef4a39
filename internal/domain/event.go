package domain

import (
	"math/big"
	"time"
)

// EventKind names a decoded launchpad event.
type EventKind string

// Event kinds.
const (
	KindTokenCreated EventKind = "TokenCreated"
	KindTokenListed  EventKind = "TokenListed"
	KindTokensBought EventKind = "TokensBought"
	KindTokensSold   EventKind = "TokensSold"
)

// EventMeta locates a decoded log on chain.
type EventMeta struct {
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
	Timestamp   time.Time
}

// Event is one of TokenCreated, TokenListed, TokensBought or TokensSold.
// Handlers switch over the concrete type.
type Event interface {
	Kind() EventKind
	Meta() EventMeta
}

// TokenCreated is emitted by the factory when a token is deployed.
type TokenCreated struct {
	EventMeta
	Token        string
	Creator      string
	Name         string
	Symbol       string
	ContentURI   string
	TotalSupply  *big.Int
	ReserveRatio uint32
}

// TokenListed is emitted by the marketplace when trading opens.
type TokenListed struct {
	EventMeta
	Token   string
	Creator string
}

// TokensBought is a marketplace purchase: ETH in, tokens out.
type TokensBought struct {
	EventMeta
	Token       string
	Buyer       string
	EthAmount   *big.Int
	TokenAmount *big.Int
}

// TokensSold is a marketplace sale: tokens in, ETH out.
type TokensSold struct {
	EventMeta
	Token       string
	Seller      string
	TokenAmount *big.Int
	EthAmount   *big.Int
}

func (e TokenCreated) Kind() EventKind { return KindTokenCreated }
func (e TokenListed) Kind() EventKind  { return KindTokenListed }
func (e TokensBought) Kind() EventKind { return KindTokensBought }
func (e TokensSold) Kind() EventKind   { return KindTokensSold }

func (e TokenCreated) Meta() EventMeta { return e.EventMeta }
func (e TokenListed) Meta() EventMeta  { return e.EventMeta }
func (e TokensBought) Meta() EventMeta { return e.EventMeta }
func (e TokensSold) Meta() EventMeta   { return e.EventMeta }

// TokenAddress returns the token an event refers to.
func TokenAddress(e Event) string {
	switch ev := e.(type) {
	case TokenCreated:
		return ev.Token
	case TokenListed:
		return ev.Token
	case TokensBought:
		return ev.Token
	case TokensSold:
		return ev.Token
	default:
		return ""
	}
}
