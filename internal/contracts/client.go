package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"launchpad-indexer/internal/chain"
	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/logging"
)

// ErrMalformedLog is returned for logs that do not match the event ABI.
var ErrMalformedLog = errors.New("malformed log")

// Client implements Gateway over a chain.Reader.
type Client struct {
	reader      chain.Reader
	factory     common.Address
	marketplace common.Address
	logger      *zap.Logger
}

// Options configures Client.
type Options struct {
	Factory     common.Address
	Marketplace common.Address
	Logger      *zap.Logger
}

// NewClient creates a gateway for the given factory and marketplace.
func NewClient(reader chain.Reader, opts Options) *Client {
	return &Client{
		reader:      reader,
		factory:     opts.Factory,
		marketplace: opts.Marketplace,
		logger:      logging.OrNop(opts.Logger).Named("contracts"),
	}
}

// BlockNumber returns the current chain height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.reader.BlockNumber(ctx)
}

// TokenCreatedEvents returns factory TokenCreated events in [from, to].
func (c *Client) TokenCreatedEvents(ctx context.Context, from, to uint64) ([]domain.TokenCreated, error) {
	logs, err := c.logs(ctx, c.factory, []common.Hash{TopicTokenCreated}, from, to)
	if err != nil {
		return nil, fmt.Errorf("get TokenCreated logs: %w", err)
	}
	times := c.blockTimes()

	events := make([]domain.TokenCreated, 0, len(logs))
	for _, l := range logs {
		var raw struct {
			Token        common.Address
			Creator      common.Address
			Name         string
			Symbol       string
			MetadataURI  string
			TotalSupply  *big.Int
			ReserveRatio uint32
		}
		if err := decodeLog(factoryABI, "TokenCreated", l, &raw); err != nil {
			c.logger.Warn("skipping undecodable log", zap.String("event", "TokenCreated"), zap.String("tx_hash", l.TxHash.Hex()), zap.Error(err))
			continue
		}
		meta, err := c.meta(ctx, times, l)
		if err != nil {
			return nil, err
		}
		events = append(events, domain.TokenCreated{
			EventMeta:    meta,
			Token:        hexAddress(raw.Token),
			Creator:      hexAddress(raw.Creator),
			Name:         raw.Name,
			Symbol:       raw.Symbol,
			ContentURI:   raw.MetadataURI,
			TotalSupply:  raw.TotalSupply,
			ReserveRatio: raw.ReserveRatio,
		})
	}
	return events, nil
}

// TokenListedEvents returns marketplace TokenListed events in [from, to].
func (c *Client) TokenListedEvents(ctx context.Context, from, to uint64) ([]domain.TokenListed, error) {
	logs, err := c.logs(ctx, c.marketplace, []common.Hash{TopicTokenListed}, from, to)
	if err != nil {
		return nil, fmt.Errorf("get TokenListed logs: %w", err)
	}
	times := c.blockTimes()

	events := make([]domain.TokenListed, 0, len(logs))
	for _, l := range logs {
		var raw struct {
			Token   common.Address
			Creator common.Address
		}
		if err := decodeLog(marketplaceABI, "TokenListed", l, &raw); err != nil {
			c.logger.Warn("skipping undecodable log", zap.String("event", "TokenListed"), zap.String("tx_hash", l.TxHash.Hex()), zap.Error(err))
			continue
		}
		meta, err := c.meta(ctx, times, l)
		if err != nil {
			return nil, err
		}
		events = append(events, domain.TokenListed{
			EventMeta: meta,
			Token:     hexAddress(raw.Token),
			Creator:   hexAddress(raw.Creator),
		})
	}
	return events, nil
}

// TradeEvents returns TokensBought and TokensSold events in [from, to].
func (c *Client) TradeEvents(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	logs, err := c.logs(ctx, c.marketplace, []common.Hash{TopicTokensBought, TopicTokensSold}, from, to)
	if err != nil {
		return nil, fmt.Errorf("get trade logs: %w", err)
	}
	times := c.blockTimes()

	events := make([]domain.Event, 0, len(logs))
	for _, l := range logs {
		ev, err := c.decodeTrade(ctx, times, l)
		if errors.Is(err, ErrMalformedLog) {
			c.logger.Warn("skipping undecodable log", zap.String("tx_hash", l.TxHash.Hex()), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *Client) decodeTrade(ctx context.Context, times map[uint64]time.Time, l chain.Log) (domain.Event, error) {
	switch l.Topics[0] {
	case TopicTokensBought:
		var raw struct {
			Token       common.Address
			Buyer       common.Address
			EthAmount   *big.Int
			TokenAmount *big.Int
		}
		if err := decodeLog(marketplaceABI, "TokensBought", l, &raw); err != nil {
			return nil, err
		}
		meta, err := c.meta(ctx, times, l)
		if err != nil {
			return nil, err
		}
		return domain.TokensBought{
			EventMeta:   meta,
			Token:       hexAddress(raw.Token),
			Buyer:       hexAddress(raw.Buyer),
			EthAmount:   raw.EthAmount,
			TokenAmount: raw.TokenAmount,
		}, nil
	case TopicTokensSold:
		var raw struct {
			Token       common.Address
			Seller      common.Address
			TokenAmount *big.Int
			EthAmount   *big.Int
		}
		if err := decodeLog(marketplaceABI, "TokensSold", l, &raw); err != nil {
			return nil, err
		}
		meta, err := c.meta(ctx, times, l)
		if err != nil {
			return nil, err
		}
		return domain.TokensSold{
			EventMeta:   meta,
			Token:       hexAddress(raw.Token),
			Seller:      hexAddress(raw.Seller),
			TokenAmount: raw.TokenAmount,
			EthAmount:   raw.EthAmount,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected topic %s", ErrMalformedLog, l.Topics[0].Hex())
	}
}

// logs fetches matching logs, halving the range whenever the node rejects
// it as too large, and returns them ordered by (block, log index).
func (c *Client) logs(ctx context.Context, addr common.Address, topics []common.Hash, from, to uint64) ([]chain.Log, error) {
	if from > to {
		return nil, nil
	}
	logs, err := c.reader.GetLogs(ctx, chain.FilterQuery{
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{topics},
		FromBlock: from,
		ToBlock:   to,
	})
	if err != nil {
		if from < to && chain.IsRangeTooLarge(err) {
			mid := from + (to-from)/2
			c.logger.Debug("splitting log range",
				zap.Uint64("from_block", from),
				zap.Uint64("to_block", to),
			)
			left, err := c.logs(ctx, addr, topics, from, mid)
			if err != nil {
				return nil, err
			}
			right, err := c.logs(ctx, addr, topics, mid+1, to)
			if err != nil {
				return nil, err
			}
			return append(left, right...), nil
		}
		return nil, err
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].LogIndex < logs[j].LogIndex
	})
	return logs, nil
}

// blockTimes returns a per-query block timestamp cache.
func (c *Client) blockTimes() map[uint64]time.Time {
	return make(map[uint64]time.Time)
}

func (c *Client) meta(ctx context.Context, times map[uint64]time.Time, l chain.Log) (domain.EventMeta, error) {
	ts, ok := times[l.BlockNumber]
	if !ok {
		var err error
		ts, err = c.reader.BlockTime(ctx, l.BlockNumber)
		if err != nil {
			return domain.EventMeta{}, fmt.Errorf("block %d time: %w", l.BlockNumber, err)
		}
		times[l.BlockNumber] = ts
	}
	return domain.EventMeta{
		BlockNumber: l.BlockNumber,
		TxHash:      domain.NormalizeAddress(l.TxHash.Hex()),
		LogIndex:    l.LogIndex,
		Timestamp:   ts,
	}, nil
}

// decodeLog unpacks data into out's non-indexed fields and topics into its
// indexed fields. Field names are the camel-cased ABI argument names.
func decodeLog(contract abi.ABI, event string, l chain.Log, out interface{}) error {
	ev, ok := contract.Events[event]
	if !ok {
		return fmt.Errorf("%w: unknown event %s", ErrMalformedLog, event)
	}
	if len(l.Topics) == 0 || l.Topics[0] != ev.ID {
		return fmt.Errorf("%w: topic mismatch for %s", ErrMalformedLog, event)
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(l.Topics)-1 != len(indexed) {
		return fmt.Errorf("%w: %s expects %d indexed topics, got %d", ErrMalformedLog, event, len(indexed), len(l.Topics)-1)
	}

	if len(indexed) < len(ev.Inputs) {
		if err := contract.UnpackIntoInterface(out, event, l.Data); err != nil {
			return fmt.Errorf("%w: unpack %s data: %v", ErrMalformedLog, event, err)
		}
	}
	if err := abi.ParseTopics(out, indexed, l.Topics[1:]); err != nil {
		return fmt.Errorf("%w: parse %s topics: %v", ErrMalformedLog, event, err)
	}
	return nil
}

// CurrentPrice returns getCurrentPrice, scaled from wei to ETH per token.
func (c *Client) CurrentPrice(ctx context.Context, token string) (float64, error) {
	v, err := c.callBig(ctx, marketplaceABI, c.marketplace, "getCurrentPrice", common.HexToAddress(token))
	if err != nil {
		return 0, err
	}
	return domain.NonNegative(decimal.NewFromBigInt(v, -domain.Decimals).InexactFloat64()), nil
}

// TokenInfo returns the marketplace's curve state for token.
func (c *Client) TokenInfo(ctx context.Context, token string) (TokenInfo, error) {
	out, err := c.call(ctx, marketplaceABI, c.marketplace, "getTokenInfo", common.HexToAddress(token))
	if err != nil {
		return TokenInfo{}, err
	}
	var info TokenInfo
	if err := marketplaceABI.UnpackIntoInterface(&info, "getTokenInfo", out); err != nil {
		return TokenInfo{}, fmt.Errorf("unpack getTokenInfo: %w", err)
	}
	return info, nil
}

// PurchaseReturn estimates tokens received for ethIn wei.
func (c *Client) PurchaseReturn(ctx context.Context, token string, ethIn *big.Int) (*big.Int, error) {
	return c.callBig(ctx, marketplaceABI, c.marketplace, "calculatePurchaseReturn", common.HexToAddress(token), ethIn)
}

// SaleReturn estimates wei received for tokensIn.
func (c *Client) SaleReturn(ctx context.Context, token string, tokensIn *big.Int) (*big.Int, error) {
	return c.callBig(ctx, marketplaceABI, c.marketplace, "calculateSaleReturn", common.HexToAddress(token), tokensIn)
}

// BalanceOf returns holder's token balance.
func (c *Client) BalanceOf(ctx context.Context, token, holder string) (*big.Int, error) {
	return c.callBig(ctx, tokenABI, common.HexToAddress(token), "balanceOf", common.HexToAddress(holder))
}

// TokenDetails reads name, symbol and totalSupply from the token contract.
// metadataURI is optional: a revert leaves ContentURI empty.
func (c *Client) TokenDetails(ctx context.Context, token string) (TokenDetails, error) {
	addr := common.HexToAddress(token)

	name, err := c.callString(ctx, addr, "name")
	if err != nil {
		return TokenDetails{}, err
	}
	symbol, err := c.callString(ctx, addr, "symbol")
	if err != nil {
		return TokenDetails{}, err
	}
	supply, err := c.callBig(ctx, tokenABI, addr, "totalSupply")
	if err != nil {
		return TokenDetails{}, err
	}
	uri, err := c.callString(ctx, addr, "metadataURI")
	if err != nil {
		if !errors.Is(err, chain.ErrNonRetryable) {
			return TokenDetails{}, err
		}
		uri = ""
	}
	return TokenDetails{Name: name, Symbol: symbol, TotalSupply: supply, ContentURI: uri}, nil
}

// AllTokens returns every token address the factory has deployed.
func (c *Client) AllTokens(ctx context.Context) ([]string, error) {
	out, err := c.call(ctx, factoryABI, c.factory, "getAllTokens")
	if err != nil {
		return nil, err
	}
	values, err := factoryABI.Unpack("getAllTokens", out)
	if err != nil {
		return nil, fmt.Errorf("unpack getAllTokens: %w", err)
	}
	addrs := *abi.ConvertType(values[0], new([]common.Address)).(*[]common.Address)

	result := make([]string, len(addrs))
	for i, a := range addrs {
		result[i] = hexAddress(a)
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]byte, error) {
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.reader.Call(ctx, to, input)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	// An empty result is what a call to a non-contract address returns.
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s on %s: empty result: %w", method, to.Hex(), chain.ErrNonRetryable)
	}
	return out, nil
}

func (c *Client) callBig(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return abi.ConvertType(values[0], new(big.Int)).(*big.Int), nil
}

func (c *Client) callString(ctx context.Context, to common.Address, method string) (string, error) {
	out, err := c.call(ctx, tokenABI, to, method)
	if err != nil {
		return "", err
	}
	values, err := tokenABI.Unpack(method, out)
	if err != nil {
		return "", fmt.Errorf("unpack %s: %w", method, err)
	}
	return *abi.ConvertType(values[0], new(string)).(*string), nil
}

func hexAddress(a common.Address) string {
	return domain.NormalizeAddress(a.Hex())
}

var _ Gateway = (*Client)(nil)
