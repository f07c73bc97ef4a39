package contracts

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad-indexer/internal/chain"
	chainstub "launchpad-indexer/internal/chain/stub"
	"launchpad-indexer/internal/domain"
)

var (
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	marketAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	tokenAddr   = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	userAddr    = common.HexToAddress("0x00000000000000000000000000000000000000B0")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func eventLog(t *testing.T, contract abi.ABI, emitter common.Address, name string, block uint64, idx uint, indexed []common.Address, data ...interface{}) chain.Log {
	t.Helper()
	ev := contract.Events[name]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)

	topics := []common.Hash{ev.ID}
	for _, a := range indexed {
		topics = append(topics, addrTopic(a))
	}
	return chain.Log{
		Address:     emitter,
		Topics:      topics,
		Data:        packed,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block*100 + uint64(idx)))),
		LogIndex:    idx,
	}
}

// callRouter answers eth_call by selector.
type callRouter map[string]func(args []interface{}) ([]interface{}, error)

func (r callRouter) handle(t *testing.T, contract abi.ABI) func(common.Address, []byte) ([]byte, error) {
	return func(_ common.Address, data []byte) ([]byte, error) {
		for name, m := range contract.Methods {
			if !bytes.Equal(m.ID, data[:4]) {
				continue
			}
			fn, ok := r[name]
			if !ok {
				return nil, &chain.RPCError{Code: 3, Message: "execution reverted"}
			}
			args, err := m.Inputs.Unpack(data[4:])
			require.NoError(t, err)
			values, err := fn(args)
			if err != nil {
				return nil, err
			}
			return m.Outputs.Pack(values...)
		}
		return nil, &chain.RPCError{Code: 3, Message: "execution reverted"}
	}
}

func newTestClient(reader chain.Reader) *Client {
	return NewClient(reader, Options{Factory: factoryAddr, Marketplace: marketAddr})
}

func TestClient_TokenCreatedEvents(t *testing.T) {
	reader := chainstub.NewReader()
	reader.AddLog(eventLog(t, factoryABI, factoryAddr, "TokenCreated", 10, 0,
		[]common.Address{tokenAddr, userAddr},
		"Alpha", "ALP", "ipfs://QmHash", ether(1000), uint32(500)))
	// Same topic from another emitter is ignored.
	reader.AddLog(eventLog(t, factoryABI, marketAddr, "TokenCreated", 11, 0,
		[]common.Address{tokenAddr, userAddr},
		"Fake", "FAKE", "", ether(1), uint32(1)))

	events, err := newTestClient(reader).TokenCreatedEvents(context.Background(), 0, 20)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", ev.Token)
	assert.Equal(t, "0x00000000000000000000000000000000000000b0", ev.Creator)
	assert.Equal(t, "Alpha", ev.Name)
	assert.Equal(t, "ALP", ev.Symbol)
	assert.Equal(t, "ipfs://QmHash", ev.ContentURI)
	assert.Equal(t, 0, ether(1000).Cmp(ev.TotalSupply))
	assert.Equal(t, uint32(500), ev.ReserveRatio)
	assert.Equal(t, uint64(10), ev.BlockNumber)
	assert.Equal(t, chainstub.GenesisTime.Add(10*chainstub.BlockInterval), ev.Timestamp)
}

func TestClient_TradeEventsOrdered(t *testing.T) {
	reader := chainstub.NewReader()
	reader.AddLog(eventLog(t, marketplaceABI, marketAddr, "TokensSold", 12, 1,
		[]common.Address{tokenAddr, userAddr}, ether(500), big.NewInt(6e17)))
	reader.AddLog(eventLog(t, marketplaceABI, marketAddr, "TokensBought", 12, 0,
		[]common.Address{tokenAddr, userAddr}, ether(1), ether(1000)))
	reader.AddLog(eventLog(t, marketplaceABI, marketAddr, "TokenListed", 11, 0,
		[]common.Address{tokenAddr, userAddr}))

	events, err := newTestClient(reader).TradeEvents(context.Background(), 0, 20)
	require.NoError(t, err)
	require.Len(t, events, 2)

	bought, ok := events[0].(domain.TokensBought)
	require.True(t, ok, "first event should be TokensBought, got %T", events[0])
	assert.Equal(t, "0x00000000000000000000000000000000000000b0", bought.Buyer)
	assert.Equal(t, 0, ether(1).Cmp(bought.EthAmount))
	assert.Equal(t, 0, ether(1000).Cmp(bought.TokenAmount))

	sold, ok := events[1].(domain.TokensSold)
	require.True(t, ok, "second event should be TokensSold, got %T", events[1])
	assert.Equal(t, 0, ether(500).Cmp(sold.TokenAmount))
	assert.Equal(t, 0, big.NewInt(6e17).Cmp(sold.EthAmount))
	assert.Equal(t, uint(1), sold.LogIndex)
}

func TestClient_TokenListedEvents(t *testing.T) {
	reader := chainstub.NewReader()
	reader.AddLog(eventLog(t, marketplaceABI, marketAddr, "TokenListed", 7, 3,
		[]common.Address{tokenAddr, userAddr}))

	events, err := newTestClient(reader).TokenListedEvents(context.Background(), 7, 7)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", events[0].Token)
	assert.Equal(t, uint(3), events[0].LogIndex)
}

func TestClient_MalformedLogSkipped(t *testing.T) {
	reader := chainstub.NewReader()
	good := eventLog(t, marketplaceABI, marketAddr, "TokensBought", 5, 0,
		[]common.Address{tokenAddr, userAddr}, ether(1), ether(10))
	bad := good
	bad.Topics = good.Topics[:2]
	bad.LogIndex = 1
	reader.AddLog(bad)
	reader.AddLog(good)

	events, err := newTestClient(reader).TradeEvents(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestClient_SplitsRangeTooLarge(t *testing.T) {
	reader := chainstub.NewReader()
	reader.MaxRange = 10
	for _, b := range []uint64{1, 15, 33} {
		reader.AddLog(eventLog(t, marketplaceABI, marketAddr, "TokenListed", b, 0,
			[]common.Address{tokenAddr, userAddr}))
	}

	events, err := newTestClient(reader).TokenListedEvents(context.Background(), 0, 39)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(1), events[0].BlockNumber)
	assert.Equal(t, uint64(15), events[1].BlockNumber)
	assert.Equal(t, uint64(33), events[2].BlockNumber)
	assert.Greater(t, len(reader.LogQueries), 1)
}

func TestClient_LogsErrorPropagates(t *testing.T) {
	reader := chainstub.NewReader()
	reader.LogsErr = errors.New("upstream down")

	_, err := newTestClient(reader).TradeEvents(context.Background(), 0, 10)
	assert.Error(t, err)
}

func TestClient_ViewCalls(t *testing.T) {
	reader := chainstub.NewReader()
	market := callRouter{
		"getCurrentPrice": func([]interface{}) ([]interface{}, error) {
			return []interface{}{big.NewInt(2e15)}, nil
		},
		"getTokenInfo": func([]interface{}) ([]interface{}, error) {
			return []interface{}{ether(800), ether(3), uint32(500), true}, nil
		},
		"calculatePurchaseReturn": func(args []interface{}) ([]interface{}, error) {
			return []interface{}{new(big.Int).Mul(args[1].(*big.Int), big.NewInt(500))}, nil
		},
		"calculateSaleReturn": func(args []interface{}) ([]interface{}, error) {
			return []interface{}{new(big.Int).Div(args[1].(*big.Int), big.NewInt(500))}, nil
		},
	}.handle(t, marketplaceABI)
	token := callRouter{
		"name":        func([]interface{}) ([]interface{}, error) { return []interface{}{"Alpha"}, nil },
		"symbol":      func([]interface{}) ([]interface{}, error) { return []interface{}{"ALP"}, nil },
		"totalSupply": func([]interface{}) ([]interface{}, error) { return []interface{}{ether(1000)}, nil },
		"balanceOf": func(args []interface{}) ([]interface{}, error) {
			if args[0].(common.Address) == userAddr {
				return []interface{}{ether(42)}, nil
			}
			return []interface{}{big.NewInt(0)}, nil
		},
	}.handle(t, tokenABI)
	reader.CallFn = func(to common.Address, data []byte) ([]byte, error) {
		if to == marketAddr {
			return market(to, data)
		}
		return token(to, data)
	}

	c := newTestClient(reader)
	ctx := context.Background()
	addr := tokenAddr.Hex()

	price, err := c.CurrentPrice(ctx, addr)
	require.NoError(t, err)
	assert.InDelta(t, 0.002, price, 1e-12)

	info, err := c.TokenInfo(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, 0, ether(800).Cmp(info.CurrentSupply))
	assert.Equal(t, 0, ether(3).Cmp(info.ReserveBalance))
	assert.Equal(t, uint32(500), info.ReserveRatio)
	assert.True(t, info.TradingEnabled)

	out, err := c.PurchaseReturn(ctx, addr, big.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), out.Int64())

	out, err = c.SaleReturn(ctx, addr, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Int64())

	bal, err := c.BalanceOf(ctx, addr, userAddr.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0, ether(42).Cmp(bal))

	// metadataURI reverts: details still succeed with an empty URI.
	details, err := c.TokenDetails(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", details.Name)
	assert.Equal(t, "ALP", details.Symbol)
	assert.Equal(t, 0, ether(1000).Cmp(details.TotalSupply))
	assert.Empty(t, details.ContentURI)
}

func TestClient_AllTokens(t *testing.T) {
	reader := chainstub.NewReader()
	reader.CallFn = callRouter{
		"getAllTokens": func([]interface{}) ([]interface{}, error) {
			return []interface{}{[]common.Address{tokenAddr, userAddr}}, nil
		},
	}.handle(t, factoryABI)

	tokens, err := newTestClient(reader).AllTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0x00000000000000000000000000000000000000aa",
		"0x00000000000000000000000000000000000000b0",
	}, tokens)
}

func TestClient_EmptyCallResult(t *testing.T) {
	reader := chainstub.NewReader()

	_, err := newTestClient(reader).CurrentPrice(context.Background(), tokenAddr.Hex())
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrNonRetryable)
}
