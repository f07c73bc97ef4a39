package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// FactoryABI is the subset of the token factory interface the indexer reads.
const FactoryABI = `[
	{"type":"event","name":"TokenCreated","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"creator","type":"address","indexed":true},
		{"name":"name","type":"string","indexed":false},
		{"name":"symbol","type":"string","indexed":false},
		{"name":"metadataURI","type":"string","indexed":false},
		{"name":"totalSupply","type":"uint256","indexed":false},
		{"name":"reserveRatio","type":"uint32","indexed":false}]},
	{"type":"function","name":"getAllTokens","stateMutability":"view","inputs":[],
		"outputs":[{"name":"","type":"address[]"}]}
]`

// MarketplaceABI is the subset of the bonding-curve marketplace interface.
const MarketplaceABI = `[
	{"type":"event","name":"TokenListed","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"creator","type":"address","indexed":true}]},
	{"type":"event","name":"TokensBought","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"buyer","type":"address","indexed":true},
		{"name":"ethAmount","type":"uint256","indexed":false},
		{"name":"tokenAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokensSold","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"seller","type":"address","indexed":true},
		{"name":"tokenAmount","type":"uint256","indexed":false},
		{"name":"ethAmount","type":"uint256","indexed":false}]},
	{"type":"function","name":"getCurrentPrice","stateMutability":"view",
		"inputs":[{"name":"token","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getTokenInfo","stateMutability":"view",
		"inputs":[{"name":"token","type":"address"}],
		"outputs":[
			{"name":"currentSupply","type":"uint256"},
			{"name":"reserveBalance","type":"uint256"},
			{"name":"reserveRatio","type":"uint32"},
			{"name":"tradingEnabled","type":"bool"}]},
	{"type":"function","name":"calculatePurchaseReturn","stateMutability":"view",
		"inputs":[{"name":"token","type":"address"},{"name":"ethAmount","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"calculateSaleReturn","stateMutability":"view",
		"inputs":[{"name":"token","type":"address"},{"name":"tokenAmount","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]}
]`

// TokenABI is the launchpad token: ERC20 reads plus metadataURI.
const TokenABI = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
		"inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"metadataURI","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// Parsed ABIs. The JSON above is static, so a parse failure is a programming error.
var (
	factoryABI     = mustParse(FactoryABI)
	marketplaceABI = mustParse(MarketplaceABI)
	tokenABI       = mustParse(TokenABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("contracts: parse abi: " + err.Error())
	}
	return parsed
}

// Event topic IDs.
var (
	TopicTokenCreated = factoryABI.Events["TokenCreated"].ID
	TopicTokenListed  = marketplaceABI.Events["TokenListed"].ID
	TopicTokensBought = marketplaceABI.Events["TokensBought"].ID
	TopicTokensSold   = marketplaceABI.Events["TokensSold"].ID
)
