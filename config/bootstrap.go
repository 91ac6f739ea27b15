package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"nftlend/core"
	"nftlend/crypto"
)

// Bootstrap lists the assets a fresh deployment permits and any balances or
// collateral tokens minted for local networks.
type Bootstrap struct {
	AssetTypes  []AssetTypeEntry  `yaml:"assetTypes"`
	Collaterals []CollateralEntry `yaml:"collaterals"`
	Currencies  []string          `yaml:"currencies"`
	Balances    []BalanceEntry    `yaml:"balances"`
	Tokens      []TokenEntry      `yaml:"tokens"`
}

type AssetTypeEntry struct {
	Tag     string `yaml:"tag"`
	Wrapper string `yaml:"wrapper"`
}

type CollateralEntry struct {
	Contract string `yaml:"contract"`
	Tag      string `yaml:"tag"`
}

type BalanceEntry struct {
	Currency string `yaml:"currency"`
	Holder   string `yaml:"holder"`
	Amount   string `yaml:"amount"`
}

type TokenEntry struct {
	Contract string `yaml:"contract"`
	ID       string `yaml:"id"`
	Owner    string `yaml:"owner"`
	Standard string `yaml:"standard"`
}

// LoadBootstrap reads a YAML bootstrap file.
func LoadBootstrap(path string) (*Bootstrap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bootstrap: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	var b Bootstrap
	if err := decoder.Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bootstrap: %w", err)
	}
	return &b, nil
}

// Genesis converts the entries into a core.Genesis, rejecting malformed
// addresses and amounts.
func (b *Bootstrap) Genesis() (core.Genesis, error) {
	var g core.Genesis
	tags := make(map[string]struct{}, len(b.AssetTypes))
	for i, at := range b.AssetTypes {
		tag := strings.TrimSpace(at.Tag)
		if tag == "" || strings.TrimSpace(at.Wrapper) == "" {
			return core.Genesis{}, fmt.Errorf("bootstrap: assetTypes[%d] needs tag and wrapper", i)
		}
		tags[tag] = struct{}{}
		g.AssetTypes = append(g.AssetTypes, core.AssetType{Tag: tag, Wrapper: strings.TrimSpace(at.Wrapper)})
	}
	for i, c := range b.Collaterals {
		addr, err := crypto.ParseAddress(c.Contract)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("bootstrap: collaterals[%d].contract: %w", i, err)
		}
		if _, ok := tags[c.Tag]; !ok {
			return core.Genesis{}, fmt.Errorf("bootstrap: collaterals[%d] uses undeclared asset type %q", i, c.Tag)
		}
		g.Collaterals = append(g.Collaterals, core.Collateral{Contract: addr, Tag: c.Tag})
	}
	for i, raw := range b.Currencies {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("bootstrap: currencies[%d]: %w", i, err)
		}
		g.Currencies = append(g.Currencies, addr)
	}
	for i, bal := range b.Balances {
		currency, holder, err := parsePair(bal.Currency, bal.Holder)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("bootstrap: balances[%d]: %w", i, err)
		}
		amount, err := parseAmount(bal.Amount)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("bootstrap: balances[%d].amount: %w", i, err)
		}
		g.Balances = append(g.Balances, core.Balance{Currency: currency, Holder: holder, Amount: amount})
	}
	for i, tok := range b.Tokens {
		contract, owner, err := parsePair(tok.Contract, tok.Owner)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("bootstrap: tokens[%d]: %w", i, err)
		}
		id, err := parseAmount(tok.ID)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("bootstrap: tokens[%d].id: %w", i, err)
		}
		g.Tokens = append(g.Tokens, core.Token{Contract: contract, ID: id, Owner: owner, Standard: strings.TrimSpace(tok.Standard)})
	}
	return g, nil
}

func parsePair(a, b string) (ethcommon.Address, ethcommon.Address, error) {
	first, err := crypto.ParseAddress(a)
	if err != nil {
		return ethcommon.Address{}, ethcommon.Address{}, err
	}
	second, err := crypto.ParseAddress(b)
	if err != nil {
		return ethcommon.Address{}, ethcommon.Address{}, err
	}
	return first, second, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("value required")
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid decimal %q", raw)
	}
	return v, nil
}
