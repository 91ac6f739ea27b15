package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core"
	"nftlend/crypto"
	nativecommon "nftlend/native/common"
)

var (
	knownDrivers = map[string]struct{}{"sqlite": {}, "postgres": {}}
	knownLevels  = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}}
)

// Validate checks the configuration after defaults were applied.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("config: ListenAddress must be set")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("config: ChainID must be positive")
	}
	if _, err := crypto.ParseAddress(c.Owner); err != nil {
		return fmt.Errorf("config: Owner: %w", err)
	}
	if c.Treasury != "" {
		if _, err := crypto.ParseAddress(c.Treasury); err != nil {
			return fmt.Errorf("config: Treasury: %w", err)
		}
	}
	if c.Protocol.MaxLoanDurationSecs == 0 {
		return fmt.Errorf("config: protocol.MaxLoanDurationSecs must be positive")
	}
	if c.Protocol.AdminFeeBps > nativecommon.BasisPointsDenominator {
		return fmt.Errorf("config: protocol.AdminFeeBps above %d", nativecommon.BasisPointsDenominator)
	}
	if c.Protocol.FlashFeeBps > nativecommon.BasisPointsDenominator {
		return fmt.Errorf("config: protocol.FlashFeeBps above %d", nativecommon.BasisPointsDenominator)
	}
	if level := strings.ToLower(strings.TrimSpace(c.Log.Level)); level != "" {
		if _, ok := knownLevels[level]; !ok {
			return fmt.Errorf("config: log.Level %q not recognised", c.Log.Level)
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: telemetry.SampleRatio must be within [0,1]")
	}
	if _, ok := knownDrivers[c.Indexer.Driver]; !ok {
		return fmt.Errorf("config: indexer.Driver %q not supported", c.Indexer.Driver)
	}
	if c.Indexer.Enabled && c.Indexer.DSN == "" {
		return fmt.Errorf("config: indexer.DSN must be set for %s", c.Indexer.Driver)
	}
	if c.Gateway.AuthEnabled && c.Gateway.AuthSecretEnv == "" {
		return fmt.Errorf("config: gateway.AuthSecretEnv must name the JWT secret variable")
	}
	if c.Gateway.RequestsPerMinute < 0 || c.Gateway.Burst < 0 {
		return fmt.Errorf("config: gateway rate limits must not be negative")
	}
	return nil
}

// NodeConfig converts the file configuration into protocol parameters.
func (c *Config) NodeConfig() (core.Config, error) {
	owner, err := crypto.ParseAddress(c.Owner)
	if err != nil {
		return core.Config{}, fmt.Errorf("config: Owner: %w", err)
	}
	var treasury ethcommon.Address
	if c.Treasury != "" {
		if treasury, err = crypto.ParseAddress(c.Treasury); err != nil {
			return core.Config{}, fmt.Errorf("config: Treasury: %w", err)
		}
	}
	return core.Config{
		ChainID:         new(big.Int).SetUint64(c.ChainID),
		Owner:           owner,
		Treasury:        treasury,
		MaxLoanDuration: c.Protocol.MaxLoanDurationSecs,
		AdminFeeBps:     c.Protocol.AdminFeeBps,
		FlashFeeBps:     c.Protocol.FlashFeeBps,
	}, nil
}

// Timeouts returns the HTTP server timeouts.
func (g GatewayConfig) Timeouts() (read, write, idle time.Duration) {
	return seconds(g.ReadTimeoutSecs, 15), seconds(g.WriteTimeoutSecs, 15), seconds(g.IdleTimeoutSecs, 60)
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}
