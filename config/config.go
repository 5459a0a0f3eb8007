package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

type Config struct {
	RPCAddress         string   `toml:"RPCAddress"`
	DataDir            string   `toml:"DataDir"`
	Env                string   `toml:"Env"`
	LogPath            string   `toml:"LogPath"`
	AdminJWTSecret     string   `toml:"AdminJWTSecret"`
	EscrowAddress      string   `toml:"EscrowAddress"`
	PlatformToken      string   `toml:"PlatformToken"`
	FeeDestination     string   `toml:"FeeDestination"`
	CoinFeeBps         uint32   `toml:"CoinFeeBps"`
	TokenFeeBps        uint32   `toml:"TokenFeeBps"`
	Owner              string   `toml:"Owner"`
	Admin              string   `toml:"Admin"`
	ApprovedCurrencies []string `toml:"ApprovedCurrencies"`
}

const maxFeeBps = 10_000

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./marketd-data"
	}
	if cfg.ApprovedCurrencies == nil {
		cfg.ApprovedCurrencies = []string{}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CoinFeeBps > maxFeeBps {
		return fmt.Errorf("CoinFeeBps %d exceeds %d", c.CoinFeeBps, maxFeeBps)
	}
	if c.TokenFeeBps > maxFeeBps {
		return fmt.Errorf("TokenFeeBps %d exceeds %d", c.TokenFeeBps, maxFeeBps)
	}
	for name, value := range map[string]string{
		"EscrowAddress":  c.EscrowAddress,
		"FeeDestination": c.FeeDestination,
		"Owner":          c.Owner,
		"Admin":          c.Admin,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := ParseAddress(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if strings.TrimSpace(c.PlatformToken) != "" {
		if _, err := ParseAddress(c.PlatformToken); err != nil {
			return fmt.Errorf("PlatformToken: %w", err)
		}
	}
	for _, currency := range c.ApprovedCurrencies {
		if _, err := ParseAddress(currency); err != nil {
			return fmt.Errorf("ApprovedCurrencies entry %q: %w", currency, err)
		}
	}
	return nil
}

// ParseAddress decodes a 0x-prefixed hex address into its byte form.
func ParseAddress(value string) ([20]byte, error) {
	value = strings.TrimSpace(value)
	if !ethcommon.IsHexAddress(value) {
		return [20]byte{}, fmt.Errorf("invalid address %q", value)
	}
	return ethcommon.HexToAddress(value), nil
}

// Escrow returns the decoded custody account address.
func (c *Config) Escrow() ([20]byte, error) { return ParseAddress(c.EscrowAddress) }

// FeeSink returns the decoded fee destination address.
func (c *Config) FeeSink() ([20]byte, error) { return ParseAddress(c.FeeDestination) }

// OwnerAddress returns the decoded contract-owner address.
func (c *Config) OwnerAddress() ([20]byte, error) { return ParseAddress(c.Owner) }

// AdminAddress returns the decoded protocol-admin address.
func (c *Config) AdminAddress() ([20]byte, error) { return ParseAddress(c.Admin) }

// Platform returns the decoded platform token address and whether one is
// configured.
func (c *Config) Platform() ([20]byte, bool, error) {
	if strings.TrimSpace(c.PlatformToken) == "" {
		return [20]byte{}, false, nil
	}
	addr, err := ParseAddress(c.PlatformToken)
	return addr, err == nil, err
}

// Currencies returns the decoded approved currency addresses.
func (c *Config) Currencies() ([][20]byte, error) {
	out := make([][20]byte, 0, len(c.ApprovedCurrencies))
	for _, raw := range c.ApprovedCurrencies {
		addr, err := ParseAddress(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:         ":8080",
		DataDir:            "./marketd-data",
		Env:                "local",
		EscrowAddress:      "0x0000000000000000000000000000000000000e5c",
		FeeDestination:     "0x0000000000000000000000000000000000000fee",
		Owner:              "0x0000000000000000000000000000000000000001",
		Admin:              "0x0000000000000000000000000000000000000002",
		CoinFeeBps:         250,
		TokenFeeBps:        250,
		ApprovedCurrencies: []string{},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
