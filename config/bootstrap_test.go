package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleBootstrap = `assetTypes:
  - tag: ERC721
    wrapper: erc721
  - tag: PUNK
    wrapper: punks
collaterals:
  - contract: "0x0000000000000000000000000000000000a70001"
    tag: ERC721
currencies:
  - "0x00000000000000000000000000000000000c0001"
balances:
  - currency: "0x00000000000000000000000000000000000c0001"
    holder: "0x00000000000000000000000000000000000000aa"
    amount: "1000000000000000000000"
tokens:
  - contract: "0x0000000000000000000000000000000000a70001"
    id: "7"
    owner: "0x00000000000000000000000000000000000000aa"
    standard: erc721
`

func writeBootstrap(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bootstrap.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write bootstrap: %v", err)
	}
	return path
}

func TestBootstrapGenesis(t *testing.T) {
	b, err := LoadBootstrap(writeBootstrap(t, sampleBootstrap))
	if err != nil {
		t.Fatalf("load bootstrap: %v", err)
	}
	g, err := b.Genesis()
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if len(g.AssetTypes) != 2 || len(g.Collaterals) != 1 || len(g.Currencies) != 1 {
		t.Fatalf("unexpected genesis sizes: %+v", g)
	}
	if g.Balances[0].Amount.String() != "1000000000000000000000" {
		t.Fatalf("expected large amount preserved, got %s", g.Balances[0].Amount)
	}
	if g.Tokens[0].ID.Int64() != 7 || g.Tokens[0].Standard != "erc721" {
		t.Fatalf("unexpected token: %+v", g.Tokens[0])
	}
}

func TestBootstrapRejectsBadEntries(t *testing.T) {
	cases := map[string]struct {
		yaml string
		want string
	}{
		"undeclared tag": {
			yaml: "collaterals:\n  - contract: \"0x0000000000000000000000000000000000a70001\"\n    tag: MISSING\n",
			want: "undeclared asset type",
		},
		"bad currency": {
			yaml: "currencies: [\"0x123\"]\n",
			want: "currencies[0]",
		},
		"negative amount": {
			yaml: "balances:\n  - currency: \"0x00000000000000000000000000000000000c0001\"\n    holder: \"0x00000000000000000000000000000000000000aa\"\n    amount: \"-5\"\n",
			want: "balances[0].amount",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			b, err := LoadBootstrap(writeBootstrap(t, tc.yaml))
			if err != nil {
				t.Fatalf("load bootstrap: %v", err)
			}
			if _, err := b.Genesis(); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadBootstrapRejectsUnknownFields(t *testing.T) {
	if _, err := LoadBootstrap(writeBootstrap(t, "validators: []\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
}
