package config

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func resolveArgs(t *testing.T, args ...string) *EffectiveConfig {
	t.Helper()
	cfg, err := resolveArgsErr(args...)
	if err != nil {
		t.Fatalf("Resolve(%v): %v", args, err)
	}
	return cfg
}

func resolveArgsErr(args ...string) (*EffectiveConfig, error) {
	opts := NewRawOptions()
	if err := ParseArgs(opts, args); err != nil {
		return nil, err
	}
	return Resolve(opts, nil)
}

func TestResolveDefaults(t *testing.T) {
	cfg := resolveArgs(t)
	if !cfg.Listen || !cfg.Discover || !cfg.DNSSeed {
		t.Fatalf("network defaults wrong: %+v", cfg)
	}
	if cfg.Port != MainNetPort {
		t.Fatalf("port = %d, want %d", cfg.Port, MainNetPort)
	}
	if !strings.HasSuffix(cfg.RPCAddress, ":35075") {
		t.Fatalf("rpc address = %q", cfg.RPCAddress)
	}
	if cfg.MixRounds != DefaultMixRounds {
		t.Fatalf("mix rounds = %d", cfg.MixRounds)
	}
	if cfg.InstantConfirmDepth != DefaultConfirmDepth {
		t.Fatalf("confirm depth = %d", cfg.InstantConfirmDepth)
	}
}

func TestResolveTestNetPorts(t *testing.T) {
	cfg := resolveArgs(t, "-testnet")
	if cfg.Port != TestNetPort {
		t.Fatalf("port = %d, want %d", cfg.Port, TestNetPort)
	}
	if !strings.HasSuffix(cfg.RPCAddress, ":15075") {
		t.Fatalf("rpc address = %q", cfg.RPCAddress)
	}
}

func TestProxyDisablesListenAndDiscover(t *testing.T) {
	cfg := resolveArgs(t, "-proxy=127.0.0.1:9050")
	if cfg.Listen {
		t.Fatal("proxy should imply -listen=0")
	}
	if cfg.Discover {
		t.Fatal("proxy should imply -discover=0")
	}
	if cfg.UPnP {
		t.Fatal("no-listen should imply -upnp=0")
	}
	if cfg.TorProxy != "127.0.0.1:9050" {
		t.Fatalf("tor proxy = %q, should default to the general proxy", cfg.TorProxy)
	}
}

func TestProxyWithExplicitListen(t *testing.T) {
	cfg := resolveArgs(t, "-proxy=127.0.0.1:9050", "-listen=1")
	if !cfg.Listen {
		t.Fatal("explicit -listen=1 was overridden by an interaction rule")
	}
}

func TestConnectDisablesSeedingAndListen(t *testing.T) {
	cfg := resolveArgs(t, "-connect=10.0.0.1:24055")
	if cfg.DNSSeed {
		t.Fatal("connect should imply -dnsseed=0")
	}
	if cfg.Listen {
		t.Fatal("connect should imply -listen=0")
	}
	if len(cfg.ConnectPeers) != 1 {
		t.Fatalf("connect peers = %v", cfg.ConnectPeers)
	}
}

func TestBindImpliesListen(t *testing.T) {
	cfg := resolveArgs(t, "-bind=127.0.0.1", "-connect=10.0.0.1")
	// bind's soft listen=1 is applied first and wins over connect's soft 0.
	if !cfg.Listen {
		t.Fatal("bind should imply -listen=1")
	}
}

func TestExternalIPDisablesDiscover(t *testing.T) {
	cfg := resolveArgs(t, "-externalip=1.2.3.4")
	if cfg.Discover {
		t.Fatal("externalip should imply -discover=0")
	}
}

func TestSalvageImpliesRescan(t *testing.T) {
	cfg := resolveArgs(t, "-salvagewallet")
	if !cfg.Rescan {
		t.Fatal("salvagewallet should imply -rescan")
	}
	if !cfg.SalvageWallet {
		t.Fatal("salvagewallet lost")
	}
}

func TestResolveLeavesOptionsUntouched(t *testing.T) {
	opts := NewRawOptions()
	opts.Set("proxy", "127.0.0.1:9050")

	cfg, err := Resolve(opts, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Listen || cfg.Discover {
		t.Fatalf("proxy interactions not applied: %+v", cfg)
	}
	if opts.Has("listen") || opts.Has("discover") || opts.Has("upnp") {
		t.Fatalf("interaction rules leaked into the caller's options: %v", opts.Names())
	}

	// Resolving the same options again gives the same answer.
	again, err := Resolve(opts, nil)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if again.Listen != cfg.Listen || again.Discover != cfg.Discover {
		t.Fatalf("second Resolve diverged: %+v vs %+v", again, cfg)
	}
}

func TestSocksOptionRejected(t *testing.T) {
	_, err := resolveArgsErr("-socks=4")
	var cfgErr *Error
	if !errors.As(err, &cfgErr) || cfgErr.Option != "socks" {
		t.Fatalf("err = %v, want configuration error for -socks", err)
	}
}

func TestTorOverrides(t *testing.T) {
	cfg := resolveArgs(t, "-proxy=127.0.0.1:9050", "-tor=0")
	if cfg.TorProxy != "" {
		t.Fatalf("tor proxy = %q, -tor=0 should disable it", cfg.TorProxy)
	}
	cfg = resolveArgs(t, "-proxy=127.0.0.1:9050", "-tor=127.0.0.1:9150")
	if cfg.TorProxy != "127.0.0.1:9150" {
		t.Fatalf("tor proxy = %q", cfg.TorProxy)
	}
}

func TestMixingClamps(t *testing.T) {
	cfg := resolveArgs(t, "-darksendrounds=0", "-anonymizeamount=5000000")
	if cfg.MixRounds != MinMixRounds {
		t.Fatalf("rounds = %d, want %d", cfg.MixRounds, MinMixRounds)
	}
	if cfg.AnonymizeAmount != MaxAnonymizeAmount {
		t.Fatalf("anonymize = %d, want %d", cfg.AnonymizeAmount, MaxAnonymizeAmount)
	}
	cfg = resolveArgs(t, "-darksendrounds=99")
	if cfg.MixRounds != MaxMixRounds {
		t.Fatalf("rounds = %d, want %d", cfg.MixRounds, MaxMixRounds)
	}
}

func TestLiquidityProvider(t *testing.T) {
	cfg := resolveArgs(t, "-liquidityprovider=3")
	if !cfg.EnableMixing {
		t.Fatal("liquidity provider should enable mixing")
	}
	if cfg.MixRounds != LiquidityRounds {
		t.Fatalf("rounds = %d, want %d", cfg.MixRounds, LiquidityRounds)
	}
	if cfg.MinBlockSpacing != 45 {
		t.Fatalf("spacing = %d, want 45", cfg.MinBlockSpacing)
	}

	if _, err := resolveArgsErr("-liquidityprovider=101"); err == nil {
		t.Fatal("expected range error")
	}
}

func TestInstantConfirmDepth(t *testing.T) {
	cfg := resolveArgs(t, "-instantxdepth=100")
	if cfg.InstantConfirmDepth != MaxConfirmDepth {
		t.Fatalf("depth = %d, want clamp to %d", cfg.InstantConfirmDepth, MaxConfirmDepth)
	}

	_, err := resolveArgsErr("-instantxdepth=-1")
	var cfgErr *Error
	if !errors.As(err, &cfgErr) || cfgErr.Option != "instantxdepth" {
		t.Fatalf("err = %v, want configuration error for negative depth", err)
	}

	cfg = resolveArgs(t, "-enableinstantx=0", "-instantxdepth=10")
	if cfg.InstantConfirmDepth != 0 {
		t.Fatalf("depth = %d with instant confirmations disabled", cfg.InstantConfirmDepth)
	}
}

func TestPortRangeValidated(t *testing.T) {
	for _, args := range [][]string{
		{"-port=0"},
		{"-port=70000"},
		{"-rpcport=-5"},
		{"-timeout=600000"},
	} {
		if _, err := resolveArgsErr(args...); err == nil {
			t.Errorf("Resolve(%v) accepted out-of-range value", args)
		}
	}
}

func TestWalletFileMustBePlain(t *testing.T) {
	if _, err := resolveArgsErr("-wallet=../elsewhere.dat"); err == nil {
		t.Fatal("expected error for wallet path with separators")
	}
}

func TestMoneyOptions(t *testing.T) {
	cfg := resolveArgs(t, "-paytxfee=0.01", "-reservebalance=1.5")
	if cfg.PayTxFee != Coin/100 {
		t.Fatalf("paytxfee = %d", cfg.PayTxFee)
	}
	if cfg.ReserveBalance != Coin+Coin/2 {
		t.Fatalf("reservebalance = %d", cfg.ReserveBalance)
	}
	if _, err := resolveArgsErr("-paytxfee=abc"); err == nil {
		t.Fatal("expected error for malformed amount")
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"0", 0, true},
		{"1", Coin, true},
		{"0.25", Coin / 4, true},
		{".5", Coin / 2, true},
		{"2.000000001", 2 * Coin, true}, // excess precision truncated
		{"92233720368.54775807", math.MaxInt64, true},
		{"92233720368.54775808", 0, false}, // one base unit past the int64 range
		{"92233720369", 0, false},
		{"9223372036854775807", 0, false},
		{"-1", 0, false},
		{"", 0, false},
		{"x", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseMoney(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseMoney(%q) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
