// Package masternode activates the collateral-backed service layer: the
// masternode identity, the signed control-message keys and the coin-mixing
// pool. Activation is fatal when a required signing key is absent or
// malformed; running the services is delegated to the respective managers.
package masternode

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/btcsuite/btcutil"

	"nyxchain/config"
)

// ErrInvalidModeCombination means the node was configured both as a
// masternode and in the reduced-feature lite mode.
var ErrInvalidModeCombination = errors.New("cannot start a masternode in litemode")

// KeyError reports a missing or malformed control key, naming the option.
type KeyError struct {
	Option string
	Reason string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("invalid -%s: %s", e.Option, e.Reason)
}

// CheckMode validates mutual exclusivity of masternode and lite mode. It runs
// before any network socket is bound.
func CheckMode(cfg *config.EffectiveConfig) error {
	if cfg.MasterNode && cfg.LiteMode {
		return ErrInvalidModeCombination
	}
	return nil
}

// Manager owns the activated masternode identity and control keys.
type Manager struct {
	logger *slog.Logger

	active     bool
	addr       string
	identity   []byte // compressed public key of the masternode identity
	sporkKey   *btcutil.WIF
	winnersKey *btcutil.WIF

	ConfirmDepth int
}

// Activate validates and loads the masternode identity and the optional
// control keys from the effective configuration.
func Activate(cfg *config.EffectiveConfig, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := CheckMode(cfg); err != nil {
		return nil, err
	}
	m := &Manager{logger: logger, ConfirmDepth: cfg.InstantConfirmDepth}

	if cfg.PaymentsKey != "" {
		wif, err := btcutil.DecodeWIF(cfg.PaymentsKey)
		if err != nil {
			return nil, &KeyError{Option: "masternodepaymentskey", Reason: "unable to sign masternode payment winner, wrong key?"}
		}
		m.winnersKey = wif
	}
	if cfg.SporkKey != "" {
		wif, err := btcutil.DecodeWIF(cfg.SporkKey)
		if err != nil {
			return nil, &KeyError{Option: "sporkkey", Reason: "unable to sign spork message, wrong key?"}
		}
		m.sporkKey = wif
	}

	if !cfg.MasterNode {
		return m, nil
	}

	logger.Info("masternode mode enabled")
	if cfg.MasterNodeAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MasterNodeAddr); err != nil {
			return nil, &KeyError{Option: "masternodeaddr", Reason: fmt.Sprintf("invalid address %q", cfg.MasterNodeAddr)}
		}
		m.addr = cfg.MasterNodeAddr
	}
	if cfg.MasterNodePrivKey == "" {
		return nil, &KeyError{Option: "masternodeprivkey", Reason: "a masternode requires a private key in the configuration"}
	}
	wif, err := btcutil.DecodeWIF(cfg.MasterNodePrivKey)
	if err != nil {
		return nil, &KeyError{Option: "masternodeprivkey", Reason: "malformed key"}
	}
	m.identity = wif.PrivKey.PubKey().SerializeCompressed()
	m.active = true
	return m, nil
}

// Active reports whether the node runs as a masternode.
func (m *Manager) Active() bool { return m.active }

// Address returns the declared external masternode address, if any.
func (m *Manager) Address() string { return m.addr }

// Identity returns the masternode's compressed public key, nil when inactive.
func (m *Manager) Identity() []byte {
	if !m.active {
		return nil
	}
	out := make([]byte, len(m.identity))
	copy(out, m.identity)
	return out
}

// CanSignSporks reports whether a spork control key was activated.
func (m *Manager) CanSignSporks() bool { return m.sporkKey != nil }

// CanSignWinners reports whether a payments control key was activated.
func (m *Manager) CanSignWinners() bool { return m.winnersKey != nil }
