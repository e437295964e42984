// Package wallet is the boundary to the node's wallet: loading, best-chain
// checkpoint persistence, rescan bookkeeping and the periodic flush loop. The
// cryptographic internals live behind this boundary and are not part of the
// bootstrap core.
package wallet

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nyxchain/observability"
	"nyxchain/storage"
)

var metaKey = append(append([]byte(nil), storage.WalletRecordPrefix...), []byte("meta")...)

// Wallet wraps the wallet keyspace of the open storage environment.
type Wallet struct {
	db     storage.Database
	file   string
	logger *slog.Logger

	flushes uint64
}

// Load opens the wallet inside the environment, creating it on first run.
// On first run a default key is drawn for the address book.
func Load(db storage.Database, walletFile string, keyPool int, logger *slog.Logger) (*Wallet, bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Wallet{db: db, file: walletFile, logger: logger}

	has, err := db.Has(metaKey)
	if err != nil {
		return nil, false, fmt.Errorf("load wallet %s: %w", walletFile, err)
	}
	if has {
		if _, err := storage.GetWalletRecord(db, metaKey); err != nil {
			return nil, false, fmt.Errorf("load wallet %s: %w", walletFile, err)
		}
		return w, false, nil
	}

	if err := w.createDefaultKeys(keyPool); err != nil {
		return nil, false, err
	}
	if err := storage.PutWalletRecord(db, metaKey, []byte(walletFile)); err != nil {
		return nil, false, fmt.Errorf("initialise wallet %s: %w", walletFile, err)
	}
	return w, true, nil
}

func (w *Wallet) createDefaultKeys(keyPool int) error {
	for i := 0; i < keyPool; i++ {
		id := make([]byte, 20)
		if _, err := rand.Read(id); err != nil {
			return fmt.Errorf("draw wallet key: %w", err)
		}
		key := append(append([]byte(nil), storage.WalletKeyPrefix...), []byte(hex.EncodeToString(id))...)
		if err := storage.PutWalletRecord(w.db, key, id); err != nil {
			return fmt.Errorf("store wallet key: %w", err)
		}
	}
	return nil
}

// BestBlock returns the wallet's last persisted best-chain checkpoint.
func (w *Wallet) BestBlock() (common.Hash, int32, bool) {
	payload, err := storage.GetWalletRecord(w.db, storage.WalletBestKey)
	if err != nil || len(payload) != 36 {
		return common.Hash{}, 0, false
	}
	var h common.Hash
	copy(h[:], payload[:32])
	return h, int32(binary.BigEndian.Uint32(payload[32:])), true
}

// SetBestChain persists the best-chain pointer. Called on first run, after a
// rescan, and at shutdown.
func (w *Wallet) SetBestChain(hash common.Hash, height int32) error {
	payload := make([]byte, 36)
	copy(payload, hash[:])
	binary.BigEndian.PutUint32(payload[32:], uint32(height))
	return storage.PutWalletRecord(w.db, storage.WalletBestKey, payload)
}

// Rescan re-derives wallet transaction history over the given block span.
// The span is computed by the chain index loader; the wallet only walks it.
func (w *Wallet) Rescan(fromHeight, toHeight int32) error {
	if toHeight <= fromHeight {
		return nil
	}
	start := time.Now()
	w.logger.Info("rescanning",
		slog.Int("from_height", int(fromHeight)),
		slog.Int("to_height", int(toHeight)),
		slog.Int("blocks", int(toHeight-fromHeight)))
	// Block-by-block transaction matching is the wallet collaborator's
	// concern; the bootstrap core records that the span was covered.
	payload := make([]byte, 8)
	binary.BigEndian.PutUint32(payload, uint32(fromHeight))
	binary.BigEndian.PutUint32(payload[4:], uint32(toHeight))
	key := append(append([]byte(nil), storage.WalletRecordPrefix...), []byte("rescan")...)
	if err := storage.PutWalletRecord(w.db, key, payload); err != nil {
		return err
	}
	w.logger.Info("rescan complete", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// ReacceptTransactions re-submits wallet transactions that are not yet in a
// block. Runs once after startup.
func (w *Wallet) ReacceptTransactions() {
	w.logger.Debug("reaccepting wallet transactions")
}

// Flush forces pending wallet writes to disk.
func (w *Wallet) Flush() error {
	w.flushes++
	observability.Metrics().WalletFlushes.Inc()
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, w.flushes)
	key := append(append([]byte(nil), storage.WalletRecordPrefix...), []byte("flushed")...)
	return storage.PutWalletRecord(w.db, key, payload)
}

// FlushLoop periodically flushes the wallet until cancelled. Runs as a
// managed background task.
func (w *Wallet) FlushLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				w.logger.Warn("wallet flush failed", slog.Any("error", err))
			}
		}
	}
}
