package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lukechampine.com/blake3"
)

// Wallet records live in their own keyspace inside the environment. Key-pair
// records are the part salvage must preserve; everything else can be rebuilt
// by a rescan.
var (
	WalletKeyPrefix    = []byte("wallet/k/")
	WalletRecordPrefix = []byte("wallet/r/")
	WalletBestKey      = []byte("wallet/best")

	walletPrefix = []byte("wallet/")
)

const sealSize = 32

// SealRecord prepends a checksum to payload so corruption is detectable on
// the way back out.
func SealRecord(payload []byte) []byte {
	sum := blake3.Sum256(payload)
	out := make([]byte, 0, sealSize+len(payload))
	out = append(out, sum[:]...)
	return append(out, payload...)
}

// OpenRecord validates and strips the checksum from a sealed record.
func OpenRecord(value []byte) ([]byte, error) {
	if len(value) < sealSize {
		return nil, fmt.Errorf("record truncated: %d bytes", len(value))
	}
	payload := value[sealSize:]
	sum := blake3.Sum256(payload)
	if !bytes.Equal(sum[:], value[:sealSize]) {
		return nil, fmt.Errorf("record checksum mismatch")
	}
	return payload, nil
}

// PutWalletRecord stores a sealed wallet record.
func PutWalletRecord(db Database, key, payload []byte) error {
	return db.Put(key, SealRecord(payload))
}

// GetWalletRecord retrieves and validates a wallet record.
func GetWalletRecord(db Database, key []byte) ([]byte, error) {
	value, err := db.Get(key)
	if err != nil {
		return nil, err
	}
	return OpenRecord(value)
}

// VerifyResult is the outcome of the wallet integrity check.
type VerifyResult int

const (
	// VerifyOK means every record was intact.
	VerifyOK VerifyResult = iota
	// VerifyRecovered means damaged records were dropped after the wallet
	// was backed up; startup proceeds with an operator-visible warning.
	VerifyRecovered
	// VerifyFailed means key material is unreadable; the wallet cannot be
	// used and startup must abort.
	VerifyFailed
)

// VerifyWallet checks every wallet record in the environment. Damaged
// key-pair records are unrecoverable (VerifyFailed); damaged auxiliary
// records are dropped after the pre-recovery wallet is written to a
// timestamped .bak file in the data directory (VerifyRecovered).
func VerifyWallet(db Database, dataDir string, logger *slog.Logger) (VerifyResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var corrupt [][]byte
	keysDamaged := false
	err := db.Iterate(walletPrefix, func(key, value []byte) error {
		if _, err := OpenRecord(value); err != nil {
			if bytes.HasPrefix(key, WalletKeyPrefix) {
				keysDamaged = true
			}
			corrupt = append(corrupt, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return VerifyFailed, err
	}
	if keysDamaged {
		return VerifyFailed, nil
	}
	if len(corrupt) == 0 {
		return VerifyOK, nil
	}

	backup := filepath.Join(dataDir, fmt.Sprintf("wallet.%d.bak", time.Now().Unix()))
	if err := dumpWallet(db, backup); err != nil {
		logger.Warn("could not write pre-recovery wallet backup", slog.String("path", backup), slog.Any("error", err))
	} else {
		logger.Warn("wallet data salvaged; pre-recovery wallet backed up",
			slog.String("backup", backup),
			slog.Int("dropped_records", len(corrupt)))
	}
	for _, key := range corrupt {
		if err := db.Delete(key); err != nil {
			return VerifyFailed, err
		}
	}
	return VerifyRecovered, nil
}

// Salvage performs key-pair-only recovery: intact key records survive, every
// other wallet record is dropped so a rescan can rebuild transaction history.
func Salvage(db Database, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var drop [][]byte
	kept := 0
	err := db.Iterate(walletPrefix, func(key, value []byte) error {
		if bytes.HasPrefix(key, WalletKeyPrefix) {
			if _, err := OpenRecord(value); err == nil {
				kept++
				return nil
			}
		}
		drop = append(drop, append([]byte(nil), key...))
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range drop {
		if err := db.Delete(key); err != nil {
			return err
		}
	}
	logger.Warn("wallet salvage complete", slog.Int("keypairs_kept", kept), slog.Int("records_dropped", len(drop)))
	return nil
}

// dumpWallet serialises every wallet record into a flat backup file:
// repeated (key length, key, value length, value) frames.
func dumpWallet(db Database, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	var lenBuf [4]byte
	return db.Iterate(walletPrefix, func(key, value []byte) error {
		for _, part := range [][]byte{key, value} {
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(part)))
			if _, err := f.Write(lenBuf[:]); err != nil {
				return err
			}
			if _, err := f.Write(part); err != nil {
				return err
			}
		}
		return nil
	})
}
