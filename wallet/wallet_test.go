package wallet

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"nyxchain/storage"
)

func TestLoadFirstRunCreatesKeys(t *testing.T) {
	db := storage.NewMemDB()
	_, firstRun, err := Load(db, "wallet.dat", 10, nil)
	require.NoError(t, err)
	require.True(t, firstRun, "fresh database not reported as first run")

	keys := 0
	err = db.Iterate(storage.WalletKeyPrefix, func(key, value []byte) error {
		keys++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 10, keys, "key pool size")

	// A second load of the same database is not a first run.
	_, firstRun, err = Load(db, "wallet.dat", 10, nil)
	require.NoError(t, err)
	require.False(t, firstRun, "existing wallet reported as first run")
}

func TestBestBlockRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	w, _, err := Load(db, "wallet.dat", 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, ok := w.BestBlock(); ok {
		t.Fatal("fresh wallet claims a best block")
	}

	hash := common.HexToHash("0x0badc0de")
	if err := w.SetBestChain(hash, 4242); err != nil {
		t.Fatalf("SetBestChain: %v", err)
	}
	gotHash, gotHeight, ok := w.BestBlock()
	if !ok || gotHash != hash || gotHeight != 4242 {
		t.Fatalf("BestBlock = %v, %d, %v", gotHash, gotHeight, ok)
	}
}

func TestRescanNoOpOnEmptySpan(t *testing.T) {
	db := storage.NewMemDB()
	w, _, err := Load(db, "wallet.dat", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Rescan(10, 10); err != nil {
		t.Fatalf("Rescan(10, 10): %v", err)
	}
	if err := w.Rescan(10, 5); err != nil {
		t.Fatalf("Rescan(10, 5): %v", err)
	}
	if err := w.Rescan(0, 100); err != nil {
		t.Fatalf("Rescan(0, 100): %v", err)
	}
}

func TestFlushPersistsCounter(t *testing.T) {
	db := storage.NewMemDB()
	w, _, err := Load(db, "wallet.dat", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	key := append(append([]byte(nil), storage.WalletRecordPrefix...), []byte("flushed")...)
	if has, _ := db.Has(key); !has {
		t.Fatal("flush record missing")
	}
}
