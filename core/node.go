// Package core owns the node lifecycle: the single-instance guard, the
// startup sequence that brings storage, wallet, network and the service layer
// up in dependency order, and the teardown that releases everything in
// reverse. Everything else hangs off the Node built here.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"nyxchain/config"
	"nyxchain/core/stakeset"
	"nyxchain/masternode"
	"nyxchain/observability"
	"nyxchain/p2p"
	"nyxchain/rpc"
	"nyxchain/storage"
	"nyxchain/wallet"
)

// State is the node lifecycle state. Transitions are strictly forward:
// Idle -> Starting -> Running -> ShuttingDown -> Stopped, with Failed
// reachable from Starting.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateShuttingDown
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting down"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrAlreadyStarted means Run was called on a node that already ran.
var ErrAlreadyStarted = errors.New("node already started")

// errStartupInterrupted aborts the startup sequence when an operator shutdown
// arrives between steps. It is a clean exit, not a failure.
var errStartupInterrupted = errors.New("shutdown requested during startup")

const (
	shutdownTaskTimeout = 10 * time.Second
	rpcDrainTimeout     = 5 * time.Second
	walletFlushInterval = 500 * time.Millisecond
	dnsSeedTimeout      = 10 * time.Second
	diskCheckInterval   = 30 * time.Second
)

// Node is the lifecycle controller. It is built idle, run exactly once and
// torn down exactly once regardless of how many shutdown requests arrive.
type Node struct {
	cfg    *config.EffectiveConfig
	logger *slog.Logger

	state atomic.Int32

	quit     chan struct{}
	quitOnce sync.Once

	done         chan struct{}
	shutdownOnce sync.Once

	mu       sync.RWMutex
	guard    *InstanceGuard
	env      *storage.LevelDB
	indexDB  *storage.LevelDB
	index    *BlockIndex
	wallet   *wallet.Wallet
	network  *p2p.Network
	addrBook *p2p.AddressBook
	peerSrv  *p2p.Server
	mn       *masternode.Manager
	pool     *masternode.Pool
	rpcSrv   *rpc.Server

	stakeMu         sync.Mutex
	stakeSeen       *stakeset.KernelSet
	stakeSeenOrphan *stakeset.KernelSet
	kernelSource    KernelSource

	checkDisk    func(dataDir string, additional uint64) error
	diskInterval time.Duration

	tasks    []*ManagedTask
	peerTask *ManagedTask
}

// New builds an idle node from the resolved configuration.
func New(cfg *config.EffectiveConfig, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{
		cfg:             cfg,
		logger:          logger,
		quit:            make(chan struct{}),
		done:            make(chan struct{}),
		stakeSeen:       stakeset.NewKernelSet(),
		stakeSeenOrphan: stakeset.NewKernelSet(),
		checkDisk:       CheckDiskSpace,
		diskInterval:    diskCheckInterval,
	}
}

// State reports the current lifecycle state.
func (n *Node) State() State {
	return State(n.state.Load())
}

func (n *Node) setState(s State) {
	n.state.Store(int32(s))
	observability.Metrics().LifecycleState.Set(float64(s))
}

// RequestShutdown asks the node to stop. Safe to call from any goroutine and
// at any point of the lifecycle, including mid-startup.
func (n *Node) RequestShutdown() {
	n.quitOnce.Do(func() { close(n.quit) })
}

// ShutdownRequested reports whether a shutdown has been requested.
func (n *Node) ShutdownRequested() bool {
	select {
	case <-n.quit:
		return true
	default:
		return false
	}
}

// Run executes the full node lifecycle: startup, steady state until the
// context is cancelled or a shutdown is requested, then teardown. It blocks
// for the node's whole lifetime and returns nil on a clean stop.
func (n *Node) Run(ctx context.Context) error {
	if !n.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return ErrAlreadyStarted
	}
	observability.Metrics().LifecycleState.Set(float64(StateStarting))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	begin := time.Now()
	err := n.startup(runCtx)
	observability.Metrics().StartupSeconds.Set(time.Since(begin).Seconds())

	if err != nil {
		if errors.Is(err, errStartupInterrupted) {
			n.logger.Info("shutdown requested during startup; exiting")
			n.finishShutdown()
			return nil
		}
		n.logger.Error("startup failed", slog.Any("error", err))
		n.shutdownOnce.Do(func() {
			n.teardown()
			n.setState(StateFailed)
			close(n.done)
		})
		return err
	}

	n.setState(StateRunning)
	n.logger.Info("node started",
		slog.Duration("elapsed", time.Since(begin)),
		slog.Bool("testnet", n.cfg.TestNet))

	select {
	case <-ctx.Done():
	case <-n.quit:
	}
	n.finishShutdown()
	return nil
}

// finishShutdown runs the teardown exactly once; concurrent and repeated
// callers block until the first run completes.
func (n *Node) finishShutdown() {
	n.shutdownOnce.Do(func() {
		n.setState(StateShuttingDown)
		n.logger.Info("shutting down")
		n.teardown()
		n.setState(StateStopped)
		n.logger.Info("shutdown complete")
		close(n.done)
	})
	<-n.done
}

// Status implements the RPC control surface.
func (n *Node) Status() rpc.Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	st := rpc.Status{
		State:   n.State().String(),
		TestNet: n.cfg.TestNet,
	}
	if n.index != nil {
		if best := n.index.Best(); best != nil {
			st.Height = best.Height
		}
	}
	if n.peerSrv != nil {
		st.Peers = n.peerSrv.PeerCount()
	}
	if n.mn != nil {
		st.MasterNode = n.mn.Active()
	}
	return st
}

func (n *Node) interrupted() error {
	if n.ShutdownRequested() {
		return errStartupInterrupted
	}
	return nil
}

// startup brings the node up in dependency order. Any error aborts; the
// caller tears down whatever was already acquired.
func (n *Node) startup(ctx context.Context) error {
	cfg := n.cfg

	// Mode conflicts are caught before a single socket is bound or a byte
	// of the store is touched.
	if err := masternode.CheckMode(cfg); err != nil {
		return err
	}

	guard, err := AcquireInstanceGuard(cfg.DataDir)
	if err != nil {
		return err
	}
	n.setField(func() { n.guard = guard })

	env, outcome, err := storage.OpenEnvironment(cfg.DataDir, cfg.DBCacheMB, n.logger)
	if err != nil {
		return err
	}
	n.setField(func() { n.env = env })
	if outcome == storage.RecoveredOK {
		n.logger.Warn("database environment was recovered; verify your balances once synced")
	}

	if !cfg.DisableWallet {
		if cfg.SalvageWallet {
			if err := storage.Salvage(env, n.logger); err != nil {
				return fmt.Errorf("wallet salvage: %w", err)
			}
		}
		result, err := storage.VerifyWallet(env, cfg.DataDir, n.logger)
		if result == storage.VerifyFailed {
			if err != nil {
				return fmt.Errorf("%w: %v", storage.ErrWalletCorrupt, err)
			}
			return fmt.Errorf("%w: key material in %s is unreadable", storage.ErrWalletCorrupt, cfg.WalletFile)
		}
		if err != nil {
			return err
		}
		if result == storage.VerifyRecovered {
			n.logger.Warn("wallet data was recovered; incorrect or missing data may mean your balance is wrong",
				slog.String("wallet", cfg.WalletFile))
		}
	}

	if err := n.interrupted(); err != nil {
		return err
	}

	indexDB, err := storage.OpenChainIndex(cfg.DataDir, cfg.DBCacheMB)
	if err != nil {
		return err
	}
	n.setField(func() { n.indexDB = indexDB })

	loadStart := time.Now()
	index, err := LoadBlockIndex(indexDB)
	if err != nil {
		return err
	}
	n.setField(func() { n.index = index })
	bestHeight := int32(0)
	if best := index.Best(); best != nil {
		bestHeight = best.Height
	}
	n.logger.Info("block index loaded",
		slog.Int("blocks", index.Len()),
		slog.Int("best_height", int(bestHeight)),
		slog.Duration("elapsed", time.Since(loadStart)))

	if err := n.interrupted(); err != nil {
		return err
	}

	if !cfg.DisableWallet {
		if err := n.loadWallet(env, index); err != nil {
			return err
		}
	}

	if err := n.interrupted(); err != nil {
		return err
	}

	if err := n.checkDisk(cfg.DataDir, 0); err != nil {
		n.RequestShutdown()
		return err
	}

	network, err := p2p.Bootstrap(cfg, n.logger)
	if err != nil {
		return err
	}
	n.setField(func() { n.network = network })

	book, err := p2p.OpenAddressBook(filepath.Join(cfg.DataDir, "peers.db"), n.logger)
	if err != nil {
		// The address book is a cache; running without one only costs
		// warm-start peers.
		n.logger.Warn("running without a peer address book", slog.Any("error", err))
	} else {
		n.setField(func() { n.addrBook = book })
		if err := book.Prune(time.Duration(cfg.AddrLifespan) * 24 * time.Hour); err != nil {
			n.logger.Warn("address book prune failed", slog.Any("error", err))
		}
	}

	return n.activateSubsystems(ctx)
}

func (n *Node) loadWallet(env *storage.LevelDB, index *BlockIndex) error {
	cfg := n.cfg
	w, firstRun, err := wallet.Load(env, cfg.WalletFile, cfg.KeyPoolSize, n.logger)
	if err != nil {
		return err
	}
	n.setField(func() { n.wallet = w })

	best := index.Best()
	if firstRun {
		n.logger.Info("created new wallet", slog.String("wallet", cfg.WalletFile))
		if best != nil {
			if err := w.SetBestChain(best.Hash, best.Height); err != nil {
				return err
			}
		}
		return nil
	}

	walletBest, _, haveCheckpoint := w.BestBlock()
	start := index.RescanStart(walletBest, haveCheckpoint, cfg.Rescan)
	if span := index.RescanSpan(start); span > 0 {
		if err := w.Rescan(start.Height, best.Height); err != nil {
			return err
		}
		if err := w.SetBestChain(best.Hash, best.Height); err != nil {
			return err
		}
	}
	return nil
}

// activateSubsystems starts the background service layer: block import, the
// masternode manager and mixing pool, wallet maintenance, staking, the peer
// server and the RPC control endpoint. Activation order is teardown order
// reversed.
func (n *Node) activateSubsystems(ctx context.Context) error {
	cfg := n.cfg

	n.startTask(ctx, "diskmonitor", n.diskMonitorLoop)

	if len(cfg.ImportFiles) > 0 {
		files := append([]string(nil), cfg.ImportFiles...)
		n.startTask(ctx, "import", func(ctx context.Context) {
			n.importBlocks(ctx, files)
		})
	}

	mn, err := masternode.Activate(cfg, n.logger)
	if err != nil {
		return err
	}
	n.setField(func() { n.mn = mn })

	pool := masternode.NewPool(cfg, n.logger)
	n.setField(func() { n.pool = pool })
	n.startTask(ctx, "mixer", pool.Run)

	var seeded []string
	if cfg.DNSSeed && len(cfg.ConnectPeers) == 0 {
		hosts := p2p.MainNetSeedHosts
		if cfg.TestNet {
			hosts = p2p.TestNetSeedHosts
		}
		seedCtx, cancel := context.WithTimeout(ctx, dnsSeedTimeout)
		seeded = p2p.SeedFromDNS(seedCtx, p2p.DefaultSeedResolver(), hosts, cfg.Port, n.logger)
		cancel()
		n.logger.Info("dns seeding complete", slog.Int("addresses", len(seeded)))
	}

	if n.wallet != nil {
		n.wallet.ReacceptTransactions()
		n.startTask(ctx, "walletflush", func(ctx context.Context) {
			n.wallet.FlushLoop(ctx, walletFlushInterval)
		})
	}

	if n.wallet != nil && cfg.Staking && !cfg.LiteMode {
		n.startTask(ctx, "staking", n.stakeLoop)
	} else {
		n.logger.Info("staking disabled")
	}

	peerSrv := p2p.NewServer(n.network, n.addrBook, cfg.MaxConnections,
		cfg.ConnectPeers, cfg.AddNodes, seeded, n.logger)
	n.setField(func() { n.peerSrv = peerSrv })
	// The peer task is held out of the common task list: peers keep running
	// until the final wallet flush has persisted everything they delivered.
	n.peerTask = n.newTask(ctx, "p2p", peerSrv.Run)

	rpcSrv := rpc.NewServer(n, cfg.RPCAuthToken, n.logger)
	n.setField(func() { n.rpcSrv = rpcSrv })
	addr := cfg.RPCAddress
	n.startTask(ctx, "rpc", func(ctx context.Context) {
		// Start blocks until Stop is called during teardown; a bind failure
		// takes the node down instead of leaving it uncontrollable.
		if err := rpcSrv.Start(addr); err != nil {
			n.logger.Error("rpc server failed", slog.String("addr", addr), slog.Any("error", err))
			n.RequestShutdown()
		}
	})
	n.logger.Info("rpc server listening", slog.String("addr", addr))

	return nil
}

// diskMonitorLoop re-checks free space while the node runs. A full disk can
// corrupt the store mid-write, so the node stops before that happens.
func (n *Node) diskMonitorLoop(ctx context.Context) {
	ticker := time.NewTicker(n.diskInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.checkDisk(n.cfg.DataDir, 0); err != nil {
				n.logger.Error("stopping: data directory filesystem is out of space",
					slog.Any("error", err))
				n.RequestShutdown()
				return
			}
		}
	}
}

// teardown releases everything in reverse acquisition order. Every step is
// attempted; failures are logged and never abort the remaining steps.
func (n *Node) teardown() {
	if n.rpcSrv != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), rpcDrainTimeout)
		if err := n.rpcSrv.Stop(drainCtx); err != nil {
			n.logger.Warn("rpc server stop failed", slog.Any("error", err))
		}
		cancel()
	}

	n.stopTasks(shutdownTaskTimeout)

	if n.wallet != nil {
		if n.index != nil {
			if best := n.index.Best(); best != nil {
				if err := n.wallet.SetBestChain(best.Hash, best.Height); err != nil {
					n.logger.Warn("persisting best chain failed", slog.Any("error", err))
				}
			}
		}
		if err := n.wallet.Flush(); err != nil {
			n.logger.Warn("final wallet flush failed", slog.Any("error", err))
		}
	}

	// Peer networking stops only after the wallet state is on disk.
	if n.peerTask != nil {
		n.stopTask(n.peerTask, shutdownTaskTimeout)
		n.peerTask = nil
	}
	if n.network != nil {
		n.network.Close()
	}
	if n.addrBook != nil {
		if err := n.addrBook.Close(); err != nil {
			n.logger.Warn("address book close failed", slog.Any("error", err))
		}
	}
	if n.indexDB != nil {
		if err := n.indexDB.Close(); err != nil {
			n.logger.Warn("block index close failed", slog.Any("error", err))
		}
	}
	if n.env != nil {
		if err := n.env.Close(); err != nil {
			n.logger.Warn("database environment close failed", slog.Any("error", err))
		}
	}
	if n.guard != nil {
		if err := n.guard.Release(); err != nil {
			n.logger.Warn("releasing data directory lock failed", slog.Any("error", err))
		}
	}
}

// setField mutates a Node field under the lock so Status sees consistent
// pointers while startup is still in flight.
func (n *Node) setField(fn func()) {
	n.mu.Lock()
	fn()
	n.mu.Unlock()
}
