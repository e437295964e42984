package core

import (
	"context"
	"log/slog"
	"time"

	"nyxchain/core/stakeset"
)

// KernelCandidate is one stake kernel proposed by the consensus layer. Orphan
// candidates come from blocks whose parent is not connected yet; their kernels
// stay pending until the block connects or is discarded.
type KernelCandidate struct {
	Kernel stakeset.Kernel
	Orphan bool
}

// KernelSource feeds stake kernel candidates into the miner loop. Candidates
// returns whatever accumulated since the previous call and must not block.
type KernelSource interface {
	Candidates() []KernelCandidate
}

// SetKernelSource wires the consensus layer's kernel feed. Call before Run.
func (n *Node) SetKernelSource(src KernelSource) {
	n.setField(func() { n.kernelSource = src })
}

// stakeLoop drives the proof-of-stake miner's cadence. Kernel search proper
// belongs to the consensus layer; the loop owns pacing and admission of the
// candidates that layer produces.
func (n *Node) stakeLoop(ctx context.Context) {
	n.logger.Info("stake miner started",
		slog.Int64("reserve_balance", n.cfg.ReserveBalance))
	ticker := time.NewTicker(time.Duration(n.cfg.MinerSleepMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.checkStake()
		}
	}
}

// checkStake drains pending kernel candidates and admits the new ones.
func (n *Node) checkStake() {
	n.mu.RLock()
	src := n.kernelSource
	n.mu.RUnlock()
	if src == nil {
		return
	}
	for _, c := range src.Candidates() {
		if !n.AcceptKernel(c) {
			n.logger.Debug("duplicate stake kernel rejected",
				slog.String("txid", c.Kernel.PrevOut.TxID.Hex()),
				slog.Bool("orphan", c.Orphan))
		}
	}
}

// AcceptKernel admits a kernel candidate unless the kernel is already used by
// the connected chain or pending in an orphan. A kernel must be unique per
// accepted chain; reports whether the candidate was admitted.
func (n *Node) AcceptKernel(c KernelCandidate) bool {
	n.stakeMu.Lock()
	defer n.stakeMu.Unlock()
	if n.stakeSeen.Contains(c.Kernel) || n.stakeSeenOrphan.Contains(c.Kernel) {
		return false
	}
	if c.Orphan {
		n.stakeSeenOrphan.Add(c.Kernel)
	} else {
		n.stakeSeen.Add(c.Kernel)
	}
	return true
}

// ResolveOrphanKernel settles a pending orphan kernel: a connected block moves
// the kernel to the chain set, a discarded block forgets it entirely.
func (n *Node) ResolveOrphanKernel(k stakeset.Kernel, connected bool) {
	n.stakeMu.Lock()
	defer n.stakeMu.Unlock()
	if !n.stakeSeenOrphan.Remove(k) {
		return
	}
	if connected {
		n.stakeSeen.Add(k)
	}
}
