package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nyxchain/core/stakeset"
)

// queuedKernels is a KernelSource fed by the test; Candidates drains it.
type queuedKernels struct {
	mu    sync.Mutex
	queue []KernelCandidate
}

func (q *queuedKernels) push(cs ...KernelCandidate) {
	q.mu.Lock()
	q.queue = append(q.queue, cs...)
	q.mu.Unlock()
}

func (q *queuedKernels) Candidates() []KernelCandidate {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.queue
	q.queue = nil
	return out
}

func kernelAt(tag byte, index, stamp uint32) stakeset.Kernel {
	return stakeset.Kernel{
		PrevOut: stakeset.OutPoint{TxID: common.Hash{tag}, Index: index},
		Time:    stamp,
	}
}

func TestAcceptKernelRejectsDuplicates(t *testing.T) {
	node := New(testConfig(t), nil)
	k := kernelAt(1, 0, 1000)

	if !node.AcceptKernel(KernelCandidate{Kernel: k}) {
		t.Fatal("fresh kernel rejected")
	}
	if node.AcceptKernel(KernelCandidate{Kernel: k}) {
		t.Fatal("kernel accepted twice for the connected chain")
	}
	if node.AcceptKernel(KernelCandidate{Kernel: k, Orphan: true}) {
		t.Fatal("chain kernel reused by an orphan candidate")
	}
	if node.stakeSeen.Len() != 1 || node.stakeSeenOrphan.Len() != 0 {
		t.Fatalf("sets = %d/%d, want 1/0", node.stakeSeen.Len(), node.stakeSeenOrphan.Len())
	}
}

func TestOrphanKernelResolution(t *testing.T) {
	node := New(testConfig(t), nil)

	connected := kernelAt(2, 1, 2000)
	if !node.AcceptKernel(KernelCandidate{Kernel: connected, Orphan: true}) {
		t.Fatal("orphan kernel rejected")
	}
	// A pending orphan kernel already blocks a main-chain candidate.
	if node.AcceptKernel(KernelCandidate{Kernel: connected}) {
		t.Fatal("pending orphan kernel reused on the chain")
	}
	node.ResolveOrphanKernel(connected, true)
	if node.AcceptKernel(KernelCandidate{Kernel: connected}) {
		t.Fatal("connected kernel accepted again")
	}
	if node.stakeSeenOrphan.Len() != 0 {
		t.Fatalf("orphan set still holds %d kernels", node.stakeSeenOrphan.Len())
	}

	discarded := kernelAt(3, 0, 3000)
	node.AcceptKernel(KernelCandidate{Kernel: discarded, Orphan: true})
	node.ResolveOrphanKernel(discarded, false)
	if !node.AcceptKernel(KernelCandidate{Kernel: discarded}) {
		t.Fatal("discarded orphan kernel still blocks the chain")
	}
}

func TestStakeLoopDrainsKernelSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Staking = true

	src := &queuedKernels{}
	src.push(
		KernelCandidate{Kernel: kernelAt(4, 0, 4000)},
		KernelCandidate{Kernel: kernelAt(4, 0, 4000)}, // duplicate
		KernelCandidate{Kernel: kernelAt(5, 0, 5000), Orphan: true},
	)

	node := New(cfg, nil)
	node.SetKernelSource(src)
	errCh := make(chan error, 1)
	go func() { errCh <- node.Run(context.Background()) }()

	deadline := time.Now().Add(15 * time.Second)
	for {
		select {
		case err := <-errCh:
			t.Fatalf("Run returned early: %v", err)
		default:
		}
		node.stakeMu.Lock()
		chain, orphan := node.stakeSeen.Len(), node.stakeSeenOrphan.Len()
		node.stakeMu.Unlock()
		if chain == 1 && orphan == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sets = %d/%d, want 1/1", chain, orphan)
		}
		time.Sleep(5 * time.Millisecond)
	}

	node.RequestShutdown()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
