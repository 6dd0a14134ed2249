// Package crank runs the control loop that polls a market's event queue
// and dispatches workers to drain it, grounded on consume_events_loop /
// consume_events_wrapper / consume_events_once in original_source/lib.rs.
package crank

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/JekaMas/workerpool"

	"github.com/solmarket/crank/pkg/dex/account"
	"github.com/solmarket/crank/pkg/dex/market"
	"github.com/solmarket/crank/pkg/dex/rpcclient"
)

// Config bounds a Loop's polling and dispatch behavior.
type Config struct {
	NumWorkers            int
	EventsPerWorker       int
	NumAccounts           int
	MaxQLength            int
	MaxWaitForEventsDelay time.Duration
}

// PayerLoader loads the signing keypair fresh on every dispatch, so a key
// can be rotated on disk without restarting the crank.
type PayerLoader func() (solana.PrivateKey, error)

// Loop is one market's crank: poll, gate, dispatch, join, repeat.
type Loop struct {
	Config Config
	Keys   market.Keys

	ProgramID  solana.PublicKey
	CoinWallet solana.PublicKey
	PcWallet   solana.PublicKey

	Client rpcclient.Client
	Pool   *workerpool.WorkerPool
	Payer  PayerLoader
	Logger *zap.SugaredLogger

	watermark     Watermark
	lastCrankedAt time.Time
}

// NewLoop constructs a Loop. It rejects a non-positive EventsPerWorker,
// which would otherwise divide-by-zero computing the per-iteration
// worker count.
func NewLoop(cfg Config, keys market.Keys, programID, coinWallet, pcWallet solana.PublicKey, client rpcclient.Client, pool *workerpool.WorkerPool, payer PayerLoader, logger *zap.SugaredLogger) (*Loop, error) {
	if cfg.EventsPerWorker <= 0 {
		return nil, fmt.Errorf("crank: EventsPerWorker must be positive, got %d", cfg.EventsPerWorker)
	}
	return &Loop{
		Config:        cfg,
		Keys:          keys,
		ProgramID:     programID,
		CoinWallet:    coinWallet,
		PcWallet:      pcWallet,
		Client:        client,
		Pool:          pool,
		Payer:         payer,
		Logger:        logger,
		lastCrankedAt: time.Now().Add(-cfg.MaxWaitForEventsDelay),
	}, nil
}

// Gate outcomes RunOnce reports, named for observability in Run's logs
// and in tests.
const (
	GateNone      = ""
	GateStaleSlot = "stale_slot"
	GateEmpty     = "empty"
	GateThrottled = "throttled"
)

// RunOnce executes a single poll-gate-dispatch-join iteration. The
// returned gate is GateNone when a dispatch actually happened.
func (l *Loop) RunOnce(ctx context.Context) (string, error) {
	loopStart := time.Now()

	eventQData, eventQSlot, found, err := l.Client.GetAccountWithCommitment(ctx, l.Keys.EventQ)
	if err != nil {
		return GateNone, fmt.Errorf("fetch event queue: %w", err)
	}
	if !found {
		return GateNone, fmt.Errorf("event queue account %s not found", l.Keys.EventQ)
	}

	if eventQSlot <= l.watermark.Load() {
		l.Logger.Infow("skipping crank, already cranked for slot",
			"event_q_slot", eventQSlot, "max_seen_slot", l.watermark.Load())
		return GateStaleSlot, nil
	}

	reqQData, _, found, err := l.Client.GetAccountWithCommitment(ctx, l.Keys.ReqQ)
	if err != nil {
		return GateNone, fmt.Errorf("fetch request queue: %w", err)
	}
	if !found {
		return GateNone, fmt.Errorf("request queue account %s not found", l.Keys.ReqQ)
	}

	eventWords, err := account.StripPadding(eventQData)
	if err != nil {
		return GateNone, fmt.Errorf("strip event queue padding: %w", err)
	}
	_, eventSeg0, eventSeg1, err := account.ParseEventQueue(eventWords)
	if err != nil {
		return GateNone, fmt.Errorf("parse event queue: %w", err)
	}

	reqWords, err := account.StripPadding(reqQData)
	if err != nil {
		return GateNone, fmt.Errorf("strip request queue padding: %w", err)
	}
	_, reqSeg0, reqSeg1, err := account.ParseEventQueue(reqWords)
	if err != nil {
		return GateNone, fmt.Errorf("parse request queue: %w", err)
	}

	eventQLen := len(eventSeg0) + len(eventSeg1)
	reqQLen := len(reqSeg0) + len(reqSeg1)
	l.Logger.Infow("queue sizes", "request_queue_len", reqQLen, "market", l.Keys.Market,
		"coin_wallet", l.CoinWallet, "pc_wallet", l.PcWallet)

	if eventQLen == 0 {
		return GateEmpty, nil
	}
	if time.Since(l.lastCrankedAt) < l.Config.MaxWaitForEventsDelay && eventQLen < l.Config.MaxQLength {
		l.Logger.Infow("skipping crank, below threshold and recently cranked",
			"seconds_since_last_crank", time.Since(l.lastCrankedAt).Seconds(),
			"event_q_len", eventQLen, "event_q_slot", eventQSlot)
		return GateThrottled, nil
	}

	l.Logger.Infow("total event queue length", "event_q_len", eventQLen,
		"market", l.Keys.Market, "coin_wallet", l.CoinWallet, "pc_wallet", l.PcWallet)

	owners := collectOwners(eventSeg0, eventSeg1, l.Config.NumAccounts)
	l.Logger.Infow("unique order accounts", "count", len(owners),
		"market", l.Keys.Market, "coin_wallet", l.CoinWallet, "pc_wallet", l.PcWallet)

	workerCount := l.Config.NumWorkers
	if byLoad := 2*eventQLen/l.Config.EventsPerWorker + 1; byLoad < workerCount {
		workerCount = byLoad
	}

	var wg sync.WaitGroup
	for threadNum := 0; threadNum < workerCount; threadNum++ {
		threadNum := threadNum
		wg.Add(1)
		l.Pool.Submit(func() {
			defer wg.Done()
			dispatchWorker(ctx, l.Client, l.ProgramID, l.Payer, owners, l.Keys, l.CoinWallet, l.PcWallet,
				threadNum, l.Config.EventsPerWorker, &l.watermark, eventQSlot, l.Logger)
		})
	}
	wg.Wait()

	l.lastCrankedAt = time.Now()
	l.Logger.Infow("total loop time", "millis", time.Since(loopStart).Milliseconds())
	return GateNone, nil
}

// Run calls RunOnce until ctx is done. Per-iteration errors are logged
// and swallowed; only ctx cancellation ends the loop.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		time.Sleep(time.Second)
		if _, err := l.RunOnce(ctx); err != nil {
			l.Logger.Errorw("crank iteration failed", "error", err)
		}
	}
}

// ownerLess orders owner tuples lexicographically so btree.NewG produces a
// deterministic, duplicate-free sequence equivalent to a BTreeSet<[u64;4]>.
func ownerLess(a, b [4]uint64) bool {
	for i := 0; i < 4; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// collectOwners scans both event-queue segments in queue order and keeps
// the first limit distinct owner tuples it meets, returned in ascending
// tuple order.
func collectOwners(seg0, seg1 []account.Event, limit int) []solana.PublicKey {
	if limit <= 0 {
		return nil
	}
	tree := btree.NewG(32, ownerLess)
	emit := func(owner [4]uint64) bool {
		if tree.Has(owner) {
			return true
		}
		tree.ReplaceOrInsert(owner)
		return tree.Len() < limit
	}
	for _, ev := range seg0 {
		if !emit(ev.Owner) {
			break
		}
	}
	for _, ev := range seg1 {
		if !emit(ev.Owner) {
			break
		}
	}

	owners := make([]solana.PublicKey, 0, tree.Len())
	tree.Ascend(func(owner [4]uint64) bool {
		owners = append(owners, pubkeyFromOwner(owner))
		return true
	})
	return owners
}

// pubkeyFromOwner reassembles an Event.Owner word tuple into the public
// key it represents, mirroring the little-endian packing the on-chain
// program used to write it.
func pubkeyFromOwner(owner [4]uint64) solana.PublicKey {
	var b [32]byte
	for i, w := range owner {
		binary.LittleEndian.PutUint64(b[i*8:i*8+8], w)
	}
	return solana.PublicKeyFromBytes(b[:])
}
