package crank

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/JekaMas/workerpool"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solmarket/crank/pkg/dex/account"
	"github.com/solmarket/crank/pkg/dex/market"
	"github.com/solmarket/crank/pkg/dex/rpcclient"
)

const (
	testHeaderWords = 4
	testEventWords  = 9
)

// buildQueueBytes is the wire-level twin of the account package's
// buildQueueWords helper: same layout, wrapped in head/tail padding so it
// round-trips through account.StripPadding the way a fetched account would.
func buildQueueBytes(capacity int, head, count uint64) []byte {
	words := make([]uint64, testHeaderWords+capacity*testEventWords)
	words[1] = head
	words[2] = count
	for i := 0; i < capacity; i++ {
		base := testHeaderWords + i*testEventWords
		words[base+4] = uint64(i + 1) // Owner[0], nonzero so pubkeys differ
	}

	inner := make([]byte, len(words)*8)
	for i, w := range words {
		binary.LittleEndian.PutUint64(inner[i*8:i*8+8], w)
	}
	raw := append([]byte("serum"), inner...)
	raw = append(raw, []byte("padding")...)
	return raw
}

func testLoop(t *testing.T, client *rpcclient.FakeClient, cfg Config) *Loop {
	t.Helper()
	keys := market.Keys{
		Market: solana.NewWallet().PublicKey(),
		ReqQ:   solana.NewWallet().PublicKey(),
		EventQ: solana.NewWallet().PublicKey(),
	}
	logger := zap.NewNop().Sugar()
	payer := func() (solana.PrivateKey, error) { return solana.NewWallet().PrivateKey, nil }
	pool := workerpool.New(2)
	loop, err := NewLoop(cfg, keys, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(),
		client, pool, payer, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.Accounts[keys.ReqQ] = buildQueueBytes(4, 0, 0)
	return loop
}

func baseConfig() Config {
	return Config{NumWorkers: 2, EventsPerWorker: 4, NumAccounts: 32, MaxQLength: 1, MaxWaitForEventsDelay: 0}
}

func TestNewLoopRejectsNonPositiveEventsPerWorker(t *testing.T) {
	client := rpcclient.NewFakeClient()
	cfg := baseConfig()
	cfg.EventsPerWorker = 0
	if _, err := NewLoop(cfg, market.Keys{}, solana.PublicKey{}, solana.PublicKey{}, solana.PublicKey{},
		client, workerpool.New(1), func() (solana.PrivateKey, error) { return solana.PrivateKey{}, nil }, zap.NewNop().Sugar()); err == nil {
		t.Fatal("expected error for EventsPerWorker=0")
	}
}

func TestRunOnceStaleSlotGate(t *testing.T) {
	client := rpcclient.NewFakeClient()
	loop := testLoop(t, client, baseConfig())

	client.Accounts[loop.Keys.EventQ] = buildQueueBytes(8, 0, 3)
	client.Slots[loop.Keys.EventQ] = 5
	loop.watermark.Advance(10) // watermark already ahead of the fetched slot

	gate, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate != GateStaleSlot {
		t.Fatalf("gate = %q, want %q", gate, GateStaleSlot)
	}
}

func TestRunOnceEmptyGate(t *testing.T) {
	client := rpcclient.NewFakeClient()
	loop := testLoop(t, client, baseConfig())

	client.Accounts[loop.Keys.EventQ] = buildQueueBytes(8, 0, 0)
	client.Slots[loop.Keys.EventQ] = 1

	gate, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate != GateEmpty {
		t.Fatalf("gate = %q, want %q", gate, GateEmpty)
	}
}

func TestRunOnceThrottledGate(t *testing.T) {
	client := rpcclient.NewFakeClient()
	cfg := baseConfig()
	cfg.MaxQLength = 100
	cfg.MaxWaitForEventsDelay = time.Hour
	loop := testLoop(t, client, cfg)

	client.Accounts[loop.Keys.EventQ] = buildQueueBytes(8, 0, 3)
	client.Slots[loop.Keys.EventQ] = 1
	loop.lastCrankedAt = time.Now() // cranked just now, well inside MaxWaitForEventsDelay

	gate, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate != GateThrottled {
		t.Fatalf("gate = %q, want %q", gate, GateThrottled)
	}
}

func TestRunOnceDispatchesAndAdvancesWatermark(t *testing.T) {
	client := rpcclient.NewFakeClient()
	loop := testLoop(t, client, baseConfig())

	client.Accounts[loop.Keys.EventQ] = buildQueueBytes(8, 0, 3)
	client.Slots[loop.Keys.EventQ] = 7
	client.Blockhash = solana.Hash{1, 2, 3}

	gate, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate != GateNone {
		t.Fatalf("gate = %q, want dispatch (empty string)", gate)
	}
	if len(client.Sent) == 0 {
		t.Fatal("expected at least one transaction sent")
	}
	if loop.watermark.Load() != 7 {
		t.Fatalf("watermark = %d, want 7", loop.watermark.Load())
	}
}

func TestCollectOwnersDedupesAndCaps(t *testing.T) {
	seg0 := []account.Event{
		{Owner: [4]uint64{1}},
		{Owner: [4]uint64{2}},
		{Owner: [4]uint64{1}}, // duplicate, must not double-count against the cap
	}
	seg1 := []account.Event{
		{Owner: [4]uint64{3}},
		{Owner: [4]uint64{4}},
	}

	owners := collectOwners(seg0, seg1, 3)
	if len(owners) != 3 {
		t.Fatalf("len(owners) = %d, want 3", len(owners))
	}
	seen := make(map[solana.PublicKey]bool)
	for _, o := range owners {
		if seen[o] {
			t.Fatalf("duplicate owner %s in result", o)
		}
		seen[o] = true
	}
}
