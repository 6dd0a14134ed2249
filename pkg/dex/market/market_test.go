package market

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/solmarket/crank/pkg/dex/rpcclient"
)

func putPubkey(words []uint64, offset int, key solana.PublicKey) {
	b := key.Bytes()
	for i := 0; i < 4; i++ {
		words[offset+i] = binary.LittleEndian.Uint64(b[i*8 : i*8+8])
	}
}

func buildMarketAccountBytes(t *testing.T, flags AccountFlags, own, reqQ, eventQ, bids, asks, coinVault, pcVault solana.PublicKey, nonce uint64) []byte {
	t.Helper()
	words := make([]uint64, marketStateWords)
	words[0] = uint64(flags)
	putPubkey(words, 1, own)
	words[5] = nonce
	putPubkey(words, 27, reqQ)
	putPubkey(words, 31, eventQ)
	putPubkey(words, 35, bids)
	putPubkey(words, 39, asks)
	putPubkey(words, 14, coinVault)
	putPubkey(words, 20, pcVault)

	inner := make([]byte, len(words)*8)
	for i, w := range words {
		binary.LittleEndian.PutUint64(inner[i*8:i*8+8], w)
	}

	raw := append([]byte("serum"), inner...)
	raw = append(raw, []byte("padding")...)
	return raw
}

// findValidNonce mirrors how the on-chain program picked VaultSignerNonce
// in the first place: the first nonce whose (market, nonce) seed pair
// derives an address off the ed25519 curve.
func findValidNonce(t *testing.T, market, programID solana.PublicKey) uint64 {
	t.Helper()
	for nonce := uint64(0); nonce < 64; nonce++ {
		seed := make([]byte, 8)
		binary.LittleEndian.PutUint64(seed, nonce)
		if _, err := solana.CreateProgramAddress([][]byte{market.Bytes(), seed}, programID); err == nil {
			return nonce
		}
	}
	t.Fatalf("no valid vault signer nonce found in range")
	return 0
}

func TestResolveBaseLayout(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	market := solana.NewWallet().PublicKey()
	reqQ := solana.NewWallet().PublicKey()
	eventQ := solana.NewWallet().PublicKey()
	bids := solana.NewWallet().PublicKey()
	asks := solana.NewWallet().PublicKey()
	coinVault := solana.NewWallet().PublicKey()
	pcVault := solana.NewWallet().PublicKey()
	nonce := findValidNonce(t, market, programID)

	raw := buildMarketAccountBytes(t, Initialized|FlagMarket, market, reqQ, eventQ, bids, asks, coinVault, pcVault, nonce)

	client := rpcclient.NewFakeClient()
	client.Accounts[market] = raw

	keys, err := Resolve(context.Background(), client, programID, market)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !keys.ReqQ.Equals(reqQ) {
		t.Errorf("ReqQ = %s, want %s", keys.ReqQ, reqQ)
	}
	if !keys.EventQ.Equals(eventQ) {
		t.Errorf("EventQ = %s, want %s", keys.EventQ, eventQ)
	}
	if !keys.Bids.Equals(bids) || !keys.Asks.Equals(asks) {
		t.Errorf("Bids/Asks mismatch")
	}
	if !keys.CoinVault.Equals(coinVault) || !keys.PcVault.Equals(pcVault) {
		t.Errorf("vault mismatch")
	}
}

func TestResolveInvalidFlags(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	market := solana.NewWallet().PublicKey()
	zero := solana.PublicKey{}
	raw := buildMarketAccountBytes(t, FlagMarket, market, zero, zero, zero, zero, zero, zero, 1) // missing Initialized

	client := rpcclient.NewFakeClient()
	client.Accounts[market] = raw

	if _, err := Resolve(context.Background(), client, programID, market); err != ErrInvalidFlags {
		t.Fatalf("expected ErrInvalidFlags, got %v", err)
	}
}

func TestResolveAddressMismatch(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	market := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	zero := solana.PublicKey{}
	nonce := findValidNonce(t, market, programID)
	raw := buildMarketAccountBytes(t, Initialized|FlagMarket, other, zero, zero, zero, zero, zero, zero, nonce)

	client := rpcclient.NewFakeClient()
	client.Accounts[market] = raw

	if _, err := Resolve(context.Background(), client, programID, market); err != ErrAddressMismatch {
		t.Fatalf("expected ErrAddressMismatch, got %v", err)
	}
}

func TestAccountFlagsValid(t *testing.T) {
	if !(Initialized | FlagMarket | Permissioned).Valid() {
		t.Errorf("expected Initialized|FlagMarket|Permissioned to be valid")
	}
	if (FlagMarket).Valid() {
		t.Errorf("expected FlagMarket alone to be invalid")
	}
}
