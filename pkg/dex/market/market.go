// Package market resolves a market account into the bundle of per-market
// addresses the crank needs: the request/event queues, the order book
// sides, the token vaults, and the deterministically-derived vault signer.
package market

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/solmarket/crank/pkg/dex/account"
	"github.com/solmarket/crank/pkg/dex/rpcclient"
)

// AccountFlags is the bitfield the exchange program stores at the front of
// every account it owns, identifying the account's role and state.
type AccountFlags uint64

const (
	Initialized            AccountFlags = 1 << 0
	FlagMarket             AccountFlags = 1 << 1
	OpenOrders             AccountFlags = 1 << 2
	RequestQueue           AccountFlags = 1 << 3
	EventQueue             AccountFlags = 1 << 4
	Bids                   AccountFlags = 1 << 5
	Asks                   AccountFlags = 1 << 6
	Disabled               AccountFlags = 1 << 7
	Closed                 AccountFlags = 1 << 8
	Permissioned           AccountFlags = 1 << 9
	CrankAuthorityRequired AccountFlags = 1 << 10
)

// Valid reports whether the flags describe an initialized market account,
// regardless of any other bits (e.g. Permissioned) that may also be set.
func (f AccountFlags) Valid() bool {
	want := Initialized | FlagMarket
	return f&want == want
}

const marketStateWords = 47

// State is the base market-state layout.
type State struct {
	AccountFlags           AccountFlags
	OwnAddress             [4]uint64
	VaultSignerNonce       uint64
	CoinMint               [4]uint64
	PcMint                 [4]uint64
	CoinVault              [4]uint64
	CoinDepositsTotal      uint64
	CoinFeesAccrued        uint64
	PcVault                [4]uint64
	PcDepositsTotal        uint64
	PcFeesAccrued          uint64
	PcDustThreshold        uint64
	ReqQ                   [4]uint64
	EventQ                 [4]uint64
	Bids                   [4]uint64
	Asks                   [4]uint64
	CoinLotSize            uint64
	PcLotSize              uint64
	FeeRateBps             uint64
	ReferrerRebatesAccrued uint64
}

// StateV2 wraps State for the Permissioned account-flag variant.
type StateV2 struct {
	Inner State
	Prune uint64
}

// Keys is the immutable bundle of addresses the crank needs for one
// market, produced once at startup.
type Keys struct {
	Market      solana.PublicKey
	ReqQ        solana.PublicKey
	EventQ      solana.PublicKey
	Bids        solana.PublicKey
	Asks        solana.PublicKey
	CoinVault   solana.PublicKey
	PcVault     solana.PublicKey
	VaultSigner solana.PublicKey
}

// ErrLayoutMismatch / ErrInvalidFlags / ErrAddressMismatch are the
// resolve-time failure modes from spec.md §4.2 / §7 (all fatal at startup).
var (
	ErrLayoutMismatch  = fmt.Errorf("market account: byte layout rejected")
	ErrInvalidFlags    = fmt.Errorf("market account: invalid account flags")
	ErrAddressMismatch = fmt.Errorf("market account: own_address does not match requested market")
)

func decodeState(w account.Words) (State, error) {
	if len(w) < marketStateWords {
		return State{}, ErrLayoutMismatch
	}
	four := func(i int) [4]uint64 { return [4]uint64{w[i], w[i+1], w[i+2], w[i+3]} }
	return State{
		AccountFlags:           AccountFlags(w[0]),
		OwnAddress:             four(1),
		VaultSignerNonce:       w[5],
		CoinMint:               four(6),
		PcMint:                 four(10),
		CoinVault:              four(14),
		CoinDepositsTotal:      w[18],
		CoinFeesAccrued:        w[19],
		PcVault:                four(20),
		PcDepositsTotal:        w[24],
		PcFeesAccrued:          w[25],
		PcDustThreshold:        w[26],
		ReqQ:                   four(27),
		EventQ:                 four(31),
		Bids:                   four(35),
		Asks:                   four(39),
		CoinLotSize:            w[43],
		PcLotSize:              w[44],
		FeeRateBps:             w[45],
		ReferrerRebatesAccrued: w[46],
	}, nil
}

func decodeStateV2(w account.Words) (StateV2, error) {
	if len(w) < marketStateWords+1 {
		return StateV2{}, ErrLayoutMismatch
	}
	inner, err := decodeState(w[:marketStateWords])
	if err != nil {
		return StateV2{}, err
	}
	return StateV2{Inner: inner, Prune: w[marketStateWords]}, nil
}

func pubkeyFromWords(words [4]uint64) solana.PublicKey {
	var b [32]byte
	for i, w := range words {
		binary.LittleEndian.PutUint64(b[i*8:i*8+8], w)
	}
	return solana.PublicKeyFromBytes(b[:])
}

// Resolve fetches the market account, decodes it (selecting the
// Permissioned or base layout by the account-flag bit), validates it, and
// derives the full set of addresses the crank needs.
func Resolve(ctx context.Context, client rpcclient.Client, programID, marketKey solana.PublicKey) (Keys, error) {
	raw, err := client.GetAccountData(ctx, marketKey)
	if err != nil {
		return Keys{}, fmt.Errorf("fetch market account: %w", err)
	}
	words, err := account.StripPadding(raw)
	if err != nil {
		return Keys{}, fmt.Errorf("strip market account padding: %w", err)
	}
	if len(words) == 0 {
		return Keys{}, ErrLayoutMismatch
	}

	flags := AccountFlags(words[0])
	var state State
	if flags&Permissioned != 0 {
		v2, err := decodeStateV2(words)
		if err != nil {
			return Keys{}, err
		}
		state = v2.Inner
	} else {
		state, err = decodeState(words)
		if err != nil {
			return Keys{}, err
		}
	}

	if !state.AccountFlags.Valid() {
		return Keys{}, ErrInvalidFlags
	}

	nonceSeed := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceSeed, state.VaultSignerNonce)
	vaultSigner, err := solana.CreateProgramAddress(
		[][]byte{marketKey.Bytes(), nonceSeed},
		programID,
	)
	if err != nil {
		return Keys{}, fmt.Errorf("derive vault signer: %w", err)
	}

	ownAddress := pubkeyFromWords(state.OwnAddress)
	if !ownAddress.Equals(marketKey) {
		return Keys{}, ErrAddressMismatch
	}

	return Keys{
		Market:      marketKey,
		ReqQ:        pubkeyFromWords(state.ReqQ),
		EventQ:      pubkeyFromWords(state.EventQ),
		Bids:        pubkeyFromWords(state.Bids),
		Asks:        pubkeyFromWords(state.Asks),
		CoinVault:   pubkeyFromWords(state.CoinVault),
		PcVault:     pubkeyFromWords(state.PcVault),
		VaultSigner: vaultSigner,
	}, nil
}
