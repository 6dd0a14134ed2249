// Package txbuilder assembles and signs the ConsumeEvents transaction a
// worker submits each dispatch: the instruction itself plus a throwaway
// self-transfer that perturbs the signature so back-to-back identical
// crank transactions aren't rejected as duplicates.
package txbuilder

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/solmarket/crank/pkg/dex/market"
)

// consumeEventsDiscriminant is serum-dex's MarketInstruction tag for
// ConsumeEvents.
const consumeEventsDiscriminant = 3

// minNonceLamports / maxNonceLamports bound the throwaway self-transfer
// amount (spec.md §4.3/§9); the exact value carries no meaning.
const (
	minNonceLamports = 1
	maxNonceLamports = 10000
)

type consumeEventsInstruction struct {
	programID solana.PublicKey
	accounts  []*solana.AccountMeta
	data      []byte
}

func (i *consumeEventsInstruction) ProgramID() solana.PublicKey     { return i.programID }
func (i *consumeEventsInstruction) Accounts() []*solana.AccountMeta { return i.accounts }
func (i *consumeEventsInstruction) Data() ([]byte, error)           { return i.data, nil }

// BuildConsumeEvents builds the ConsumeEvents instruction for one market:
// a writable non-signer meta per unique owner account (in the caller's
// order), followed by market, event queue, coin wallet, pc wallet.
func BuildConsumeEvents(programID solana.PublicKey, keys market.Keys, userAccounts []solana.PublicKey, coinWallet, pcWallet solana.PublicKey, eventsPerWorker int) (solana.Instruction, error) {
	if eventsPerWorker <= 0 {
		return nil, fmt.Errorf("txbuilder: eventsPerWorker must be positive, got %d", eventsPerWorker)
	}
	limit := eventsPerWorker
	if limit > 1<<16-1 {
		limit = 1<<16 - 1
	}

	accounts := make([]*solana.AccountMeta, 0, len(userAccounts)+4)
	for _, acc := range userAccounts {
		accounts = append(accounts, solana.NewAccountMeta(acc, true, false))
	}
	accounts = append(accounts,
		solana.NewAccountMeta(keys.Market, true, false),
		solana.NewAccountMeta(keys.EventQ, true, false),
		solana.NewAccountMeta(coinWallet, true, false),
		solana.NewAccountMeta(pcWallet, true, false),
	)

	data := make([]byte, 3)
	data[0] = consumeEventsDiscriminant
	binary.LittleEndian.PutUint16(data[1:], uint16(limit))

	return &consumeEventsInstruction{programID: programID, accounts: accounts, data: data}, nil
}

func randLamports() uint64 {
	return minNonceLamports + uint64(rand.Intn(maxNonceLamports-minNonceLamports+1))
}

// Sign assembles the ConsumeEvents instruction with a throwaway
// self-transfer nonce instruction into one transaction and signs it with
// payer.
func Sign(ctx context.Context, instruction solana.Instruction, payer solana.PrivateKey, recentBlockhash solana.Hash) (*solana.Transaction, error) {
	nonce := system.NewTransferInstruction(
		randLamports(),
		payer.PublicKey(),
		payer.PublicKey(),
	).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction, nonce},
		recentBlockhash,
		solana.TransactionPayer(payer.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("build consume events transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if payer.PublicKey().Equals(key) {
			return &payer
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign consume events transaction: %w", err)
	}

	return tx, nil
}
