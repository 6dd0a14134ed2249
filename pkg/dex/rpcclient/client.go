// Package rpcclient defines the narrow RPC surface the crank depends on
// and a concrete adapter over gagliardetto/solana-go's JSON-RPC client.
// Nothing outside this package imports solana-go/rpc directly, so tests
// can drive the control loop and worker against a fake.
package rpcclient

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client is the only RPC surface the crank's core packages depend on:
// spec.md §6's five operations, including get_minimum_balance_for_rent_exemption
// which only the out-of-core account-creation helpers need.
type Client interface {
	// GetAccountData fetches an account's raw bytes with no commitment
	// guarantee beyond the node's default.
	GetAccountData(ctx context.Context, key solana.PublicKey) ([]byte, error)

	// GetAccountWithCommitment fetches an account at "recent" commitment,
	// returning the slot the node observed it at. found is false when the
	// RPC node reports the account doesn't exist.
	GetAccountWithCommitment(ctx context.Context, key solana.PublicKey) (data []byte, slot uint64, found bool, err error)

	// GetRecentBlockhash returns a blockhash suitable for a new transaction.
	GetRecentBlockhash(ctx context.Context) (solana.Hash, error)

	// SendTransaction submits a signed transaction with preflight skipped.
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)

	// GetMinimumBalanceForRentExemption is used only by the out-of-core
	// account-creation helpers (spec.md §1 Non-goals / out of scope).
	GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
}

type solanaClient struct {
	rpc *rpc.Client
}

// New wraps a fresh solana-go RPC client for the given endpoint. It does
// nothing beyond storing the endpoint string inside the underlying HTTP
// transport. The crank builds one client at startup and shares it across
// the control loop and all workers; workers do not construct their own.
func New(rpcURL string) Client {
	return &solanaClient{rpc: rpc.New(rpcURL)}
}

func (c *solanaClient) GetAccountData(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	out, err := c.rpc.GetAccountInfo(ctx, key)
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("account %s not found", key)
	}
	return out.Value.Data.GetBinary(), nil
}

func (c *solanaClient) GetAccountWithCommitment(ctx context.Context, key solana.PublicKey) ([]byte, uint64, bool, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentRecent,
	})
	if err != nil {
		return nil, 0, false, err
	}
	if out == nil || out.Value == nil {
		return nil, out.GetContext().Slot, false, nil
	}
	return out.Value.Data.GetBinary(), out.GetContext().Slot, true, nil
}

func (c *solanaClient) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, err
	}
	return out.Value.Blockhash, nil
}

func (c *solanaClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight: true,
	})
}

func (c *solanaClient) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	return c.rpc.GetMinimumBalanceForRentExemption(ctx, size, rpc.CommitmentFinalized)
}
