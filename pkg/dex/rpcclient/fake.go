package rpcclient

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// FakeClient is a scriptable Client for exercising the control loop and
// worker without a live RPC endpoint.
type FakeClient struct {
	Accounts     map[solana.PublicKey][]byte
	Slots        map[solana.PublicKey]uint64
	Missing      map[solana.PublicKey]bool
	Blockhash    solana.Hash
	SendErr      error
	BlockhashErr error
	Sent         []*solana.Transaction
}

// NewFakeClient returns an empty FakeClient ready for test setup.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Accounts: make(map[solana.PublicKey][]byte),
		Slots:    make(map[solana.PublicKey]uint64),
		Missing:  make(map[solana.PublicKey]bool),
	}
}

func (f *FakeClient) GetAccountData(_ context.Context, key solana.PublicKey) ([]byte, error) {
	return f.Accounts[key], nil
}

func (f *FakeClient) GetAccountWithCommitment(_ context.Context, key solana.PublicKey) ([]byte, uint64, bool, error) {
	if f.Missing[key] {
		return nil, f.Slots[key], false, nil
	}
	return f.Accounts[key], f.Slots[key], true, nil
}

func (f *FakeClient) GetRecentBlockhash(_ context.Context) (solana.Hash, error) {
	if f.BlockhashErr != nil {
		return solana.Hash{}, f.BlockhashErr
	}
	return f.Blockhash, nil
}

func (f *FakeClient) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if f.SendErr != nil {
		return solana.Signature{}, f.SendErr
	}
	f.Sent = append(f.Sent, tx)
	var sig solana.Signature
	sig[0] = byte(len(f.Sent))
	return sig, nil
}

func (f *FakeClient) GetMinimumBalanceForRentExemption(_ context.Context, _ uint64) (uint64, error) {
	return 0, nil
}
