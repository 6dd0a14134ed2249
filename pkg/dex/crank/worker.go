package crank

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solmarket/crank/pkg/dex/market"
	"github.com/solmarket/crank/pkg/dex/rpcclient"
	"github.com/solmarket/crank/pkg/dex/txbuilder"
)

// dispatchWorker is one worker's build-sign-submit round trip, ported
// from consume_events_wrapper/consume_events_once. Failures are logged
// and isolated: a failed worker neither retries nor advances watermark,
// and never blocks its siblings.
func dispatchWorker(ctx context.Context, client rpcclient.Client, programID solana.PublicKey, payerLoader PayerLoader,
	owners []solana.PublicKey, keys market.Keys, coinWallet, pcWallet solana.PublicKey,
	threadNum, eventsPerWorker int, watermark *Watermark, slot uint64, logger *zap.SugaredLogger) {

	start := time.Now()

	payer, err := payerLoader()
	if err != nil {
		logger.Errorw("worker received error loading payer", "thread", threadNum, "error", err)
		return
	}

	blockhash, err := client.GetRecentBlockhash(ctx)
	if err != nil {
		logger.Errorw("worker received error", "thread", threadNum, "error", err)
		return
	}

	instruction, err := txbuilder.BuildConsumeEvents(programID, keys, owners, coinWallet, pcWallet, eventsPerWorker)
	if err != nil {
		logger.Errorw("worker received error", "thread", threadNum, "error", err)
		return
	}

	tx, err := txbuilder.Sign(ctx, instruction, payer, blockhash)
	if err != nil {
		logger.Errorw("worker received error", "thread", threadNum, "error", err)
		return
	}

	sig, err := client.SendTransaction(ctx, tx)
	if err != nil {
		logger.Errorw("worker received error", "thread", threadNum, "error", err)
		return
	}

	logger.Infow("worker successfully consumed events",
		"thread", threadNum, "elapsed", time.Since(start), "signature", sig)
	watermark.Advance(slot)
}
