// Command crank drains a Serum-style central limit order book's event
// queue by repeatedly submitting ConsumeEvents transactions, or dumps
// the current event queue contents for inspection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/JekaMas/workerpool"

	"github.com/solmarket/crank/pkg/dex/account"
	"github.com/solmarket/crank/pkg/dex/crank"
	"github.com/solmarket/crank/pkg/dex/market"
	"github.com/solmarket/crank/pkg/dex/rpcclient"
	"github.com/solmarket/crank/pkg/logging"
	"github.com/solmarket/crank/params"
)

func main() {
	app := &cli.App{
		Name:  "crank",
		Usage: "drain a Serum-style market's event queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Value: "https://solana-api.projectserum.com",
				Usage: "RPC endpoint URL",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML/JSON config file (optional)",
			},
		},
		Commands: []*cli.Command{
			consumeEventsCommand(),
			printEventQueueCommand(),
		},
		Before: func(c *cli.Context) error {
			if c.IsSet("url") {
				return nil
			}
			cfg, err := params.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return c.Set("url", cfg.HTTPRPCURL)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "crank:", err)
		os.Exit(1)
	}
}

func consumeEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "consume-events",
		Usage: "run the crank loop against one market",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dex-program-id", Required: true},
			&cli.StringFlag{Name: "payer", Required: true, Usage: "path to the payer keypair JSON file"},
			&cli.StringFlag{Name: "market", Required: true},
			&cli.StringFlag{Name: "coin-wallet", Required: true},
			&cli.StringFlag{Name: "pc-wallet", Required: true},
			&cli.IntFlag{Name: "num-workers", Required: true},
			&cli.IntFlag{Name: "events-per-worker", Required: true},
			&cli.IntFlag{Name: "num-accounts", Value: 32},
			&cli.StringFlag{Name: "log-directory"},
			&cli.Uint64Flag{Name: "max-q-length", Value: 1},
			&cli.Uint64Flag{Name: "max-wait-for-events-delay", Value: 60},
		},
		Action: runConsumeEvents,
	}
}

func printEventQueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "print-event-queue",
		Usage: "decode and print one market's event queue",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dex-program-id", Required: true},
			&cli.StringFlag{Name: "market", Required: true},
		},
		Action: runPrintEventQueue,
	}
}

func runConsumeEvents(c *cli.Context) error {
	if c.Int("events-per-worker") <= 0 {
		return fmt.Errorf("--events-per-worker must be positive")
	}

	logger, closeLogging, err := logging.New(c.String("log-directory"), false)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closeLogging()

	programID, err := solana.PublicKeyFromBase58(c.String("dex-program-id"))
	if err != nil {
		return fmt.Errorf("parse dex-program-id: %w", err)
	}
	marketAccount, err := solana.PublicKeyFromBase58(c.String("market"))
	if err != nil {
		return fmt.Errorf("parse market: %w", err)
	}
	coinWallet, err := solana.PublicKeyFromBase58(c.String("coin-wallet"))
	if err != nil {
		return fmt.Errorf("parse coin-wallet: %w", err)
	}
	pcWallet, err := solana.PublicKeyFromBase58(c.String("pc-wallet"))
	if err != nil {
		return fmt.Errorf("parse pc-wallet: %w", err)
	}

	client := rpcclient.New(c.String("url"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infow("resolving market keys", "market", marketAccount)
	keys, err := market.Resolve(ctx, client, programID, marketAccount)
	if err != nil {
		return fmt.Errorf("resolve market keys: %w", err)
	}
	logger.Infow("resolved market keys", "keys", keys)

	payerPath := c.String("payer")
	payerLoader := func() (solana.PrivateKey, error) {
		return solana.PrivateKeyFromSolanaKeygenFile(payerPath)
	}

	cfg := crank.Config{
		NumWorkers:            c.Int("num-workers"),
		EventsPerWorker:       c.Int("events-per-worker"),
		NumAccounts:           c.Int("num-accounts"),
		MaxQLength:            int(c.Uint64("max-q-length")),
		MaxWaitForEventsDelay: time.Duration(c.Uint64("max-wait-for-events-delay")) * time.Second,
	}

	pool := workerpool.New(cfg.NumWorkers)
	loop, err := crank.NewLoop(cfg, keys, programID, coinWallet, pcWallet, client, pool, payerLoader, logger)
	if err != nil {
		return fmt.Errorf("construct crank loop: %w", err)
	}

	logger.Infow("starting crank loop", "market", marketAccount, "num_workers", cfg.NumWorkers)
	return loop.Run(ctx)
}

func runPrintEventQueue(c *cli.Context) error {
	programID, err := solana.PublicKeyFromBase58(c.String("dex-program-id"))
	if err != nil {
		return fmt.Errorf("parse dex-program-id: %w", err)
	}
	marketAccount, err := solana.PublicKeyFromBase58(c.String("market"))
	if err != nil {
		return fmt.Errorf("parse market: %w", err)
	}

	client := rpcclient.New(c.String("url"))
	ctx := context.Background()

	keys, err := market.Resolve(ctx, client, programID, marketAccount)
	if err != nil {
		return fmt.Errorf("resolve market keys: %w", err)
	}

	raw, err := client.GetAccountData(ctx, keys.EventQ)
	if err != nil {
		return fmt.Errorf("fetch event queue: %w", err)
	}
	words, err := account.StripPadding(raw)
	if err != nil {
		return fmt.Errorf("strip event queue padding: %w", err)
	}
	header, seg0, seg1, err := account.ParseEventQueue(words)
	if err != nil {
		return fmt.Errorf("parse event queue: %w", err)
	}

	fmt.Printf("event queue %s: head=%d count=%d seq_num=%d\n", keys.EventQ, header.Head, header.Count, header.SeqNum)
	i := 0
	for _, ev := range seg0 {
		fmt.Printf("[%d] flags=%x owner_slot=%d native_qty_released=%d native_qty_paid=%d client_order_id=%d\n",
			i, ev.Flags, ev.OwnerSlot, ev.NativeQtyReleased, ev.NativeQtyPaid, ev.ClientOrderID)
		i++
	}
	for _, ev := range seg1 {
		fmt.Printf("[%d] flags=%x owner_slot=%d native_qty_released=%d native_qty_paid=%d client_order_id=%d\n",
			i, ev.Flags, ev.OwnerSlot, ev.NativeQtyReleased, ev.NativeQtyPaid, ev.ClientOrderID)
		i++
	}
	return nil
}
