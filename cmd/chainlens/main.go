package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"chainlens/internal/apierr"
	"chainlens/internal/chainlens/analyzer"
	"chainlens/internal/chainlens/report"
	"chainlens/pkg/batcher"
	"chainlens/pkg/workerpool"
)

type config struct {
	Fixture string `long:"fixture" description:"path to a single-transaction JSON fixture" positional-arg-name:"FIXTURE"`
	Block   bool   `long:"block" description:"run in block mode"`
	BlkFile string `long:"blk" description:"path to the blk file (block mode)"`
	RevFile string `long:"rev" description:"path to the rev file (block mode)"`
	XorFile string `long:"xor" description:"path to the xor key file (block mode)"`
	OutDir  string `long:"out" description:"output directory" default:"out"`
}

// fixtureFile is the JSON shape of a single-transaction CLI fixture,
// matching the §6.1 request body.
type fixtureFile struct {
	Network  string `json:"network"`
	RawTx    string `json:"raw_tx"`
	Prevouts []struct {
		TxID            string `json:"txid"`
		Vout            uint32 `json:"vout"`
		ValueSats       uint64 `json:"value_sats"`
		ScriptPubKeyHex string `json:"script_pubkey_hex"`
	} `json:"prevouts"`
}

func main() {
	var cfg config
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		logger.Fatal("create output directory", zap.Error(err))
	}

	var runErr error
	if cfg.Block {
		runErr = runBlockMode(ctx, cfg, logger)
	} else {
		runErr = runTransactionMode(cfg, logger)
	}
	if runErr != nil {
		logger.Error("chainlens run failed", zap.Error(runErr))
		os.Exit(1)
	}
}

func runTransactionMode(cfg config, logger *zap.Logger) error {
	raw, err := os.ReadFile(cfg.Fixture)
	if err != nil {
		return apierr.Wrap(apierr.CodeInvalidFixture, err)
	}

	var fixture fixtureFile
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return apierr.Wrap(apierr.CodeInvalidJSON, err)
	}

	prevouts := make([]analyzer.PrevOutInput, len(fixture.Prevouts))
	for i, p := range fixture.Prevouts {
		prevouts[i] = analyzer.PrevOutInput{
			TxID:            p.TxID,
			Vout:            p.Vout,
			ValueSats:       p.ValueSats,
			ScriptPubKeyHex: p.ScriptPubKeyHex,
		}
	}

	result, err := analyzer.AnalyzeTransaction(analyzer.TransactionRequest{
		Network:  fixture.Network,
		RawTxHex: fixture.RawTx,
		Prevouts: prevouts,
	})
	if err != nil {
		return err
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return apierr.Wrap(apierr.CodeInternal, err)
	}

	outPath := filepath.Join(cfg.OutDir, result.TxID+".json")
	if err := os.WriteFile(outPath, body, 0o644); err != nil {
		return apierr.Wrap(apierr.CodeInternal, err)
	}

	fmt.Println(string(body))
	logger.Info("wrote transaction report", zap.String("path", outPath))
	return nil
}

// runBlockMode runs the CLI's strict merkle mode (spec.md §9 open
// question resolution): any MERKLE_MISMATCH aborts the run. Block
// reports are written to out/<block_hash>.json with no stdout output.
func runBlockMode(ctx context.Context, cfg config, logger *zap.Logger) error {
	blkBuf, err := os.ReadFile(cfg.BlkFile)
	if err != nil {
		return apierr.Wrap(apierr.CodeInvalidFixture, err)
	}
	revBuf, err := os.ReadFile(cfg.RevFile)
	if err != nil {
		return apierr.Wrap(apierr.CodeInvalidFixture, err)
	}
	xorBuf, err := os.ReadFile(cfg.XorFile)
	if err != nil {
		return apierr.Wrap(apierr.CodeInvalidFixture, err)
	}

	result, err := analyzer.AnalyzeBlockFile(blkBuf, revBuf, xorBuf, true)
	if err != nil {
		return err
	}

	// Marshaling is independent per block, so it runs across a worker
	// pool; the writes themselves are paced through a batcher so a
	// large multi-block file doesn't burst the filesystem.
	type output struct {
		path string
		body []byte
	}
	outputs := make([]output, len(result.Blocks))
	err = workerpool.Process(ctx, 4, result.Blocks, func(_ context.Context, blk report.Block) error {
		body, marshalErr := json.MarshalIndent(blk, "", "  ")
		if marshalErr != nil {
			return marshalErr
		}
		idx := blockIndex(result.Blocks, blk)
		outputs[idx] = output{path: filepath.Join(cfg.OutDir, blk.BlockHeader.BlockHash+".json"), body: body}
		return nil
	}, nil)
	if err != nil {
		return apierr.Wrap(apierr.CodeInternal, err)
	}

	writer := batcher.New(logger, func(_ context.Context, batch []output) error {
		for _, o := range batch {
			if err := os.WriteFile(o.path, o.body, 0o644); err != nil {
				return err
			}
			logger.Info("wrote block report", zap.String("path", o.path))
		}
		return nil
	}, 4, 250*time.Millisecond, 20)
	writer.Start(ctx)

	for _, o := range outputs {
		if err := writer.Add(ctx, o); err != nil {
			writer.Stop()
			return apierr.Wrap(apierr.CodeInternal, err)
		}
	}
	writer.Stop()

	return nil
}

// blockIndex locates blk's position in blocks by block hash, used to
// write worker-pool results back into a stable, file-order slice.
func blockIndex(blocks []report.Block, blk report.Block) int {
	for i, b := range blocks {
		if b.BlockHeader.BlockHash == blk.BlockHeader.BlockHash {
			return i
		}
	}
	return 0
}
