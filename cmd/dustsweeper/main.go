package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abbas-claw/dust-sweeper/internal/chains"
	"github.com/abbas-claw/dust-sweeper/internal/config"
	"github.com/abbas-claw/dust-sweeper/internal/dust"
	"github.com/abbas-claw/dust-sweeper/internal/logger"
	"github.com/abbas-claw/dust-sweeper/internal/sweep"
	"github.com/abbas-claw/dust-sweeper/internal/token"
	"github.com/abbas-claw/dust-sweeper/internal/wallet"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

type rootFlags struct {
	configFile string
	logLevel   string
	dev        bool
}

func newRootCmd() *cobra.Command {
	var rf rootFlags
	root := &cobra.Command{
		Use:           "dustsweeper",
		Short:         "Find small token balances across EVM chains and swap them into native currency",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rf.configFile, "config", "", "optional config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&rf.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&rf.dev, "dev", false, "development logging")

	root.AddCommand(
		newChainsCmd(&rf),
		newScanCmd(&rf),
		newSweepCmd(&rf),
		newHistoryCmd(&rf),
	)
	return root
}

// setup loads settings and builds the app. Callers must close it.
func setup(ctx context.Context, rf *rootFlags) (*app, error) {
	st, err := config.Load(rf.configFile)
	if err != nil {
		return nil, err
	}
	if rf.logLevel != "" {
		st.LogLevel = rf.logLevel
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logCfg := logger.DefaultConfig()
	logCfg.Level = st.LogLevel
	logCfg.Development = rf.dev
	logCfg.File = st.LogFile
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, st, log)
}

func newChainsCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List the enabled chains and their RPC endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := config.Load(rf.configFile)
			if err != nil {
				return err
			}
			registry, err := chains.NewRegistry(st.ChainIDs, st.RPCURLs)
			if err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).chains(registry.All())
			return nil
		},
	}
}

func newScanCmd(rf *rootFlags) *cobra.Command {
	var (
		walletFlag string
		threshold  float64
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover balances, price them and split dust from keepers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, rf)
			if err != nil {
				return err
			}
			defer a.close()

			owner, err := ownerAddress(walletFlag, a.st)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = a.st.ThresholdUSD
			}

			out := newPrinter(cmd.OutOrStdout())
			res, err := a.scan(ctx, owner, threshold, out)
			if err != nil {
				return err
			}
			out.result(res, threshold)
			return nil
		},
	}
	cmd.Flags().StringVar(&walletFlag, "wallet", "", "wallet address to scan (defaults to WALLET_ADDRESS or the signing key's address)")
	cmd.Flags().Float64Var(&threshold, "threshold", dust.DefaultThresholdUSD, "dust threshold in USD")
	return cmd
}

func newSweepCmd(rf *rootFlags) *cobra.Command {
	var (
		threshold float64
		assumeYes bool
		only      []string
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Scan, then swap the selected dust into each chain's native currency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, rf)
			if err != nil {
				return err
			}
			defer a.close()

			keys, err := parseKeys(only)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = a.st.ThresholdUSD
			}

			keyHex := a.st.WalletPrivateKeyHex
			if keyHex == "" {
				if keyHex, err = readPassword("Wallet private key: "); err != nil {
					return err
				}
			}
			key, err := wallet.ParsePrivateKey(keyHex)
			if err != nil {
				return err
			}
			signer := a.signer(key)
			owner := signer.Address()

			out := newPrinter(cmd.OutOrStdout())
			out.line("Wallet %s (key %s)", owner.Hex(), maskHex(keyHex))

			res, err := a.scan(ctx, owner, threshold, out)
			if err != nil {
				return err
			}
			out.result(res, threshold)

			selected := dust.Select(res.Dust, keys)
			if len(selected) == 0 {
				out.line("Nothing to sweep.")
				return nil
			}
			if !assumeYes {
				in := bufio.NewReader(cmd.InOrStdin())
				answer := readLine(in, fmt.Sprintf("Sweep %d tokens (%s)? [y/N]: ", len(selected), token.KnownUSD(dust.TotalUSD(selected))))
				if !yes(answer) {
					out.line("Aborted.")
					return nil
				}
			}

			feed := sweep.NewFeed()
			feed.OnUpdate(out.status)
			a.serve(feed)

			err = a.sweeper(signer, feed).Sweep(ctx, selected, owner)
			out.summary(feed.Snapshot())
			if errors.Is(err, context.Canceled) {
				a.log.Warn("sweep interrupted")
			}
			return err
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", dust.DefaultThresholdUSD, "dust threshold in USD")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().StringSliceVar(&only, "only", nil, "sweep only these token keys (<chainId>:<address>), default all dust")
	return cmd
}

func newHistoryCmd(rf *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded sweep outcomes, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, rf)
			if err != nil {
				return err
			}
			defer a.close()
			if a.history == nil {
				return errors.New("history is disabled: set HISTORY_DB")
			}
			entries, err := a.history.List(ctx, limit)
			if err != nil {
				return err
			}
			a.log.Debug("history listed", zap.Int("entries", len(entries)))
			newPrinter(cmd.OutOrStdout()).history(entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of entries to show")
	return cmd
}
