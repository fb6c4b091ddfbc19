// Package cli wires configuration, storage, chain access and the reasoning
// client into the perpmind commands.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hayden-dev/perpmind/internal/agent"
	"github.com/hayden-dev/perpmind/internal/chain"
	"github.com/hayden-dev/perpmind/internal/config"
	"github.com/hayden-dev/perpmind/internal/llm"
	"github.com/hayden-dev/perpmind/internal/market"
	"github.com/hayden-dev/perpmind/internal/retrieval"
	"github.com/hayden-dev/perpmind/internal/storage"
	"github.com/hayden-dev/perpmind/internal/trader"
)

const version = "0.1.0"

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "perpmind",
		Short: "Autonomous perpetuals trading agent",
		Long:  "perpmind runs an LLM-driven trading loop against an on-chain perpetuals exchange,\nand exposes a tool-calling chat assistant over the same collaborators.",
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the recurring trading loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if err := cfg.ValidateTrading(); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
			if err != nil {
				return fmt.Errorf("parse private key: %w", err)
			}
			owner := ethcrypto.PubkeyToAddress(key.PublicKey)

			completer, err := llm.NewClient(ctx, cfg)
			if err != nil {
				return err
			}

			store, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			exchange, err := chain.NewExchange(cfg.RPCURL, cfg.OracleURL, log)
			if err != nil {
				return err
			}

			aggregator := market.NewAggregator(
				market.NewCandleClient(cfg.MarketDataURL),
				market.NewSentimentClient(cfg.SentimentURL, completer, log),
				cfg.CandleLookback,
			)

			var retrievalClient *retrieval.Client
			if cfg.RetrievalURL != "" {
				retrievalClient = retrieval.NewClient(cfg.RetrievalURL, nil)
			}

			executor := trader.NewExecutor(exchange, store, key, owner.Hex(), cfg.ChainID, cfg.CollateralAsset, cfg.TargetAsset, log)
			scheduler := trader.NewScheduler(
				aggregator, retrievalClient, completer, executor, exchange,
				owner, cfg.TargetAsset,
				time.Duration(cfg.TradeIntervalMin)*time.Minute, log,
			)

			log.Info().Str("owner", owner.Hex()).Int64("chain", cfg.ChainID).Msg("starting trading agent")
			if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func newChatCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message to the trading assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx := cmd.Context()

			completer, err := llm.NewClient(ctx, cfg)
			if err != nil {
				return err
			}

			store, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			tools := []agent.Tool{
				agent.PriceLookupTool{},
				agent.NewHeadlinesTool(),
				agent.NewMarketAnalysisTool(market.NewCandleClient(cfg.MarketDataURL), cfg.CandleLookback),
			}
			orchestrator := agent.NewOrchestrator(store, completer, tools, "cli", log)

			id, reply, err := orchestrator.ProcessMessage(ctx, strings.Join(args, " "), conversationID)
			if err != nil {
				return err
			}

			fmt.Println(reply)
			fmt.Fprintf(os.Stderr, "\n[conversation %s]\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", agent.SentinelConversationID, "conversation id to continue, or 'new'")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("perpmind v%s\n", version)
		},
	}
}
