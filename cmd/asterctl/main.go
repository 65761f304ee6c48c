// Command asterctl is an example operator CLI over the delta-neutral
// arbitrage core. It loads credentials from a local .env file (never
// the core's job) and exposes the Portfolio Orchestrator's operations
// as subcommands. It is demonstration plumbing, not part of the core
// module's import graph.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/asterdex/dn-arb-core/internal/account"
	"github.com/asterdex/dn-arb-core/internal/execution"
	"github.com/asterdex/dn-arb-core/internal/filtercache"
	"github.com/asterdex/dn-arb-core/internal/httpclient"
	"github.com/asterdex/dn-arb-core/internal/marketdata"
	"github.com/asterdex/dn-arb-core/internal/orchestrator"
	"github.com/asterdex/dn-arb-core/internal/scheduler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "asterctl",
		Short: "Operator CLI for the delta-neutral funding-rate arbitrage core",
	}

	root.AddCommand(
		newPortfolioCmd(),
		newFundingRatesCmd(),
		newOpenCmd(),
		newCloseCmd(),
		newRebalanceCmd(),
		newWatchCmd(),
	)
	return root
}

// buildOrchestrator loads credentials from .env (falling back to the
// process environment) and wires every core component. It never
// touches the environment beyond this boundary — internal packages
// take credentials through constructor injection only.
func buildOrchestrator() (*orchestrator.Orchestrator, error) {
	_ = godotenv.Load()

	creds := httpclient.Credentials{
		APIUser:       os.Getenv("ASTER_API_USER"),
		APISigner:     os.Getenv("ASTER_API_SIGNER"),
		APIPrivateKey: os.Getenv("ASTER_API_PRIVATE_KEY"),
		APIV1Public:   os.Getenv("ASTER_APIV1_PUBLIC"),
		APIV1Private:  os.Getenv("ASTER_APIV1_PRIVATE"),
	}

	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}

	httpClient, err := httpclient.New(creds, httpclient.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("building http client: %w", err)
	}

	filters := filtercache.New(func(ctx context.Context, path string, out interface{}) error {
		return httpClient.Get(ctx, path, nil, out, false)
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := filters.RefreshSpot(ctx); err != nil {
		log.Warn("initial spot filter refresh failed", zap.Error(err))
	}
	if err := filters.RefreshPerp(ctx); err != nil {
		log.Warn("initial perp filter refresh failed", zap.Error(err))
	}

	market := marketdata.New(httpClient, log)
	acct := account.New(httpClient, log)
	exec := execution.New(httpClient, filters, log)

	return orchestrator.New(market, acct, exec, filters, log), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPortfolioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Print the comprehensive portfolio snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := buildOrchestrator()
			if err != nil {
				return err
			}
			snapshot, err := o.GetComprehensivePortfolioData(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(snapshot)
		},
	}
}

func newFundingRatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "funding-rates",
		Short: "List delta-neutral-capable pairs sorted by descending APR",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := buildOrchestrator()
			if err != nil {
				return err
			}
			rates, err := o.GetAllFundingRates(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(rates)
		},
	}
}

func newOpenCmd() *cobra.Command {
	var capitalUsd string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "open [symbol]",
		Short: "Open a delta-neutral pair sized to the given USD capital",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			capital, err := decimal.NewFromString(capitalUsd)
			if err != nil {
				return fmt.Errorf("invalid --capital value: %w", err)
			}
			o, err := buildOrchestrator()
			if err != nil {
				return err
			}
			result, err := o.PrepareAndExecuteDnPosition(cmd.Context(), args[0], capital, dryRun)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&capitalUsd, "capital", "0", "USD capital to deploy")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "compute the trade plan without submitting orders")
	return cmd
}

func newCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close [symbol]",
		Short: "Close an existing delta-neutral pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := buildOrchestrator()
			if err != nil {
				return err
			}
			result, err := o.ExecuteDnPositionClose(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func newRebalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebalance",
		Short: "Equalize USDT margin 50/50 across the spot and perp wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := buildOrchestrator()
			if err != nil {
				return err
			}
			result, err := o.RebalanceUsdt5050(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func newWatchCmd() *cobra.Command {
	var intervalSeconds int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the periodic refresh loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := buildOrchestrator()
			if err != nil {
				return err
			}
			s := scheduler.New(o, time.Duration(intervalSeconds)*time.Second, zap.NewNop())
			s.Run(cmd.Context())
			return nil
		},
	}
	cmd.Flags().IntVar(&intervalSeconds, "interval", 30, "refresh interval in seconds")
	return cmd
}
