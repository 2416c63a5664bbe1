package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/savings-agent/internal/dashboard"
	"github.com/ggonzalez94/savings-agent/internal/logging"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/scheduler"
	"github.com/spf13/cobra"
)

const shutdownGrace = 10 * time.Second

func (s *runtimeState) newLedgerCommand() *cobra.Command {
	root := &cobra.Command{Use: "ledger", Short: "Transaction, cost and revenue ledgers"}

	var txLimit int
	var planID string
	transactions := &cobra.Command{
		Use:   "transactions",
		Short: "List recorded on-chain transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.openLedgers(); err != nil {
				return err
			}
			var items []model.TransactionRecord
			if planID != "" {
				items = s.plans.ForPlan(planID)
			} else {
				items = s.plans.Recent(txLimit)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	transactions.Flags().IntVar(&txLimit, "limit", 50, "Most recent N transactions")
	transactions.Flags().StringVar(&planID, "plan", "", "Only transactions of this plan")

	var costLimit int
	costsCmd := &cobra.Command{
		Use:   "costs",
		Short: "List cost and revenue entries with running totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.openLedgers(); err != nil {
				return err
			}
			data := map[string]any{
				"summary": s.costs.Summary(),
				"costs":   s.costs.RecentCosts(costLimit),
				"revenue": s.costs.RecentRevenue(costLimit),
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	costsCmd.Flags().IntVar(&costLimit, "limit", 50, "Most recent N entries of each kind")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Agent stats: wallet balances, sustainability, portfolio and uptime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.newEngine()
			if err != nil {
				return err
			}
			data, err := e.Stats(cmd.Context())
			if err != nil {
				return err
			}
			var warnings []string
			if data.AgentAddress == "" || data.AgentAddress == (common.Address{}).Hex() {
				warnings = append(warnings, "chain unavailable; wallet balances reported as zero")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, warnings)
		},
	}

	root.AddCommand(transactions, costsCmd, stats)
	return root
}

func (s *runtimeState) newScheduler() (*scheduler.Scheduler, error) {
	e, err := s.newEngine()
	if err != nil {
		return nil, err
	}
	return scheduler.New(e, s.plans, s.costs, logging.Component(s.log, "scheduler"), s.settings.Interval), nil
}

func (s *runtimeState) newLoopCommand() *cobra.Command {
	root := &cobra.Command{Use: "loop", Short: "Autonomous loop"}
	tick := &cobra.Command{
		Use:         "tick",
		Short:       "Run one harvest-and-rebalance pass over every active plan",
		Args:        cobra.NoArgs,
		Annotations: annotations(true, true),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := s.newScheduler()
			if err != nil {
				return err
			}
			summary := sched.Tick(cmd.Context())
			var warnings []string
			if summary.Failures > 0 {
				warnings = append(warnings, "some plans failed this tick; see logs for tick_id "+summary.TickID)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), summary, warnings)
		},
	}
	root.AddCommand(tick)
	return root
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "serve",
		Short:       "Run the autonomous loop and the read-only dashboard until interrupted",
		Args:        cobra.NoArgs,
		Annotations: annotations(true, true),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched, err := s.newScheduler()
			if err != nil {
				return err
			}
			dash := dashboard.New(s.engine, s.settings.DashboardAddr, logging.Component(s.log, "dashboard"))
			if err := dash.Start(); err != nil {
				return err
			}
			handle, err := sched.Start(ctx)
			if err != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				_ = dash.Shutdown(shutdownCtx)
				return err
			}
			s.log.Info().Str("dashboard", dash.Addr()).Dur("interval", s.settings.Interval).Msg("agent running")

			<-ctx.Done()
			s.log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			select {
			case <-handle.Stop().Done():
			case <-shutdownCtx.Done():
				s.log.Warn().Msg("tick still running at shutdown")
			}
			if err := dash.Shutdown(shutdownCtx); err != nil {
				s.log.Warn().Err(err).Msg("dashboard shutdown")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{"stopped": true}, nil)
		},
	}
	cmd.Flags().StringVar(&s.flags.DashboardAddr, "dashboard-addr", "", "Loopback address for the read-only dashboard")
	cmd.Flags().StringVar(&s.flags.Interval, "interval", "", "Loop interval, e.g. 60m")
	return cmd
}
