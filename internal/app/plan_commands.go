package app

import (
	"strings"

	"github.com/ggonzalez94/savings-agent/internal/engine"
	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/registry"
	"github.com/ggonzalez94/savings-agent/internal/units"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newPlanCommand() *cobra.Command {
	root := &cobra.Command{Use: "plan", Aliases: []string{"plans"}, Short: "Savings plan commands"}

	var in engine.CreatePlanInput
	create := &cobra.Command{
		Use:         "create",
		Short:       "Classify a savings goal and store a plan with its target allocation",
		Args:        cobra.NoArgs,
		Annotations: annotations(false, true),
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := s.tools()
			if err != nil {
				return err
			}
			plan, err := tools.CreatePlan(cmd.Context(), in)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), plan, nil)
		},
	}
	create.Flags().StringVar(&in.Goal, "goal", "", "Savings goal in plain language, e.g. \"buy a house in 3-5 years\"")
	create.Flags().Float64Var(&in.DepositAmountUSDC, "deposit", 0, "Deposit amount in USDC")
	create.Flags().StringVar(&in.UserAddress, "user", "", "Owner wallet address")
	_ = create.MarkFlagRequired("goal")
	_ = create.MarkFlagRequired("deposit")
	_ = create.MarkFlagRequired("user")

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.openLedgers(); err != nil {
				return err
			}
			items := s.plans.All()
			if f := strings.ToLower(strings.TrimSpace(status)); f != "" {
				filtered := make([]model.SavingsPlan, 0, len(items))
				for _, p := range items {
					if string(p.Status) == f {
						filtered = append(filtered, p)
					}
				}
				items = filtered
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (created|active|rebalancing|closed)")

	show := &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show one plan with its transaction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.openLedgers(); err != nil {
				return err
			}
			plan, ok := s.plans.Get(args[0])
			if !ok {
				return clierr.New(clierr.CodeNotFound, "plan "+args[0]+" not found")
			}
			data := struct {
				model.SavingsPlan
				History []model.TransactionRecord `json:"history"`
			}{plan, s.plans.ForPlan(plan.PlanID)}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}

	root.AddCommand(create, list, show)
	return root
}

func (s *runtimeState) newTradesCommand() *cobra.Command {
	root := &cobra.Command{Use: "trades", Short: "Initial plan execution"}
	execute := &cobra.Command{
		Use:         "execute <plan-id>",
		Short:       "Deposit the stable bucket and buy every hedge bucket of a new plan",
		Args:        cobra.ExactArgs(1),
		Annotations: annotations(true, true),
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := s.tools()
			if err != nil {
				return err
			}
			summary, err := tools.ExecuteTrades(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), summary, nil)
		},
	}
	root.AddCommand(execute)
	return root
}

func (s *runtimeState) newPortfolioCommand() *cobra.Command {
	root := &cobra.Command{Use: "portfolio", Short: "Portfolio inspection"}
	check := &cobra.Command{
		Use:         "check <plan-id>",
		Short:       "Read on-chain holdings and report allocation drift",
		Args:        cobra.ExactArgs(1),
		Annotations: annotations(true, false),
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := s.tools()
			if err != nil {
				return err
			}
			snap, err := tools.CheckPortfolio(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var warnings []string
			if snap.MaxDrift > s.settings.DriftThreshold {
				warnings = append(warnings, "allocation drift exceeds threshold; run rebalance")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), snap, warnings)
		},
	}
	root.AddCommand(check)
	return root
}

func (s *runtimeState) newRebalanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "rebalance <plan-id>",
		Short:       "Trade a plan back to its target allocation when drift exceeds the threshold",
		Args:        cobra.ExactArgs(1),
		Annotations: annotations(true, true),
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := s.tools()
			if err != nil {
				return err
			}
			res, err := tools.Rebalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, nil)
		},
	}
}

func (s *runtimeState) newHarvestCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "harvest <plan-id>",
		Short:       "Harvest pending vault yield and book the management fee",
		Args:        cobra.ExactArgs(1),
		Annotations: annotations(true, true),
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := s.tools()
			if err != nil {
				return err
			}
			res, err := tools.HarvestYield(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, nil)
		},
	}
}

func (s *runtimeState) newVaultCommand() *cobra.Command {
	root := &cobra.Command{Use: "vault", Short: "Savings vault operations"}
	var amount string
	fund := &cobra.Command{
		Use:         "fund",
		Short:       "Top up the vault yield reserve from the agent wallet",
		Args:        cobra.NoArgs,
		Annotations: annotations(true, true),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := units.ParseBaseUnits(amount, registry.USDCDecimals)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "parse --amount", err)
			}
			if base.Sign() <= 0 {
				return clierr.New(clierr.CodeUsage, "--amount must be positive")
			}
			e, err := s.newEngine()
			if err != nil {
				return err
			}
			res, err := e.Fund(cmd.Context(), units.ToFloat(base, registry.USDCDecimals))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, nil)
		},
	}
	fund.Flags().StringVar(&amount, "amount", "", "Amount of USDC to move into the reserve, at most 6 decimals")
	_ = fund.MarkFlagRequired("amount")
	root.AddCommand(fund)
	return root
}
