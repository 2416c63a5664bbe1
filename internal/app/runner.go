package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ggonzalez94/savings-agent/internal/config"
	"github.com/ggonzalez94/savings-agent/internal/costs"
	"github.com/ggonzalez94/savings-agent/internal/engine"
	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/logging"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/out"
	"github.com/ggonzalez94/savings-agent/internal/persist"
	"github.com/ggonzalez94/savings-agent/internal/plans"
	"github.com/ggonzalez94/savings-agent/internal/policy"
	"github.com/ggonzalez94/savings-agent/internal/schema"
	"github.com/ggonzalez94/savings-agent/internal/sink"
	"github.com/ggonzalez94/savings-agent/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string
	log         zerolog.Logger

	store   *persist.Store
	plans   *plans.Store
	costs   *costs.Ledger
	backend *lazyBackend
	engine  *engine.Engine
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, log: zerolog.Nop()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	defer state.close()
	if err == nil {
		return 0
	}

	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Autonomous savings agent: goal-based plans, on-chain rebalancing and yield harvesting",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.log = logging.New(logging.Options{
				Level:  settings.LogLevel,
				Format: settings.LogFormat,
				Writer: s.runner.stderr,
			})

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			return policy.CheckCommandAllowed(settings.EnableCommands, path)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	pf := cmd.PersistentFlags()
	pf.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	pf.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	pf.StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dot paths allowed)")
	pf.BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	pf.StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	pf.StringVar(&s.flags.Timeout, "timeout", "", "Outbound HTTP request timeout")
	pf.IntVar(&s.flags.Retries, "retries", -1, "Retries per outbound HTTP request")
	pf.StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	pf.StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	pf.StringVar(&s.flags.LogFormat, "log-format", "", "Log format (json|console)")
	pf.StringVar(&s.flags.RPCURL, "rpc-url", "", "JSON-RPC endpoint")
	pf.Int64Var(&s.flags.ChainID, "chain-id", 0, "EVM chain id")
	pf.StringVar(&s.flags.KeySource, "key-source", "", "Signing key source (auto|env|file|keystore)")
	pf.StringVar(&s.flags.StatePath, "state", "", "Path to the local state database")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newPlanCommand())
	cmd.AddCommand(s.newTradesCommand())
	cmd.AddCommand(s.newPortfolioCommand())
	cmd.AddCommand(s.newRebalanceCommand())
	cmd.AddCommand(s.newHarvestCommand())
	cmd.AddCommand(s.newVaultCommand())
	cmd.AddCommand(s.newLedgerCommand())
	cmd.AddCommand(s.newLoopCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	return cmd
}

// openLedgers opens the state database and both ledgers once per process.
func (s *runtimeState) openLedgers() error {
	if s.store != nil {
		return nil
	}
	store, err := persist.Open(s.settings.StatePath, s.settings.StateLockPath)
	if err != nil {
		return clierr.Wrap(clierr.CodePersistence, "open state", err)
	}
	s.store = store
	s.plans = plans.Open(store, logging.Component(s.log, "plans"))
	s.costs = costs.Open(store, logging.Component(s.log, "costs"))
	return nil
}

// newEngine wires the engine over the ledgers. The chain backend dials on first use,
// so commands that never touch the chain need no RPC endpoint or key.
func (s *runtimeState) newEngine() (*engine.Engine, error) {
	if s.engine != nil {
		return s.engine, nil
	}
	if err := s.openLedgers(); err != nil {
		return nil, err
	}
	s.backend = newLazyBackend(s.settings)
	deps := engine.Deps{
		Backend: s.backend,
		Plans:   s.plans,
		Costs:   s.costs,
		Logger:  logging.Component(s.log, "engine"),
		Now:     s.runner.now,
	}
	if sk := sink.New(sink.Config{URL: s.settings.SyncURL, Key: s.settings.SyncKey, Timeout: s.settings.Timeout, Retries: s.settings.Retries}); sk != nil {
		deps.Sink = sk
	}
	s.engine = engine.New(deps, engine.Config{
		Addresses:           s.settings.Contracts,
		BuilderCode:         s.settings.BuilderCode,
		NativeUSDPrice:      s.settings.NativeUSDPrice,
		DriftThreshold:      s.settings.DriftThreshold,
		FeeBps:              s.settings.FeeBps,
		MaterialityFloor:    s.settings.MaterialityFloor,
		MinHarvestBaseUnits: s.settings.MinHarvestBaseUnits,
	})
	return s.engine, nil
}

func (s *runtimeState) tools() (*engine.Tools, error) {
	e, err := s.newEngine()
	if err != nil {
		return nil, err
	}
	return engine.NewTools(e), nil
}

func (s *runtimeState) close() {
	if s.engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		if err := s.engine.WaitPushes(ctx); err != nil {
			s.log.Warn().Err(err).Msg("stats sync still running at exit")
		}
		cancel()
	}
	if s.backend != nil {
		s.backend.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Agent:     s.agentAddress(),
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    clierr.ExitCode(err),
			Type:    clierr.TypeName(err),
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Agent:     s.agentAddress(),
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

// agentAddress is set only when the command actually resolved a signer.
func (s *runtimeState) agentAddress() string {
	if s.backend == nil {
		return ""
	}
	return s.backend.resolvedAddress()
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func annotations(requiresChain, mutates bool) map[string]string {
	a := map[string]string{}
	if requiresChain {
		a[schema.AnnotationRequiresChain] = "true"
	}
	if mutates {
		a[schema.AnnotationMutates] = "true"
	}
	return a
}
