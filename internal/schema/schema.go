package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Command annotations read by Build. Hosts use them to decide which commands need a
// funded signer and which change on-chain or ledger state.
const (
	AnnotationRequiresChain = "savings/requires-chain"
	AnnotationMutates       = "savings/mutates"
)

type CommandSchema struct {
	Path          string          `json:"path"`
	Use           string          `json:"use"`
	Short         string          `json:"short"`
	Args          string          `json:"args,omitempty"`
	Aliases       []string        `json:"aliases,omitempty"`
	RequiresChain bool            `json:"requires_chain,omitempty"`
	Mutates       bool            `json:"mutates,omitempty"`
	Flags         []FlagSchema    `json:"flags,omitempty"`
	Subcommands   []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd := root
	for _, p := range strings.Fields(commandPath) {
		next := findChild(cmd, p)
		if next == nil {
			return CommandSchema{}, fmt.Errorf("command not found: %s", commandPath)
		}
		cmd = next
	}
	return serialize(cmd), nil
}

func findChild(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return c
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:          strings.TrimSpace(cmd.CommandPath()),
		Use:           cmd.Use,
		Short:         cmd.Short,
		Aliases:       cmd.Aliases,
		RequiresChain: cmd.Annotations[AnnotationRequiresChain] == "true",
		Mutates:       cmd.Annotations[AnnotationMutates] == "true",
		Flags:         collectFlags(cmd),
	}
	if _, args, ok := strings.Cut(cmd.Use, " "); ok {
		s.Args = strings.TrimSpace(args)
	}

	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

func collectFlags(cmd *cobra.Command) []FlagSchema {
	items := []FlagSchema{}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" {
			return
		}
		required := false
		if v, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok && len(v) > 0 && v[0] == "true" {
			required = true
		}
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  required,
		})
	})
	return items
}
