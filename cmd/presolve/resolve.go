package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgorny/pkgcore/atom"
	"github.com/mgorny/pkgcore/repo"
	"github.com/mgorny/pkgcore/resolver"
)

func newResolveCommand() *cobra.Command {
	var (
		deep             bool
		upgrade          bool
		nodeps           bool
		dropCycles       bool
		forceReplacement bool
		emptyTree        bool
		ignoreFailures   bool
		eapi             string
	)

	cmd := &cobra.Command{
		Use:   "resolve <atom>...",
		Short: "Resolve target atoms and print the emitted merge plan",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd.OutOrStderr())

			tree, err := loadRepo(global.repoDir)
			if err != nil {
				return err
			}
			installed, err := loadVDB(global.vdbFile)
			if err != nil {
				return err
			}
			ups, err := loadUpdates(global.updatesDir, eapi)
			if err != nil {
				return err
			}

			targets := make([]*atom.Atom, len(args))
			for i, t := range args {
				a, err := atom.Parse(t, eapi)
				if err != nil {
					return fmt.Errorf("presolve: parsing target %q: %w", t, err)
				}
				targets[i] = a
			}

			strategy := resolver.MinInstall
			if upgrade {
				strategy = resolver.Upgrade
			}
			if emptyTree {
				strategy = resolver.EmptyTree
			}

			r := resolver.NewResolver(eapi, installed, []repo.Repository{tree})
			r.Strategy = strategy
			r.Updates = ups
			r.Flags = resolver.Flags{
				Deep: deep, Upgrade: upgrade, NoDeps: nodeps,
				DropCycles: dropCycles, ForceReplacement: forceReplacement,
				EmptyTree: emptyTree, IgnoreFailures: ignoreFailures,
			}

			log.Info("resolving", "targets", len(targets), "strategy", strategy)
			g, err := r.Resolve(context.Background(), targets)
			if err != nil {
				return err
			}
			log.Info("resolved", "graph_id", g.ID, "nodes", len(g.Nodes), "edges", len(g.Edges))
			ops, err := r.Plan(g)
			if err != nil {
				return err
			}
			for _, op := range ops {
				fmt.Fprintln(cmd.OutOrStdout(), op.String())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&deep, "deep", "D", false, "verify already-installed dependencies too")
	cmd.Flags().BoolVarP(&upgrade, "upgrade", "u", false, "prefer the highest acceptable version per (key, slot)")
	cmd.Flags().BoolVar(&nodeps, "nodeps", false, "disable dependency resolution")
	cmd.Flags().BoolVarP(&dropCycles, "ignore-cycles", "i", false, "drop unbreakable cycles instead of failing")
	cmd.Flags().BoolVarP(&forceReplacement, "replace", "r", false, "reinstall target atoms even if already installed")
	cmd.Flags().BoolVarP(&emptyTree, "empty", "e", false, "ignore the installed view when choosing versions")
	cmd.Flags().BoolVar(&ignoreFailures, "ignore-failures", false, "continue past unresolved targets")
	cmd.Flags().StringVar(&eapi, "eapi", "8", "EAPI to parse atoms and dependency strings under")
	return cmd
}
