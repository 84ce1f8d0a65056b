// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// bitvoted runs a bitvote peer: it joins the gossip mesh, mines
// transactions into blocks and maintains the local chain and election
// state.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/bitvote/config"
	"github.com/luxfi/bitvote/node"
)

func main() {
	if err := command().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func command() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "bitvoted",
		Short:        "Runs a bitvote peer",
		RunE:         runFunc,
		SilenceUsage: true,
	}
	config.AddFlags(cmd.Flags())
	return cmd
}

func runFunc(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromFlags(cmd.Flags())
	if err != nil {
		return err
	}

	logger := log.New("component", "bitvote")
	if !cfg.LogCLI {
		logger = log.NewNoOpLogger()
	}

	n, err := node.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		n.Shutdown()
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	n.Shutdown()
	return nil
}
