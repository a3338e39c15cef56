package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alialobidm/polkadot-api/chainhead"
	"github.com/alialobidm/polkadot-api/internal/config"
	"github.com/alialobidm/polkadot-api/internal/logz"
)

var (
	endpoint   = "ws://127.0.0.1:9944"
	configPath = ""
	logLevel   = "info"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "papi",
		Short: "Chain-head CLI for state calls and transaction submission",
		Long:  "Command-line interface for inspecting chain state and submitting signed transactions over a chain-head WebSocket connection",
	}

	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "ws://127.0.0.1:9944", "chain RPC endpoint URL")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		headCommand(),
		blockCommand(),
		callCommand(),
		submitCommand(),
		watchCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newSource builds and starts a socket source from the config file if
// given, or from the endpoint flag.
func newSource(ctx context.Context) (*chainhead.SocketSource, error) {
	var sockCfg *chainhead.SocketConfig
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		sockCfg = chainhead.SocketConfigFrom(cfg)
	} else {
		sockCfg = chainhead.DefaultSocketConfig(endpoint)
		level, err := logz.ParseLevel(logLevel)
		if err != nil {
			return nil, err
		}
		sockCfg.LogLevel = level
	}

	source, err := chainhead.NewSocketSource(sockCfg)
	if err != nil {
		return nil, err
	}
	if err := source.Start(ctx); err != nil {
		return nil, err
	}
	return source, nil
}

// awaitHead blocks until the source has seen a finalized head, which
// also guarantees the connection is up.
func awaitHead(ctx context.Context, source *chainhead.SocketSource) (*chainhead.Block, error) {
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	head, err := source.LatestFinalized(waitCtx)
	if err != nil {
		return nil, fmt.Errorf("no finalized head observed: %w", err)
	}
	return head, nil
}

func headCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "head",
		Short: "Print the latest finalized head",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			source, err := newSource(ctx)
			if err != nil {
				return err
			}
			defer source.Stop()

			head, err := awaitHead(ctx, source)
			if err != nil {
				return err
			}

			prettyPrint(map[string]any{
				"hash":   head.Hash,
				"parent": head.Parent,
				"number": head.Number,
			})
			return nil
		},
	}
}

func blockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "block <hash>",
		Short: "Fetch a block descriptor by hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !strings.HasPrefix(args[0], "0x") {
				return fmt.Errorf("block hash must be 0x-prefixed hex")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			source, err := newSource(ctx)
			if err != nil {
				return err
			}
			defer source.Stop()

			if _, err := awaitHead(ctx, source); err != nil {
				return err
			}

			block, err := source.Block(ctx, args[0])
			if err != nil {
				return fmt.Errorf("block lookup failed: %w", err)
			}

			prettyPrint(map[string]any{
				"hash":       block.Hash,
				"parent":     block.Parent,
				"number":     block.Number,
				"extrinsics": len(block.Extrinsics),
				"events":     len(block.Events),
			})
			return nil
		},
	}
}

func callCommand() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "call <method> <args-hex>",
		Short: "Perform a raw runtime state call",
		Long:  "Performs a state call with pre-encoded arguments, e.g.: papi call Core_version 0x",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !strings.HasPrefix(args[1], "0x") {
				return fmt.Errorf("call arguments must be 0x-prefixed hex")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			source, err := newSource(ctx)
			if err != nil {
				return err
			}
			defer source.Stop()

			head, err := awaitHead(ctx, source)
			if err != nil {
				return err
			}

			blockHash := at
			if blockHash == "" {
				blockHash = head.Hash
			}

			result, err := source.Call(ctx, blockHash, args[0], args[1])
			if err != nil {
				return fmt.Errorf("state call failed: %w", err)
			}

			prettyPrint(map[string]any{
				"method": args[0],
				"at":     blockHash,
				"result": result,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "block hash to call at (default: finalized head)")
	return cmd
}

func submitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <extrinsic-hex>",
		Short: "Submit a signed extrinsic to the transaction pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !strings.HasPrefix(args[0], "0x") {
				return fmt.Errorf("extrinsic must be 0x-prefixed hex")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			source, err := newSource(ctx)
			if err != nil {
				return err
			}
			defer source.Stop()

			if _, err := awaitHead(ctx, source); err != nil {
				return err
			}

			if err := source.SubmitTransaction(ctx, args[0]); err != nil {
				return fmt.Errorf("submission rejected: %w", err)
			}

			fmt.Println("submitted")
			return nil
		},
	}
}

func watchCommand() *cobra.Command {
	var finalizedOnly bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream chain-head announcements until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			source, err := newSource(ctx)
			if err != nil {
				return err
			}
			defer source.Stop()

			finalized, err := source.WatchFinalized(ctx)
			if err != nil {
				return err
			}

			var best <-chan *chainhead.Block
			if !finalizedOnly {
				best, err = source.WatchBest(ctx)
				if err != nil {
					return err
				}
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case b, ok := <-best:
					if !ok {
						return nil
					}
					fmt.Printf("best      #%d %s\n", b.Number, b.Hash)
				case f, ok := <-finalized:
					if !ok {
						return nil
					}
					fmt.Printf("finalized #%d %s\n", f.Number, f.Hash)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&finalizedOnly, "finalized", false, "only stream finalized blocks")
	return cmd
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", v)
		return
	}
	fmt.Println(string(data))
}
