package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/osintlab/robin/config"
	srv "github.com/osintlab/robin/internal/server"
	"github.com/osintlab/robin/internal/stream"
)

// investigateCMD runs a single investigation from the terminal and
// prints the event stream as it arrives.
func investigateCMD() *cobra.Command {
	var cfgPath string
	var investigate = &cobra.Command{
		Use:   "investigate [query]",
		Short: "Run a one-shot investigation and print its progress",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			query := args[0]

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, err := srv.BuildEngine(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer engine.Close()

			id, events, err := engine.Orchestrator.Start(ctx, query)
			if err != nil {
				return err
			}
			fmt.Printf("investigation %s\n\n", id)

			var failed bool
			for ev := range events {
				switch ev.Type {
				case stream.EventText:
					fmt.Println(ev.Data.(stream.TextData).Content)
				case stream.EventToolStart:
					data := ev.Data.(stream.ToolStartData)
					fmt.Printf("-> %s\n", data.Tool)
				case stream.EventToolEnd:
					data := ev.Data.(stream.ToolEndData)
					if data.Error != "" {
						fmt.Printf("<- %s failed: %s\n", data.Tool, data.Error)
					} else {
						fmt.Printf("<- %s (%dms)\n", data.Tool, data.DurationMS)
					}
				case stream.EventSubAgentStart:
					fmt.Printf("-> delegating to %s\n", ev.Data.(stream.SubAgentStartData).AgentType)
				case stream.EventSubAgentEnd:
					data := ev.Data.(stream.SubAgentEndData)
					fmt.Printf("<- %s done (success=%v)\n", data.AgentType, data.Success)
				case stream.EventComplete:
					fmt.Printf("\n%s\n", ev.Data.(stream.CompleteData).Text)
				case stream.EventError:
					data := ev.Data.(stream.ErrorData)
					fmt.Fprintf(os.Stderr, "error [%s]: %s\n", data.Code, data.Message)
					failed = true
				}
			}
			if failed {
				os.Exit(1)
			}
			return nil
		},
	}
	investigate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return investigate
}
