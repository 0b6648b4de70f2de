package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/topicsync/internal/config"
	"github.com/vango-dev/topicsync/internal/errors"
	"github.com/vango-dev/topicsync/pkg/topicsync"
)

func watchCmd(g *globalFlags) *cobra.Command {
	var debugAddr string

	cmd := &cobra.Command{
		Use:   "watch [name:kind...]",
		Short: "Print every change to the given topics",
		Long: `Subscribe to topics and print their values as they change.

Topics are given as name:kind, where kind is one of generic, string,
int, float, set, dict, list or event. A bare name is a generic topic.
Topics listed in topicsync.json are watched as well.

Examples:
  topicsync watch doc:string todos:list
  topicsync watch --url=ws://example.com/ws counter:int
  topicsync watch --debug-addr=:6060 chat:event`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			for _, arg := range args {
				sub, err := config.ParseSubscription(arg)
				if err != nil {
					return err
				}
				cfg.AddSubscription(sub)
			}
			if debugAddr != "" {
				cfg.DebugAddr = debugAddr
			}
			if len(cfg.Subscriptions) == 0 {
				return errors.New("E050").
					WithDetail("No topics to watch").
					WithExample("topicsync watch doc:string todos:list")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&debugAddr, "debug-addr", "", "Serve topics and metrics over HTTP on this address")

	return cmd
}

func runWatch(ctx context.Context, cfg *config.Config, out, errOut io.Writer) error {
	logger, err := newLogger(cfg, errOut)
	if err != nil {
		return err
	}

	s, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	for _, sub := range cfg.Subscriptions {
		topic, err := s.c.Subscribe(ctx, sub.Name, sub.Kind)
		if err != nil {
			return errors.Classify(err).WithDetail("Subscribing to " + sub.Name)
		}
		if err := s.c.Do(ctx, func(*topicsync.StateManager) error {
			watchTopic(topic, out)
			return nil
		}); err != nil {
			return err
		}
	}

	if cfg.DebugAddr != "" {
		srv := &http.Server{
			Addr:              cfg.DebugAddr,
			Handler:           newDebugRouter(s.c, s.reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("debug server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		info(errOut, "debug server on http://%s", cfg.DebugAddr)
	}

	success(errOut, "Watching %d topics on %s as client %s", len(cfg.Subscriptions), cfg.URL, s.c.ClientID())
	return s.wait()
}

// watchTopic prints every value of t, or every emit for event topics.
// It must run on the event loop.
func watchTopic(t topicsync.Topic, w io.Writer) func() {
	name := t.Name()
	if ev, ok := t.(*topicsync.EventTopic); ok {
		return ev.OnEmit(func(args any) {
			fmt.Fprintf(w, "%s ! %s\n", name, formatJSON(args))
		})
	}
	return t.OnSet(func(v any) {
		fmt.Fprintf(w, "%s = %s\n", name, formatJSON(v))
	})
}

func formatJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
