package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"copilots/internal/chat"
	"copilots/internal/config"
	"copilots/internal/gateway"
	"copilots/internal/profiles"
	"copilots/internal/server"
	"copilots/internal/sse"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configPath string
	addr       string
	profile    string
	queryURL   string
)

var rootCmd = &cobra.Command{
	Use:           "copilot",
	Short:         "A streaming AI copilot backend for the OpenBB terminal.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /v1/query and /copilots.json.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, func(c *config.Config) {
			if addr != "" {
				c.Addr = addr
			}
			if profile != "" {
				c.Profile = profile
			}
		})
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		copilot, err := gateway.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}

		var descriptor server.Option
		if cfg.CopilotsFile != "" {
			descriptor, err = server.LoadDescriptorFile(cfg.CopilotsFile)
		} else {
			descriptor, err = server.WithDescriptor(copilot.Profile.Descriptor(localURL(cfg.Addr) + "/v1/query"))
		}
		if err != nil {
			return err
		}
		srv := server.New(copilot.Service,
			server.WithAddr(cfg.Addr),
			server.WithOrigins(cfg.AllowedOrigins),
			server.WithLogger(logger),
			server.WithProfile(copilot.Profile.Name),
			server.WithAnalyst(copilot.Service),
			descriptor,
		)

		hangup := make(chan os.Signal, 1)
		signal.Notify(hangup, syscall.SIGHUP)
		defer signal.Stop(hangup)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.ListenAndServe(gctx)
		})
		g.Go(func() error {
			return reloadOnHangup(gctx, hangup, srv, cfg.CopilotsFile, logger)
		})
		return g.Wait()
	},
}

// reloadOnHangup re-reads path into srv on every signal until ctx is done.
// Without a copilots file the descriptor is generated and there is nothing
// to reload.
func reloadOnHangup(ctx context.Context, hangup <-chan os.Signal, srv *server.Server, path string, logger log.FieldLogger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hangup:
			if path == "" {
				logger.Info("no copilots file configured, nothing to reload")
				continue
			}
			if err := srv.ReloadDescriptorFile(path); err != nil {
				logger.WithError(err).Warn("reload copilots file")
				continue
			}
			logger.WithField("path", path).Info("reloaded copilots file")
		}
	}
}

var queryCmd = &cobra.Command{
	Use:   "query MESSAGE...",
	Short: "Send a single question to a running copilot and print the answer.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := chat.QueryRequest{Messages: []chat.Turn{{
			Role: chat.RoleHuman,
			Text: strings.Join(args, " "),
		}}}
		body, err := json.Marshal(&req)
		if err != nil {
			return err
		}
		hreq, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, queryURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		hreq.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(hreq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("copilot returned %s: %s", resp.Status, bytes.TrimSpace(msg))
		}
		return printEvents(cmd.OutOrStdout(), sse.NewReader(resp.Body))
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the built-in copilot profiles.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, name := range profiles.Names() {
			p, _ := profiles.Get(name)
			fmt.Fprintf(out, "%-12s %-11s %s\n", p.Name, p.Provider, p.Model)
		}
	},
}

func printEvents(out io.Writer, r *sse.Reader) error {
	for {
		ev, err := r.Recv()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
		switch ev.Kind {
		case chat.EventTextDelta:
			fmt.Fprint(out, ev.Delta)
		case chat.EventFunctionCall:
			b, err := json.Marshal(ev.Call)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "function call: %s\n", b)
		}
	}
}

func newLogger(cfg config.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := log.New()
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a JSON config file")
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default "+config.DefaultAddr+")")
	serveCmd.Flags().StringVar(&profile, "profile", "", "copilot profile to serve (default "+config.DefaultProfile+")")
	queryCmd.Flags().StringVar(&queryURL, "url", "http://localhost"+config.DefaultAddr+"/v1/query", "query endpoint of a running copilot")

	rootCmd.AddCommand(serveCmd, queryCmd, profilesCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
