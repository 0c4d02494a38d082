package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotdevdotdev/agentwire-sub003/internal/audio"
	"github.com/dotdevdotdev/agentwire-sub003/internal/lock"
	"github.com/dotdevdotdev/agentwire-sub003/internal/presence"
	"github.com/dotdevdotdev/agentwire-sub003/internal/server"
	"github.com/dotdevdotdev/agentwire-sub003/internal/style"
	"github.com/dotdevdotdev/agentwire-sub003/internal/tmux"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: GroupServices,
	Short:   "Run the session transport server",
	Long: `Serve runs the WebSocket transport server.

Browsers connect to /ws/monitor for polled snapshots or /ws/terminal for
a full interactive attach. Agent pipelines post audio to
/api/sessions/NAME/speak; the server routes it to viewing devices or
falls back to local playback when nobody is watching.`,
	RunE: runServe,
}

var serveListen string

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides config)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, resolver, err := buildResolver()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	instance := lock.New(cfg.StateDir)
	if err := instance.Acquire(cfg.Listen); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			fmt.Printf("%s %v\n", style.Error.Render("✗"), err)
		}
		return err
	}
	defer instance.Release()

	tracker := presence.NewTracker()
	srv := server.New(resolver, tracker, nil, tmux.New(&tmux.LocalRunner{}))
	srv.PollInterval = cfg.Monitor.PollInterval.Duration
	srv.ScrollbackLines = cfg.Monitor.ScrollbackLines

	router := audio.NewRouter(tracker, srv, &audio.ExecPlayer{Command: cfg.Audio.Player})
	router.SuppressionWindow = cfg.Audio.SuppressionWindow.Duration
	srv.Audio = router

	httpSrv := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Handler(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("\n%s Received %s, shutting down...\n", style.Bold.Render("●"), sig)
		cancel()
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("%s Agentwire server listening on %s\n",
		style.Bold.Render("●"), style.Bold.Render(cfg.Listen))
	slog.Info("server starting",
		"listen", cfg.Listen,
		"machines_file", cfg.MachinesFile,
		"poll_interval", cfg.Monitor.PollInterval.Duration)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	fmt.Printf("%s Server stopped\n", style.Success.Render("●"))
	return nil
}
