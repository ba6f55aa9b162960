package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/dscopilot/internal/api"
	"github.com/kalambet/dscopilot/internal/bridge"
	"github.com/kalambet/dscopilot/internal/composer"
	"github.com/kalambet/dscopilot/internal/config"
	"github.com/kalambet/dscopilot/internal/figma"
	"github.com/kalambet/dscopilot/internal/llm"
	"github.com/kalambet/dscopilot/internal/plugin"
	"github.com/kalambet/dscopilot/internal/protocol"
	"github.com/kalambet/dscopilot/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat endpoint, script library and plugin bridge (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		demo, _ := cmd.Flags().GetBool("demo")
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(demo, withMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Connect an in-memory demo document to a running server as a plugin",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlugin()
	},
}

func init() {
	serveCmd.Flags().Bool("demo", false, "attach an in-memory demo document as a plugin")
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools on stdio")
}

func setupLogging(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

func watchInterval(cfg config.Config) time.Duration {
	d, err := time.ParseDuration(cfg.Plugin.WatchInterval)
	if err != nil || d <= 0 {
		slog.Warn("invalid plugin watch interval, using default 250ms", "value", cfg.Plugin.WatchInterval, "error", err)
		return 250 * time.Millisecond
	}
	return d
}

// chatProvider is an llm.Provider that owns a client.
type chatProvider interface {
	llm.Provider
	Model() string
	Close() error
}

func newProvider(ctx context.Context, cfg config.Config) (chatProvider, error) {
	if cfg.LLM.Provider == config.ProviderOllama {
		o := llm.NewOllama(cfg.Ollama.URL, cfg.Ollama.Model)
		if err := o.EnsureModel(ctx, os.Stderr); err != nil {
			return nil, err
		}
		return o, nil
	}
	g, err := llm.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func runServer(demo, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "dscopilot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.Log.Level)

	// Bearer token for the library and the bridge.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("getting API token: %w", err)
	}
	slog.Info("API bearer token available")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer provider.Close()
	slog.Info("chat provider ready", "provider", cfg.LLM.Provider, "model", provider.Model())

	hub := bridge.NewHub(logger)

	chatHandler := api.NewChatHandler(api.ChatDeps{
		Provider: provider,
		Composer: composer.New(cfg.Composer.MaxContextTokens, provider.Model()),
		Library:  store,
		Autosave: cfg.Library.Autosave,
		Logger:   logger,
	})
	appHandler := api.NewAppHandler(api.AppDeps{
		Store:  store,
		Relay:  hub,
		Bridge: hub,
		Token:  apiToken,
		Logger: logger,
	})

	// Chat routes are static and win over the /api mount.
	topRouter := chi.NewRouter()
	topRouter.Handle("/health", chatHandler)
	topRouter.Handle("/api/chat", chatHandler)
	topRouter.Handle("/api/models", chatHandler)
	topRouter.Mount("/api", appHandler)

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))
	srv := &http.Server{
		Addr:    addr,
		Handler: topRouter,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	mcpDeps := api.MCPDeps{Store: store, Relay: hub}
	if demo {
		host := plugin.NewHost(figma.NewDemoDocument(), hub, logger)
		hub.AttachPlugin(gctx, host.Handle)
		mcpDeps.Host = host

		watcher := plugin.NewWatcher(host, watchInterval(cfg))
		g.Go(func() error {
			watcher.Run(gctx)
			return nil
		})
		slog.Info("demo document attached", "page", host.Selection().Page.Name)
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(mcpDeps))
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "dscopilot listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runPlugin plays the host plugin from outside the server: it answers UI
// messages from the bridge against an in-memory demo document.
func runPlugin() error {
	cfg := config.LoadOptional()
	logger := setupLogging(cfg.Log.Level)

	token, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("getting API token: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseURL := fmt.Sprintf("http://%s", net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port)))
	conn, err := bridge.Dial(ctx, baseURL, bridge.RolePlugin, token)
	if err != nil {
		return err
	}
	defer conn.Close()

	host := plugin.NewHost(figma.NewDemoDocument(), plugin.PosterFunc(func(msg protocol.PluginMessage) {
		if err := conn.Send(msg); err != nil {
			logger.Warn("posting to bridge", "type", msg.Type, "error", err)
		}
	}), logger)
	printSuccess("Plugin connected to %s", baseURL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		plugin.NewWatcher(host, watchInterval(cfg)).Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		for {
			msg, err := conn.Receive()
			if reply, ok := protocol.Rejection(msg, err); ok {
				slog.Warn("rejecting automator script", "id", msg.ID, "error", err)
				if err := conn.Send(reply); err != nil {
					return fmt.Errorf("bridge closed: %w", err)
				}
				continue
			}
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("bridge closed: %w", err)
			}
			host.Handle(gctx, msg)
		}
	})
	return g.Wait()
}

func showStatus(ctx context.Context) error {
	cfg := config.LoadOptional()

	serverURL := fmt.Sprintf("http://%s", net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port)))
	client := &http.Client{Timeout: 2 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on %s", serverURL)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	switch cfg.LLM.Provider {
	case config.ProviderOllama:
		models, err := llm.NewOllama(cfg.Ollama.URL, cfg.Ollama.Model).ListModels(ctx)
		if err != nil {
			printStatus("Ollama", "not reachable at %s", cfg.Ollama.URL)
		} else {
			printStatus("Ollama", "%s (%d models available)", cfg.Ollama.Model, len(models))
		}
	default:
		if cfg.Gemini.APIKey == "" {
			printStatus("Gemini", "API key not set")
		} else {
			printStatus("Gemini", "%s", cfg.Gemini.Model)
		}
	}
	printStatus("Autosave", "%t", cfg.Library.Autosave)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
