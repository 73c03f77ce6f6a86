// greetguard MCP server checks that the names greeted in Gmail drafts belong to their recipients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2"

	"github.com/hal9000y/greetguard/internal/auth"
	"github.com/hal9000y/greetguard/internal/config"
	"github.com/hal9000y/greetguard/internal/greeting"
	"github.com/hal9000y/greetguard/internal/gservice"
	"github.com/hal9000y/greetguard/internal/match"
	"github.com/hal9000y/greetguard/internal/recipient"
	"github.com/hal9000y/greetguard/internal/tool"
	"github.com/hal9000y/greetguard/internal/validation"
)

func main() {
	httpAddr := flag.String("http-addr", "localhost:0", "HTTP SERVER listen addr")
	oauthTokenFile := flag.String("oauth-token-file", "./data/greetguard-token.json", "Path to cache google oauth token, empty to avoid storing")
	oauthURLParam := flag.String("oauth-url", "", "OAuth URL")
	envFileParam := flag.String("env-file", "", "Path to env file")
	enableStdio := flag.Bool("stdio", false, "Enable stdio transport for MCP (disables stdout logging)")
	logFile := flag.String("log-file", "", "Path to log file (only used with stdio transport, otherwise logs to stdout)")

	flag.Parse()

	proc, err := config.LoadProcess(*envFileParam)
	if err != nil {
		panic(fmt.Errorf("config.LoadProcess failed: %w", err))
	}

	logger, persistLogs := setupLogger(proc, *enableStdio, *logFile)
	defer persistLogs()
	slog.SetDefault(logger)

	ln := mustListen(httpAddr)
	cfg := mustCreateOauthCfg(proc, ln.Addr().String(), *oauthURLParam)

	if *oauthTokenFile == "" {
		logger.Warn("token is not persisted, -oauth-token-file is empty")
	}
	tok, err := auth.NewToken(cfg, *oauthTokenFile, auth.WithLogger(logger))
	if err != nil {
		panic(fmt.Errorf("auth.NewToken failed: %w", err))
	}

	defer func() {
		logger.Info("Persisting token if exists")
		if err := tok.Persist(); err != nil {
			logger.Error("tok.Persist failed", "error", err)
		}
	}()

	pipeline := mustCreatePipeline(proc, logger)
	store := config.NewMemoryStore(nil)
	if err := config.SaveSettings(context.Background(), store, proc.Settings()); err != nil {
		panic(fmt.Errorf("config.SaveSettings failed: %w", err))
	}

	mux := http.NewServeMux()
	mux.Handle("/oauth", auth.NewHTTPHandler(tok, logger))

	server := tool.NewServer(tool.Deps{
		Drafts:      gservice.NewGmail(cfg, tok),
		Pipeline:    pipeline,
		Store:       store,
		RetryPolicy: proc.RetryPolicy(),
		Breaker:     proc.CircuitBreaker(),
		Diagnostics: validation.NewDiagnostics(100, logger),
		Logger:      logger,
	})
	mcpHTTP := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server { return server }, nil)

	mux.Handle("/mcp", mcpHTTP)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)

	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)

	if _, err := tok.OAuthToken(); errors.Is(err, auth.ErrTokenNotSet) {
		openBrowser(logger, cfg.RedirectURL)
	}

	stopHTTP, errHTTPCh := serveHTTP(logger, srv, ln)
	defer stopHTTP()

	var errStdioCh <-chan error
	if *enableStdio {
		var stopStdio func()
		stopStdio, errStdioCh = serveStdio(logger, server)
		defer stopStdio()
	}

	select {
	case err := <-errHTTPCh:
		logger.Error("Error http server", "error", err)
	case err := <-errStdioCh:
		logger.Error("Error stdio", "error", err)
	case <-shutdown:
		logger.Info("Shutdown signal received")
	}
}

func mustCreatePipeline(proc config.Process, logger *slog.Logger) *validation.Pipeline {
	locales, err := greeting.LoadLocaleFile(proc.LocaleFile)
	if err != nil {
		panic(fmt.Errorf("greeting.LoadLocaleFile failed: %w", err))
	}

	extractor, err := greeting.NewExtractor(greeting.WithLocales(locales...), greeting.WithLogger(logger))
	if err != nil {
		panic(fmt.Errorf("greeting.NewExtractor failed: %w", err))
	}

	return validation.NewPipeline(extractor, recipient.NewParser(), match.NewMatcher(match.DefaultOptions()),
		validation.WithPipelineLogger(logger))
}

func serveStdio(logger *slog.Logger, srv *mcp.Server) (func(), <-chan error) {
	errStdioCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(errStdioCh)
		logger.Info("Starting stdio transport")

		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			err = fmt.Errorf("srv.Run failed: %w", err)
			errStdioCh <- err
		}
	}()

	return func() {
		cancel()

		<-errStdioCh
		logger.Info("Stdio transport stopped")
	}, errStdioCh
}

func serveHTTP(logger *slog.Logger, srv *http.Server, ln net.Listener) (func(), <-chan error) {
	errHTTPCh := make(chan error, 1)
	go func() {
		defer close(errHTTPCh)

		logger.Info("Starting http server", "addr", ln.Addr().String())

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("srv.Serve failed: %w", err)
			logger.Error("http server failed", "error", err)
			errHTTPCh <- err
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("srv.Shutdown failed", "error", err)
		}

		<-errHTTPCh
		logger.Info("HTTP server stopped")
	}, errHTTPCh
}

func mustListen(httpAddr *string) net.Listener {
	if httpAddr == nil {
		panic("-http-addr must be provided")
	}

	ln, err := net.Listen("tcp", *httpAddr)
	if err != nil {
		panic(fmt.Errorf("net.Listen failed: %w", err))
	}

	return ln
}

func mustCreateOauthCfg(proc config.Process, lnAddr, oauthURLParam string) *oauth2.Config {
	if proc.GoogleClientID == "" || proc.GoogleClientSecret == "" {
		panic("Env variables GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}

	oauthURL := fmt.Sprintf("http://%s/oauth", lnAddr)
	if oauthURLParam != "" {
		oauthURL = oauthURLParam
	}

	return auth.NewConfig(proc.GoogleClientID, proc.GoogleClientSecret, oauthURL)
}

// setupLogger picks the log output: a file when given, nothing under stdio (stdout carries the
// protocol), stdout otherwise.
func setupLogger(proc config.Process, enableStdio bool, logFile string) (*slog.Logger, func()) {
	out := io.Writer(os.Stdout)
	closeFn := func() {}

	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			panic(fmt.Errorf("failed to open log file: %w", err))
		}
		out = f
		closeFn = func() {
			if err := f.Close(); err != nil {
				fmt.Fprintln(os.Stderr, fmt.Errorf("f.Close failed: %w", err))
			}
		}
	case enableStdio:
		out = io.Discard
	}

	opts := &slog.HandlerOptions{Level: proc.LogLevelValue()}

	var handler slog.Handler
	if proc.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closeFn
}

func openBrowser(logger *slog.Logger, url string) {
	url = fmt.Sprintf("%s?redirect=1", url)
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		logger.Warn("Could not open browser automatically, please copy and open link in the browser", "error", err, "url", url)
	}
}
