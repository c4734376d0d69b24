// ABOUTME: Console orchestrator that wires the store, gateway, bots, and webhooks
// ABOUTME: Manages the HTTP server, optional tsnet listener, and shutdown lifecycle

package console

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/waplane/waplane/internal/bot"
	"github.com/waplane/waplane/internal/config"
	"github.com/waplane/waplane/internal/conversation"
	"github.com/waplane/waplane/internal/dedupe"
	"github.com/waplane/waplane/internal/gateway"
	"github.com/waplane/waplane/internal/store"
	"github.com/waplane/waplane/internal/webhook"
)

// Console orchestrates the waplane server components: the conversation
// service, the gateway sink, and the operator HTTP API.
type Console struct {
	config      *config.Config
	store       store.Store
	service     *conversation.Service
	broadcaster conversation.Broadcaster
	dispatcher  *webhook.Dispatcher
	tracker     *dedupe.Tracker
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// initStore creates a store from config, honoring the WAPLANE_DB_PATH
// override.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("WAPLANE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// newBroadcaster selects the realtime provider. Only the in-memory provider
// exists today; config.Validate rejects anything else.
func newBroadcaster(cfg *config.Config, logger *slog.Logger) conversation.Broadcaster {
	return conversation.NewMemoryBroadcaster(logger)
}

// New creates a new Console instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Console, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gwClient := gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Gateway.Token, cfg.Gateway.SendTimeout, logger)
	forwarder := bot.NewHTTPForwarder(cfg.Bots.ForwardTimeout, logger)
	dispatcher := webhook.NewDispatcher(s, []byte(cfg.Webhooks.SigningKey), cfg.Webhooks.AttemptTimeout, nil, logger)
	broadcaster := newBroadcaster(cfg, logger)

	svc := conversation.NewService(s, gwClient, forwarder, dispatcher, broadcaster, cfg.Account.ID, logger)

	tracker := dedupe.NewTracker(cfg.Gateway.DedupeTTL, 100_000)
	sink := gateway.NewSink(svc, tracker, cfg.Gateway.SinkToken, logger)

	c := &Console{
		config:      cfg,
		store:       s,
		service:     svc,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		tracker:     tracker,
		logger:      logger.With("component", "console"),
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", c.handleHealth)
	mux.HandleFunc("/health/ready", c.handleReady)

	// Gateway webhook sink
	mux.Handle("/webhooks/gateway", sink)

	// Operator API
	c.registerAPIRoutes(mux)

	c.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return c, nil
}

// Service exposes the conversation service for tests.
func (c *Console) Service() *conversation.Service {
	return c.service
}

// Run starts the console server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (c *Console) Run(ctx context.Context) error {
	ln, err := c.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := c.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		c.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		c.logger.Error("server error", "error", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := c.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (c *Console) setupListener(ctx context.Context) (net.Listener, error) {
	if c.config.Tailscale.Enabled {
		if c.config.Server.HTTPAddr != "" {
			c.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", c.config.Server.HTTPAddr)
		}
		return c.setupTailscaleListener(ctx)
	}

	c.logger.Info("starting console", "http_addr", c.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", c.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "waplane", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and returns its HTTP listener.
func (c *Console) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := c.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	c.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	c.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := c.tsnetServer.Up(ctx)
	if err != nil {
		_ = c.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	c.logTailscaleStatus(tsCfg.Hostname, status)

	switch {
	case tsCfg.Funnel:
		c.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := c.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = c.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return c.createTailscaleTLSListener()
	default:
		ln, err := c.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = c.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// logTailscaleStatus logs info about the tailscale node status.
func (c *Console) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		c.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	c.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (c *Console) createTailscaleTLSListener() (net.Listener, error) {
	c.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := c.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = c.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := c.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = c.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the console and releases resources. In-flight
// webhook retries are drained before the store closes.
func (c *Console) Shutdown(ctx context.Context) error {
	c.logger.Info("shutting down console")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", c.httpServer.Shutdown(ctx))

	if c.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", c.tsnetServer.Close())
	}

	c.dispatcher.Wait()
	c.broadcaster.Close()
	errs = appendCloseError(errs, "store close", c.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (c *Console) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers queries.
func (c *Console) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := c.store.ListAgentBots(r.Context(), c.config.Account.ID); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
