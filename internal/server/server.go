// Package server orchestrates all components: NATS client, DB, dispatcher, control surface, HTTP status.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/revalidation-dispatch/internal/config"
	"github.com/morezero/revalidation-dispatch/pkg/commsutil"
	"github.com/morezero/revalidation-dispatch/pkg/control"
	"github.com/morezero/revalidation-dispatch/pkg/db"
	"github.com/morezero/revalidation-dispatch/pkg/events"
	"github.com/morezero/revalidation-dispatch/pkg/revalidate"
)

const logPrefix = "server:server"

// databasePinger is the health-check surface of the database layer.
type databasePinger interface {
	Ping(ctx context.Context) error
}

// Server is the revalidation-dispatch orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	db         databasePinger
	httpServer *http.Server
	dispatcher *revalidate.Dispatcher
	resolver   *revalidate.Resolver
	routes     *revalidate.RouteTable
	tokenSrcs  []revalidate.Source
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info(fmt.Sprintf("%s - Starting revalidation-dispatch", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Load route table
	s.routes = revalidate.LoadRouteTable(cfg.RoutesFile)

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc

	// Step 3: Connect to database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		nc.Close()
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}

	// Step 3b: Run migrations if enabled
	if cfg.RunMigrations {
		migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			pool.Close()
			nc.Close()
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
			pool.Close()
			nc.Close()
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	// Step 4: Build the dispatch pipeline. Environment overrides are
	// re-read per resolution so they stay live alongside stored
	// configuration.
	store := db.NewSettingsRepository(pool)
	s.db = store
	s.resolver = revalidate.NewResolverFromSources(
		[]revalidate.Source{
			revalidate.EnvSource("REVALIDATE_BASE_URL"),
			revalidate.StoredSource(store, revalidate.SettingBaseURL),
		},
		[]revalidate.Source{
			revalidate.EnvSource("REVALIDATE_SECRET"),
			revalidate.StoredSource(store, revalidate.SettingSecret),
		},
	)
	mapper := revalidate.NewMapper(s.routes)
	client := revalidate.NewClient(revalidate.NewHTTPClient(cfg.RequestTimeout))
	s.dispatcher = revalidate.NewDispatcher(s.resolver, mapper, client, revalidate.DispatcherOptions{
		Workers:     cfg.Workers,
		MaxAttempts: cfg.MaxAttempts,
	})

	// Step 5: Subscribe to CMS change events
	contentSubject := cfg.ContentSubject
	if contentSubject == "" {
		contentSubject = commsutil.SubjectContentChangedAll
	}
	source := events.NewCommsSource(nc, contentSubject)
	eventSub, err := source.Subscribe(ctx, func(ctx context.Context, event *events.ChangeEvent) {
		// Event-triggered dispatches have no caller watching; outcomes
		// are logged by the dispatcher for operability.
		batchCtx, cancel := context.WithTimeout(ctx, cfg.BatchTimeout)
		defer cancel()
		s.dispatcher.DispatchEvent(batchCtx, event)
	})
	if err != nil {
		pool.Close()
		nc.Close()
		return err
	}

	// Step 6: Subscribe the control surface (request/reply)
	s.tokenSrcs = []revalidate.Source{
		revalidate.EnvSource("CONTROL_TOKEN"),
		revalidate.StoredSource(store, control.SettingControlToken),
	}
	handler := control.NewHandler(s.dispatcher, s.routes, s.tokenSrcs)

	controlSubject := cfg.ControlSubject
	if controlSubject == "" {
		controlSubject = commsutil.SubjectControl
	}
	controlSub, err := nc.Subscribe(controlSubject, func(msg *comms.Msg) {
		var req control.ControlRequest
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode control request: %v", logPrefix, err))
			resp := &control.ControlResponse{
				Ok: false,
				Error: &control.ErrorDetail{
					Code:    "INVALID_REQUEST",
					Message: "Failed to decode request",
				},
			}
			data, _ := commsutil.EncodePayload(resp)
			msg.Respond(data)
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, cfg.BatchTimeout)
		defer cancel()

		resp := handler.Handle(reqCtx, &req)

		data, err := commsutil.EncodePayload(resp)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode control response: %v", logPrefix, err))
			return
		}
		msg.Respond(data)
	})
	if err != nil {
		eventSub.Unsubscribe()
		pool.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, controlSubject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, controlSubject))

	// Step 7: Start HTTP status server
	healthTimeout := cfg.HealthCheckTimeout
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		healthCtx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		h := s.health(healthCtx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP status server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Revalidation dispatcher is ready (events on %s)", logPrefix, contentSubject))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	controlSub.Unsubscribe()
	eventSub.Unsubscribe()
	s.httpServer.Shutdown(ctx)
	nc.Drain()
	pool.Close()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// healthOutput is the /health response body.
type healthOutput struct {
	Status    string `json:"status"`
	Database  bool   `json:"database"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) health(ctx context.Context) healthOutput {
	out := healthOutput{Status: "healthy", Database: true, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := s.db.Ping(ctx); err != nil {
		out.Status = "unhealthy"
		out.Database = false
	}
	return out
}

// homePageTemplate is the HTML for the dispatcher status page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Revalidation Dispatch</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    .set { color: #0066cc; font-weight: bold; }
    .unset { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 700px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>Revalidation Dispatch</h1>
  <p class="meta">Dispatcher health, endpoint configuration, and outcome totals.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Database: {{if .Health.Database}}<span class="set">OK</span>{{else}}<span class="unset">Failed</span>{{end}}</p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Endpoint configuration</h2>
    <table>
      <tr><th>Base URL</th><td>{{if .BaseURL}}{{.BaseURL}}{{else}}<span class="unset">not set</span>{{end}}</td></tr>
      <tr><th>Secret</th><td>{{if .SecretSet}}<span class="set">set</span>{{else}}<span class="unset">not set</span>{{end}}</td></tr>
      <tr><th>Control token</th><td>{{if .TokenSet}}<span class="set">set</span>{{else}}<span class="unset">not set</span>{{end}}</td></tr>
    </table>
  </section>

  <section>
    <h2>Routes</h2>
    <table>
      <thead><tr><th>Content type</th><th>Prefix</th></tr></thead>
      <tbody>
        {{range .Routes}}<tr><td>{{.Type}}</td><td>{{.Prefix}}</td></tr>{{end}}
      </tbody>
    </table>
    <p>Listing slug: <span class="stat">{{.ListingSlug}}</span></p>
    <p>Common slugs: {{range .CommonSlugs}}<span class="stat">{{.}}</span> {{end}}</p>
  </section>

  <section>
    <h2>Dispatch totals</h2>
    <table>
      <tr><th>Success</th><td class="stat">{{.Stats.Success}}</td></tr>
      <tr><th>HTTP error</th><td class="stat">{{.Stats.HTTPError}}</td></tr>
      <tr><th>Transport error</th><td class="stat">{{.Stats.TransportError}}</td></tr>
      <tr><th>Skipped</th><td class="stat">{{.Stats.Skipped}}</td></tr>
    </table>
  </section>
</body>
</html>
`

// routeRow is one row of the status page routes table.
type routeRow struct {
	Type   string
	Prefix string
}

// homeData is the data passed to the status page template. Secret
// material is reduced to set/unset; values are never rendered.
type homeData struct {
	Health      healthOutput
	BaseURL     string
	SecretSet   bool
	TokenSet    bool
	Routes      []routeRow
	ListingSlug revalidate.Target
	CommonSlugs []revalidate.Target
	Stats       revalidate.StatsSnapshot
}

// handleHome returns an HTTP handler for the status page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		endpoint := s.resolver.Resolve(ctx)
		rows := make([]routeRow, 0, len(s.routes.Prefixes))
		for t, p := range s.routes.Prefixes {
			rows = append(rows, routeRow{Type: t, Prefix: p})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Type < rows[j].Type })

		data := homeData{
			Health:      s.health(ctx),
			BaseURL:     endpoint.BaseURL,
			SecretSet:   endpoint.Secret != "",
			TokenSet:    revalidate.FirstNonEmpty(ctx, s.tokenSrcs) != "",
			Routes:      rows,
			ListingSlug: s.routes.ListingSlug,
			CommonSlugs: s.routes.CommonSlugs,
			Stats:       s.dispatcher.Stats(),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
