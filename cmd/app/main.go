package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sqliteadapter "github.com/IC-FOODS/pafh-ontology/internal/adapters/db/sqlite"
	httpadapter "github.com/IC-FOODS/pafh-ontology/internal/adapters/http"
	rpcadapter "github.com/IC-FOODS/pafh-ontology/internal/adapters/rpcjson"
	"github.com/IC-FOODS/pafh-ontology/internal/adapters/source"
	"github.com/IC-FOODS/pafh-ontology/internal/application"
	"github.com/IC-FOODS/pafh-ontology/internal/domain"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "pafh",
		Usage: "Federated knowledge-source gateway server and CLI",
		Commands: []*cli.Command{
			serverCommand(),
			authCommand(),
			capabilitiesCommand(),
			sourcesCommand(),
			searchCommand(),
			queryCommand(),
			writeBackCommand(),
			auditCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runServer(ctx, ":8080", "/tmp/pafh.sock", "pafh.db", "", "admin", "admin")
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "rpc-socket", Value: "/tmp/pafh.sock", Usage: "JSON-RPC unix socket path"},
			&cli.StringFlag{Name: "db-path", Value: "pafh.db", Usage: "SQLite database path"},
			&cli.StringFlag{Name: "runtime-dir", Usage: "directory for virtual-RDF runtime property files"},
			&cli.StringFlag{Name: "bootstrap-admin-username", Value: "admin", Usage: "initial admin username"},
			&cli.StringFlag{Name: "bootstrap-admin-password", Value: "admin", Usage: "initial admin password when users are empty"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServer(ctx, c.String("addr"), c.String("rpc-socket"), c.String("db-path"), c.String("runtime-dir"), c.String("bootstrap-admin-username"), c.String("bootstrap-admin-password"))
		},
	}
}

func runServer(ctx context.Context, addr, rpcSocket, dbPath, runtimeDir, bootstrapUser, bootstrapPassword string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := sqliteadapter.Open(dbPath)
	if err != nil {
		return err
	}
	if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
		return err
	}

	repo := sqliteadapter.NewGatewayRepository(db)
	registry := source.NewRegistry(logger, repo.DB())

	var runtime domain.RuntimeApplier
	if runtimeDir != "" {
		runtime = source.NewRuntimeMaterializer(runtimeDir, nil, logger)
	}

	service := application.NewGatewayService(repo, registry, runtime, logger)
	if err := service.BootstrapAdmin(ctx, bootstrapUser, bootstrapPassword); err != nil {
		return err
	}
	if err := service.SeedDefaultSources(ctx); err != nil {
		return err
	}
	if err := service.SyncRegistry(ctx); err != nil {
		return err
	}

	router := httpadapter.NewRouter(service, logger)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(rpcSocket, service)
	if err != nil {
		return err
	}

	defer func() {
		_ = rpcSrv.Close()
	}()
	logger.Info("json-rpc listening", zap.String("socket", rpcSocket))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authentication commands",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Login and store CLI token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Value: "uds"},
					&cli.StringFlag{Name: "server", Value: "http://127.0.0.1:8080"},
					&cli.StringFlag{Name: "socket", Value: "/tmp/pafh.sock"},
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "token-name", Value: "cli"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := cliConfig{Transport: c.String("transport"), Server: c.String("server"), Socket: c.String("socket")}
					var out struct {
						Token    string `json:"token"`
						Username string `json:"username"`
					}
					err := doLogin(ctx, cfg, c.String("username"), c.String("password"), c.String("token-name"), &out)
					if err != nil {
						return err
					}
					cfg.Token = out.Token
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Printf("logged in as %s\n", out.Username)
					return nil
				},
			},
			{
				Name:  "whoami",
				Usage: "Show current authenticated user",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out struct {
						UserID    uint   `json:"user_id"`
						Username  string `json:"username"`
						Superuser bool   `json:"superuser"`
					}
					if err := doWhoAmI(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printKV([][2]string{
						{"user_id", uintToString(out.UserID)},
						{"username", out.Username},
						{"superuser", fmt.Sprintf("%t", out.Superuser)},
					})
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Clear local CLI auth token",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					cfg.Token = ""
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Println("logged out")
					return nil
				},
			},
		},
	}
}

func capabilitiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "capabilities",
		Usage: "Show the contract the server offers this caller",
		Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var out domain.CapabilitySnapshot
			if err := doCapabilities(ctx, cfg, &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			printCapabilities(out)
			return nil
		},
	}
}

func sourcesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sources",
		Usage: "Knowledge source commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List accessible sources",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out struct {
						Sources []application.SourceSummary `json:"sources"`
					}
					if err := doSourcesList(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out.Sources)
					}
					printSources(out.Sources)
					return nil
				},
			},
			{
				Name:  "add-virtual-rdf",
				Usage: "Register a virtual-RDF source over a relational database",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "description"},
					&cli.StringFlag{Name: "conn-string", Required: true, Usage: "relational connection string"},
					&cli.StringFlag{Name: "db-user"},
					&cli.StringFlag{Name: "db-password"},
					&cli.StringFlag{Name: "sparql-url", Usage: "endpoint the query engine exposes"},
					&cli.BoolFlag{Name: "public"},
					&cli.BoolFlag{Name: "allow-write-back"},
					&cli.BoolFlag{Name: "apply-runtime", Usage: "materialize runtime properties on the server"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					isPublic := c.Bool("public")
					in := application.VirtualRDFSourceInput{
						Name:        c.String("name"),
						Description: c.String("description"),
						Connection: domain.ConnectionConfig{
							RDBMSConnString: c.String("conn-string"),
							DBUser:          c.String("db-user"),
							DBPassword:      c.String("db-password"),
							SparqlURL:       c.String("sparql-url"),
						},
						Security:       domain.SecurityPolicy{IsPublic: &isPublic},
						AllowWriteBack: c.Bool("allow-write-back"),
						ApplyRuntime:   c.Bool("apply-runtime"),
					}
					var out sourceMutationResult
					if err := doSourceCreateVirtualRDF(ctx, cfg, in, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printSourceMutation(out)
					return nil
				},
			},
			{
				Name:  "configure",
				Usage: "Update source configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "description"},
					&cli.BoolFlag{Name: "active"},
					&cli.BoolFlag{Name: "allow-write-back"},
					&cli.BoolFlag{Name: "apply-runtime"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					in := application.SourceConfigUpdate{ApplyRuntime: c.Bool("apply-runtime")}
					if c.IsSet("description") {
						v := c.String("description")
						in.Description = &v
					}
					if c.IsSet("active") {
						v := c.Bool("active")
						in.Active = &v
					}
					if c.IsSet("allow-write-back") {
						v := c.Bool("allow-write-back")
						in.AllowWriteBack = &v
					}
					var out sourceMutationResult
					if err := doSourceConfigure(ctx, cfg, c.String("name"), in, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printSourceMutation(out)
					return nil
				},
			},
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search across accessible sources",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "query", Required: true},
			&cli.StringFlag{Name: "sources", Usage: "csv source names, empty means all accessible"},
			&cli.IntFlag{Name: "limit", Value: 20},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var out struct {
				Results []domain.SearchResult `json:"results"`
				Total   int                   `json:"total"`
			}
			if err := doSearch(ctx, cfg, c.String("query"), c.String("sources"), int(c.Int("limit")), &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			printSearchResults(out.Results)
			return nil
		},
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Dispatch a structured query to one source",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "source-id", Required: true},
			&cli.StringFlag{Name: "query", Required: true},
			&cli.StringFlag{Name: "type", Usage: "search to force a term search"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var out domain.QueryResult
			if err := doQuery(ctx, cfg, uint(c.Uint("source-id")), c.String("query"), c.String("type"), &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			printQueryResult(out)
			return nil
		},
	}
}

func writeBackCommand() *cli.Command {
	return &cli.Command{
		Name:  "writeback",
		Usage: "Write-back request workflow",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Propose a change to a source",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Required: true},
					&cli.StringFlag{Name: "operation", Required: true, Usage: "insert, update or delete"},
					&cli.StringFlag{Name: "table", Required: true},
					&cli.StringFlag{Name: "pk", Usage: "primary key, required for update and delete"},
					&cli.StringFlag{Name: "old", Usage: "JSON object of prior values"},
					&cli.StringFlag{Name: "new", Usage: "JSON object of proposed values"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					in := application.WriteBackInput{
						SourceName: c.String("source"),
						Operation:  c.String("operation"),
						TableName:  c.String("table"),
						PrimaryKey: c.String("pk"),
					}
					if raw := c.String("old"); raw != "" {
						if err := json.Unmarshal([]byte(raw), &in.OldValues); err != nil {
							return fmt.Errorf("--old is not valid JSON: %w", err)
						}
					}
					if raw := c.String("new"); raw != "" {
						if err := json.Unmarshal([]byte(raw), &in.NewValues); err != nil {
							return fmt.Errorf("--new is not valid JSON: %w", err)
						}
					}
					var out domain.WriteBackRequest
					if err := doWriteBackCreate(ctx, cfg, in, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printWriteBacks([]domain.WriteBackRequest{out})
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List visible write-back requests",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out struct {
						Requests []domain.WriteBackRequest `json:"requests"`
						Total    int                       `json:"total"`
					}
					if err := doWriteBackList(ctx, cfg, int(c.Int("limit")), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printWriteBacks(out.Requests)
					return nil
				},
			},
			{
				Name:  "get",
				Usage: "Show one write-back request",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out domain.WriteBackRequest
					if err := doWriteBackGet(ctx, cfg, uint(c.Uint("id")), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printWriteBackDetail(out)
					return nil
				},
			},
			{
				Name:  "review",
				Usage: "Approve or reject a pending request",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "action", Required: true, Usage: "approve or reject"},
					&cli.StringFlag{Name: "reason", Usage: "required when rejecting"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out domain.WriteBackRequest
					if err := doWriteBackReview(ctx, cfg, uint(c.Uint("id")), c.String("action"), c.String("reason"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printWriteBackDetail(out)
					return nil
				},
			},
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Audit log commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List audit logs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out struct {
						Logs []domain.AuditRecord `json:"logs"`
					}
					if err := doAuditList(ctx, cfg, int(c.Int("limit")), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out.Logs)
					}
					printAuditRecords(out.Logs)
					return nil
				},
			},
		},
	}
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
