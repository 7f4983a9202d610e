package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/codelits/invoice-manager/internal/assist"
	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/clients"
	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/docstore"
	"github.com/codelits/invoice-manager/internal/invitation"
	"github.com/codelits/invoice-manager/internal/invoice"
	"github.com/codelits/invoice-manager/internal/mail"
	"github.com/codelits/invoice-manager/internal/server"
	"github.com/codelits/invoice-manager/internal/session"
	"github.com/codelits/invoice-manager/internal/settings"
	"github.com/codelits/invoice-manager/internal/sqlitedb"
	"github.com/codelits/invoice-manager/internal/twofactor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flagEnv names the environment variable that supplies each flag's
// default when the flag is not given.
var flagEnv = map[string]string{
	"addr":            "ADDR",
	"db":              "DATABASE_PATH",
	"company-profile": "COMPANY_PROFILE",
}

type options struct {
	addr           string
	dbPath         string
	companyProfile string
	envFile        string
}

// parseFlags parses args, loads the dotenv file and then fills flags the
// caller left unset from the environment.
func parseFlags(args []string) (options, error) {
	var o options
	flagSet := pflag.NewFlagSet("invoice-manager", pflag.ContinueOnError)
	flagSet.StringVar(&o.addr, "addr", ":8080", "listen address (env ADDR)")
	flagSet.StringVar(&o.dbPath, "db", "data/invoice-manager.db", "SQLite database file (env DATABASE_PATH)")
	flagSet.StringVar(&o.companyProfile, "company-profile", "", "YAML file seeding the company profile and default tax rates (env COMPANY_PROFILE)")
	flagSet.StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	if err := flagSet.Parse(args); err != nil {
		return o, err
	}

	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return o, fmt.Errorf("load %s: %w", o.envFile, err)
	}
	for name, key := range flagEnv {
		if flagSet.Changed(name) {
			continue
		}
		if v := os.Getenv(key); v != "" {
			if err := flagSet.Set(name, v); err != nil {
				return o, fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return o, nil
}

func run() error {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	addr, dbPath, companyProfile := o.addr, o.dbPath, o.companyProfile

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	authCfg, err := auth.LoadConfig()
	if err != nil {
		return err
	}
	sessionCfg := session.LoadConfig()
	if sessionCfg.Ephemeral {
		logger.Warn("session keys generated at startup; sessions end on restart")
	}
	invoiceCfg := invoice.LoadConfig()
	assistCfg := assist.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	pool, err := sqlitedb.Open(sqlitedb.Config{Path: dbPath, Logger: logger})
	if err != nil {
		return err
	}
	defer pool.Close()

	clk := clock.Real()
	store := docstore.NewSQLiteStore(pool, clk)

	var auditor *auth.Auditor
	if authCfg.EnableAuditLog {
		auditor = auth.NewAuditor(auth.NewInMemoryAuditRecorder(), clk)
	}

	provider := auth.NewLocalProvider(auth.NewSQLiteUsers(pool), authCfg, clk, logger)
	if authCfg.AdminPassword != "" {
		if err := provider.EnsureUser(ctx, authCfg.AdminEmail, authCfg.AdminPassword); err != nil {
			return fmt.Errorf("seed admin account: %w", err)
		}
	}

	var sender mail.Sender
	if key := os.Getenv("RESEND_API_KEY"); key != "" {
		sender = mail.NewResendSender(key, os.Getenv("MAIL_FROM"), logger)
	} else {
		logger.Warn("RESEND_API_KEY not set; emails are logged, not sent")
		sender = mail.NewLogSender(logger)
	}

	seed := settings.Default()
	if companyProfile != "" {
		if seed, err = settings.LoadProfile(companyProfile); err != nil {
			return err
		}
	}
	settingsSvc := settings.NewService(store, seed)

	var archive invoice.Storage
	if invoiceCfg.S3Bucket != "" {
		s3, err := invoice.NewS3Storage(invoiceCfg)
		if err != nil {
			return err
		}
		archive = s3
	} else {
		archive = invoice.NewMemoryStorage(clk)
	}

	sessionOpts := session.Options{AdminEmail: authCfg.AdminEmail, Auditor: auditor, Logger: logger}
	flow := twofactor.New(sender, twofactor.Options{
		AdminNotifyEmail: authCfg.Admin2FAEmail,
		Throttle:         authCfg.TwoFactorThrottle,
		Clock:            clk,
		Auditor:          auditor,
		Logger:           logger,
	})
	ledger := invitation.NewLedger(invitation.NewDocRepository(store), sender, invitation.Options{
		Clock:           clk,
		CompanyName:     settingsSvc.CompanyName,
		RegistrationURL: getenv("PUBLIC_URL", "http://localhost:8080") + "/complete-invitation",
		Auditor:         auditor,
		Logger:          logger,
	})
	invoices := invoice.NewService(store, invoice.Options{
		Config:   invoiceCfg,
		Clock:    clk,
		Settings: settingsSvc,
		Logger:   logger,
	})

	handler := server.New(server.Deps{
		Sessions:    session.NewManager(provider, sessionCfg, sessionOpts),
		Session:     session.NewHandler(logger),
		TwoFactor:   twofactor.NewHandler(flow),
		Invitations: invitation.NewHandler(ledger, logger),
		Audit:       auth.NewHandler(auditor, logger),
		Invoices: invoice.NewHandler(invoices, invoice.HandlerOptions{
			Config:   invoiceCfg,
			Settings: settingsSvc,
			Storage:  archive,
			Auditor:  auditor,
			Clock:    clk,
			Logger:   logger,
		}),
		Clients:  clients.NewHandler(clients.NewService(store), logger),
		Settings: settings.NewHandler(settingsSvc, logger),
		Assist:   assist.NewHandler(assist.NewRunner(assistCfg), invoices, logger),
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("invoice manager listening",
			"addr", addr,
			"db", dbPath,
			"pdf_engine", invoiceCfg.PDFEngine,
			"assist", assistCfg.Enabled(),
		)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
