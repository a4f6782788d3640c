package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fitundfun/ffbackup/internal/app"
	"github.com/fitundfun/ffbackup/internal/blob"
	"github.com/fitundfun/ffbackup/internal/config"
	"github.com/fitundfun/ffbackup/internal/db"
	"github.com/fitundfun/ffbackup/internal/db/migrations"
	"github.com/fitundfun/ffbackup/internal/logging"
	"github.com/fitundfun/ffbackup/internal/metrics"
	"github.com/fitundfun/ffbackup/internal/notify"
	"github.com/fitundfun/ffbackup/internal/restore"
	"github.com/fitundfun/ffbackup/internal/server"
	"github.com/fitundfun/ffbackup/internal/storage"
	"github.com/fitundfun/ffbackup/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	DBType        string
	DBDSN         string
	SQLitePath    string
	BlobType      string
	BlobEndpoint  string
	BlobPath      string
	Storage       string
	LocalPath     string
	S3Endpoint    string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	S3Region      string
	S3UseSSL      string
	S3PathStyle   string
	EncryptionKey string
}

func main() {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:           "ffbackup",
		Short:         "Backup and restore for the fitundfun site data and files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	pf.StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	pf.StringVar(&overrides.DBType, "db-type", "", "Database type (postgres, sqlite, memory)")
	pf.StringVar(&overrides.DBDSN, "db-dsn", "", "Postgres connection string (service role)")
	pf.StringVar(&overrides.SQLitePath, "sqlite-path", "", "SQLite file path")
	pf.StringVar(&overrides.BlobType, "blob-type", "", "File store type (s3, fs, memory)")
	pf.StringVar(&overrides.BlobEndpoint, "blob-endpoint", "", "S3 endpoint of the file store")
	pf.StringVar(&overrides.BlobPath, "blob-path", "", "Directory of the fs file store")

	pf.StringVar(&overrides.Storage, "storage", "", "Archive storage backend (local, s3)")
	pf.StringVar(&overrides.LocalPath, "storage-path", "", "Local archive storage path")
	pf.StringVar(&overrides.S3Endpoint, "s3-endpoint", "", "Archive storage S3 endpoint")
	pf.StringVar(&overrides.S3Bucket, "s3-bucket", "", "Archive storage S3 bucket")
	pf.StringVar(&overrides.S3AccessKey, "s3-access-key", "", "Archive storage S3 access key")
	pf.StringVar(&overrides.S3SecretKey, "s3-secret-key", "", "Archive storage S3 secret key")
	pf.StringVar(&overrides.S3Region, "s3-region", "", "Archive storage S3 region")
	pf.StringVar(&overrides.S3UseSSL, "s3-ssl", "", "Use SSL for the archive S3 endpoint (true/false)")
	pf.StringVar(&overrides.S3PathStyle, "s3-path-style", "", "Force path-style archive S3 (true/false)")
	pf.StringVar(&overrides.EncryptionKey, "encryption-key", "", "Archive encryption key (base64 or hex)")

	rootCmd.AddCommand(newServeCmd(root, overrides))
	rootCmd.AddCommand(newBackupCmd(root, overrides))
	rootCmd.AddCommand(newRestoreCmd(root, overrides))
	rootCmd.AddCommand(newListCmd(root, overrides))
	rootCmd.AddCommand(newInspectCmd(root, overrides))
	rootCmd.AddCommand(newValidateCmd(root, overrides))
	rootCmd.AddCommand(newMigrateCmd(root, overrides))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env bundles what every operational command needs.
type env struct {
	cfg     *config.Config
	log     zerolog.Logger
	app     *app.App
	metrics *metrics.Collector
}

func (e *env) close() {
	if err := e.app.Tables.Close(); err != nil {
		e.log.Warn().Err(err).Msg("closing database")
	}
}

func setup(root *rootFlags, overrides *overrideFlags) (*env, error) {
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return nil, err
	}
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)

	tables, err := db.NewStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.NewStore(cfg.Blob)
	if err != nil {
		tables.Close()
		return nil, err
	}
	archives, err := storage.New(cfg.Storage)
	if err != nil {
		tables.Close()
		return nil, err
	}
	collector := metrics.NewCollector()
	appSvc := app.New(cfg, tables, blobs, archives, logger, notify.FromConfig(cfg.Notifications), collector)
	return &env{cfg: cfg, log: logger, app: appSvc, metrics: collector}, nil
}

func (e *env) context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Global.OperationTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func newServeCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin backup and restore API",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(root, overrides)
			if err != nil {
				return err
			}
			defer e.close()
			if listen != "" {
				e.cfg.Server.Listen = listen
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(e.metrics, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			srv, err := server.New(e.cfg.Server, e.app, logging.Component(e.log, "server"), e.metrics, reg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, e.g. :8080")
	return cmd
}

func newBackupCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var (
		tables       []string
		buckets      []string
		encrypt      bool
		retry        int
		retryBackoff time.Duration
		createdBy    string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create an archive and put it into archive storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(root, overrides)
			if err != nil {
				return err
			}
			defer e.close()
			if len(tables) > 0 {
				e.cfg.Backup.Tables = tables
			}
			if len(buckets) > 0 {
				e.cfg.Backup.Buckets = buckets
			}
			if encrypt {
				e.cfg.Backup.Encryption = true
			}
			if retry > 0 {
				e.cfg.Backup.RetryCount = retry
			}
			if retryBackoff > 0 {
				e.cfg.Backup.RetryBackoff = retryBackoff
			}
			if createdBy != "" {
				e.cfg.Backup.CreatedBy = createdBy
			}
			if err := e.cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := e.context()
			defer cancel()
			res, err := e.app.Backup(ctx)
			if err != nil {
				return err
			}
			if output == "text" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\t%d tables\t%d files\n", res.Key, res.Size, res.Stats.Tables, res.Stats.Files)
				return nil
			}
			return printResult(cmd.OutOrStdout(), output, res)
		},
	}
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "Tables to include")
	cmd.Flags().StringSliceVar(&buckets, "buckets", nil, "Buckets to include")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Encrypt the archive")
	cmd.Flags().IntVar(&retry, "retry", 0, "Upload attempts")
	cmd.Flags().DurationVar(&retryBackoff, "retry-backoff", 0, "Initial delay between upload attempts")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "Value of created_by in the manifest")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}

func newRestoreCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var (
		key      string
		file     string
		data     bool
		files    bool
		clearAll bool
		output   string
		partial  bool
	)
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore an archive into the database and file store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (key == "") == (file == "") {
				return errors.New("exactly one of --key or --file is required")
			}
			e, err := setup(root, overrides)
			if err != nil {
				return err
			}
			defer e.close()

			opts := e.app.DefaultRestoreOptions()
			if cmd.Flags().Changed("data") {
				opts.RestoreData = data
			}
			if cmd.Flags().Changed("storage") {
				opts.RestoreStorage = files
			}
			if cmd.Flags().Changed("clear") {
				opts.ClearExisting = clearAll
			}

			ctx, cancel := e.context()
			defer cancel()
			var rep *restore.Report
			if key != "" {
				rep, err = e.app.Restore(ctx, key, opts)
			} else {
				rep, err = e.app.RestoreFile(ctx, file, opts)
			}
			if err != nil {
				return err
			}
			if output == "text" {
				printReport(cmd.OutOrStdout(), rep)
			} else if err := printResult(cmd.OutOrStdout(), output, rep); err != nil {
				return err
			}
			if !rep.OK() && !partial {
				return fmt.Errorf("restore finished with %d errors", len(rep.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Archive key in archive storage")
	cmd.Flags().StringVar(&file, "file", "", "Archive file on disk")
	cmd.Flags().BoolVar(&data, "data", true, "Restore table rows")
	cmd.Flags().BoolVar(&files, "storage", true, "Restore bucket files")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Clear tables and buckets before restoring")
	cmd.Flags().BoolVar(&partial, "allow-partial", false, "Exit zero even if some tables or files failed")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}

func newListCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(root, overrides)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := e.context()
			defer cancel()
			items, err := e.app.List(ctx)
			if err != nil {
				return err
			}
			if output != "text" {
				return printResult(cmd.OutOrStdout(), output, items)
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", item.Key, item.Size, item.Modified.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}

func newInspectCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var key, file, output string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the manifest and contents of an archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (key == "") == (file == "") {
				return errors.New("exactly one of --key or --file is required")
			}
			e, err := setup(root, overrides)
			if err != nil {
				return err
			}
			defer e.close()
			var info *app.Inspection
			if key != "" {
				ctx, cancel := e.context()
				defer cancel()
				info, err = e.app.Inspect(ctx, key)
			} else {
				info, err = e.app.InspectFile(file)
			}
			if err != nil {
				return err
			}
			if output == "text" {
				printInspection(cmd.OutOrStdout(), info)
				return nil
			}
			return printResult(cmd.OutOrStdout(), output, info)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Archive key in archive storage")
	cmd.Flags().StringVar(&file, "file", "", "Archive file on disk")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}

func newValidateCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(root, overrides)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := e.context()
			defer cancel()
			if err := e.app.Validate(ctx); err != nil {
				return err
			}
			e.log.Info().Msg("validation succeeded")
			return nil
		},
	}
}

func newMigrateCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the local SQLite schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, overrides)
			if err != nil {
				return err
			}
			if cfg.Database.Type != "sqlite" && cfg.Database.Type != "sqlite3" {
				return fmt.Errorf("migrate only applies to sqlite, database.type is %q", cfg.Database.Type)
			}
			conn, err := db.OpenSQLite(cfg.Database.SQLitePath)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrations.Up(conn); err != nil {
				return err
			}
			v, dirty, err := migrations.Version(conn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", v, dirty)
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key are required")
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file (.enc)")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64 or hex)")

	cmd.AddCommand(encrypt)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ffbackup %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func loadConfig(root *rootFlags, overrides *overrideFlags) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, root, overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}

	if overrides.DBType != "" {
		cfg.Database.Type = overrides.DBType
	}
	if overrides.DBDSN != "" {
		cfg.Database.DSN = overrides.DBDSN
	}
	if overrides.SQLitePath != "" {
		cfg.Database.SQLitePath = overrides.SQLitePath
	}
	if overrides.BlobType != "" {
		cfg.Blob.Type = overrides.BlobType
	}
	if overrides.BlobEndpoint != "" {
		cfg.Blob.S3.Endpoint = overrides.BlobEndpoint
	}
	if overrides.BlobPath != "" {
		cfg.Blob.FS.Path = overrides.BlobPath
	}

	if overrides.Storage != "" {
		cfg.Storage.Backend = overrides.Storage
	}
	if overrides.LocalPath != "" {
		cfg.Storage.Local.Path = overrides.LocalPath
	}
	if overrides.S3Endpoint != "" {
		cfg.Storage.S3.Endpoint = overrides.S3Endpoint
	}
	if overrides.S3Bucket != "" {
		cfg.Storage.S3.Bucket = overrides.S3Bucket
	}
	if overrides.S3AccessKey != "" {
		cfg.Storage.S3.AccessKey = overrides.S3AccessKey
	}
	if overrides.S3SecretKey != "" {
		cfg.Storage.S3.SecretKey = overrides.S3SecretKey
	}
	if overrides.S3Region != "" {
		cfg.Storage.S3.Region = overrides.S3Region
	}
	if overrides.S3UseSSL != "" {
		cfg.Storage.S3.UseSSL = parseBool(overrides.S3UseSSL)
	}
	if overrides.S3PathStyle != "" {
		cfg.Storage.S3.ForcePathStyle = parseBool(overrides.S3PathStyle)
	}
	if overrides.EncryptionKey != "" {
		cfg.Backup.EncryptionKey = overrides.EncryptionKey
	}

	cfg.Database.Type = strings.ToLower(cfg.Database.Type)
	cfg.Blob.Type = strings.ToLower(cfg.Blob.Type)
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
