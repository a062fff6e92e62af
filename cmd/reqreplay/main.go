package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/reqreplay/internal/config"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "reqreplay [capture-file]",
	Short: "Replay HTTP requests captured by TamperData or exported as HAR",
	Long: `ReqReplay loads a TamperData XML export or a HAR archive and replays the captured
requests one at a time, keeping a cursor over the sequence.

Without a subcommand it replays from the cursor to the end of the capture.
Use "serve" to drive the session step by step through the control API.
`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runReplay,
}

var runCmd = &cobra.Command{
	Use:   "run [capture-file]",
	Short: "Replay the capture from the cursor",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReplay,
}

var listCmd = &cobra.Command{
	Use:   "list [capture-file]",
	Short: "List the captured records",
	Args:  cobra.MaximumNArgs(1),
	RunE:  listRecords,
}

var exportCmd = &cobra.Command{
	Use:   "export [capture-file]",
	Short: "Write the records that pass the MIME filter",
	Args:  cobra.MaximumNArgs(1),
	RunE:  exportRecords,
}

var serveCmd = &cobra.Command{
	Use:   "serve [capture-file]",
	Short: "Serve the replay control API",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run:   showVersion,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.StringP("capture", "f", "", "TamperData XML or HAR capture file")
	flags.String("format", "", "Capture format (auto, tamperdata, har)")
	flags.StringSliceP("mime-filter", "m", []string{}, "Only visit records with these content types")
	flags.String("cookie-jar", "", "Cookie jar file; enables jar mode")
	flags.Bool("reuse-connection", true, "Keep the connection when moving between records")
	flags.Bool("reset-settings", false, "Discard staged headers and POST fields when moving")

	flags.Int("timeout", 0, "Request timeout in seconds")
	flags.Bool("follow-redirects", false, "Follow redirects")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.Bool("verbose", false, "Log every request and response head")

	flags.StringP("log-level", "l", "", "Log level (trace, debug, info, warn, error, fatal, panic)")
	flags.Bool("log-file-enable", false, "Enable file logging")
	flags.String("log-file-path", "", "Log file path")
	flags.Int("log-file-max-size", 0, "Maximum size of a single log file (MB)")
	flags.Int("log-file-max-backups", 0, "Maximum number of old log files to retain")
	flags.Int("log-file-max-age", 0, "Maximum retention days for old log files")
	flags.Bool("log-file-compress", false, "Whether to compress old log files")

	flags.String("output", "", "Output mode (console, json)")
	flags.BoolP("silence", "s", false, "Suppress per-response output")
	flags.String("locale", "", "Output language (en, zh-CN)")
	flags.Bool("show-body", false, "Print response bodies")
	flags.Int("max-body-bytes", 0, "Truncate printed bodies to this many bytes")
	flags.Bool("pretty", true, "Pretty print JSON, XML, HTML and form bodies")

	flags.Bool("storage-enable", false, "Persist replays to the SQLite store")
	flags.String("storage-path", "", "SQLite database path")

	for _, cmd := range []*cobra.Command{rootCmd, runCmd} {
		cmd.Flags().Int("start", 0, "Record index to start from")
		cmd.Flags().IntP("count", "n", 0, "Replay this many records (0 replays to the end)")
	}

	exportCmd.Flags().String("to", "tamperdata", "Export format (tamperdata, har, json)")
	exportCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")

	serveCmd.Flags().String("host", "", "Control API listen host")
	serveCmd.Flags().IntP("port", "p", 0, "Control API listen port")
	serveCmd.Flags().String("admin-path", "", "Control API path prefix")
	serveCmd.Flags().Bool("export-enable", false, "Enable/disable record export")
	serveCmd.Flags().StringSlice("export-formats", []string{}, "Allowed export formats")

	bindFlags(rootCmd, serveCmd)

	rootCmd.AddCommand(runCmd, listCmd, exportCmd, serveCmd, versionCmd)
}

func bindFlags(root, serve *cobra.Command) {
	flags := root.PersistentFlags()
	viper.BindPFlag("replay.capture_file", flags.Lookup("capture"))
	viper.BindPFlag("replay.format", flags.Lookup("format"))
	viper.BindPFlag("replay.mime_filter", flags.Lookup("mime-filter"))
	viper.BindPFlag("replay.cookie_jar", flags.Lookup("cookie-jar"))
	viper.BindPFlag("replay.reuse_connection", flags.Lookup("reuse-connection"))
	viper.BindPFlag("replay.reset_settings", flags.Lookup("reset-settings"))

	viper.BindPFlag("transport.timeout", flags.Lookup("timeout"))
	viper.BindPFlag("transport.follow_redirects", flags.Lookup("follow-redirects"))
	viper.BindPFlag("transport.tls_insecure_skip_verify", flags.Lookup("insecure"))
	viper.BindPFlag("transport.verbose", flags.Lookup("verbose"))

	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("log.file_logging.enable", flags.Lookup("log-file-enable"))
	viper.BindPFlag("log.file_logging.path", flags.Lookup("log-file-path"))
	viper.BindPFlag("log.file_logging.max_size_mb", flags.Lookup("log-file-max-size"))
	viper.BindPFlag("log.file_logging.max_backups", flags.Lookup("log-file-max-backups"))
	viper.BindPFlag("log.file_logging.max_age_days", flags.Lookup("log-file-max-age"))
	viper.BindPFlag("log.file_logging.compress", flags.Lookup("log-file-compress"))

	viper.BindPFlag("output.mode", flags.Lookup("output"))
	viper.BindPFlag("output.silence", flags.Lookup("silence"))
	viper.BindPFlag("output.locale", flags.Lookup("locale"))
	viper.BindPFlag("output.show_body", flags.Lookup("show-body"))
	viper.BindPFlag("output.max_body_bytes", flags.Lookup("max-body-bytes"))
	viper.BindPFlag("output.pretty", flags.Lookup("pretty"))

	viper.BindPFlag("storage.enable", flags.Lookup("storage-enable"))
	viper.BindPFlag("storage.path", flags.Lookup("storage-path"))

	viper.BindPFlag("web.host", serve.Flags().Lookup("host"))
	viper.BindPFlag("web.port", serve.Flags().Lookup("port"))
	viper.BindPFlag("web.admin_path", serve.Flags().Lookup("admin-path"))
	viper.BindPFlag("web.export.enable", serve.Flags().Lookup("export-enable"))
	viper.BindPFlag("web.export.formats", serve.Flags().Lookup("export-formats"))
}

// loadConfig reads the configuration and applies command line overrides.
// A positional capture file wins over --capture and the config file.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadConfig(configPath, viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Command line has the highest priority
	if len(args) > 0 && args[0] != "" {
		cfg.Replay.CaptureFile = args[0]
	} else if capture, err := cmd.Flags().GetString("capture"); err == nil && capture != "" {
		cfg.Replay.CaptureFile = capture
	}
	if format, err := cmd.Flags().GetString("format"); err == nil && format != "" {
		cfg.Replay.Format = format
	}
	if filter, err := cmd.Flags().GetStringSlice("mime-filter"); err == nil && len(filter) > 0 {
		cfg.Replay.MimeFilter = filter
	}
	if jar, err := cmd.Flags().GetString("cookie-jar"); err == nil && jar != "" {
		cfg.Replay.CookieJar = jar
	}
	if reuse, err := cmd.Flags().GetBool("reuse-connection"); err == nil && cmd.Flags().Changed("reuse-connection") {
		cfg.Replay.ReuseConnection = reuse
	}
	if reset, err := cmd.Flags().GetBool("reset-settings"); err == nil && cmd.Flags().Changed("reset-settings") {
		cfg.Replay.ResetSettings = reset
	}

	if timeout, err := cmd.Flags().GetInt("timeout"); err == nil && timeout != 0 {
		cfg.Transport.Timeout = timeout
	}
	if follow, err := cmd.Flags().GetBool("follow-redirects"); err == nil && cmd.Flags().Changed("follow-redirects") {
		cfg.Transport.FollowRedirects = follow
	}
	if insecure, err := cmd.Flags().GetBool("insecure"); err == nil && cmd.Flags().Changed("insecure") {
		cfg.Transport.TLSInsecureSkipVerify = insecure
	}
	if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && cmd.Flags().Changed("verbose") {
		cfg.Transport.Verbose = verbose
	}

	if logLevel, err := cmd.Flags().GetString("log-level"); err == nil && logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFileEnable, err := cmd.Flags().GetBool("log-file-enable"); err == nil && cmd.Flags().Changed("log-file-enable") {
		cfg.Log.FileLogging.Enable = logFileEnable
	}
	if logFilePath, err := cmd.Flags().GetString("log-file-path"); err == nil && logFilePath != "" {
		cfg.Log.FileLogging.Path = logFilePath
	}
	if logFileSize, err := cmd.Flags().GetInt("log-file-max-size"); err == nil && logFileSize != 0 {
		cfg.Log.FileLogging.MaxSizeMB = logFileSize
	}
	if logFileBackups, err := cmd.Flags().GetInt("log-file-max-backups"); err == nil && logFileBackups != 0 {
		cfg.Log.FileLogging.MaxBackups = logFileBackups
	}
	if logFileAge, err := cmd.Flags().GetInt("log-file-max-age"); err == nil && logFileAge != 0 {
		cfg.Log.FileLogging.MaxAgeDays = logFileAge
	}
	if logFileCompress, err := cmd.Flags().GetBool("log-file-compress"); err == nil && cmd.Flags().Changed("log-file-compress") {
		cfg.Log.FileLogging.Compress = logFileCompress
	}

	if mode, err := cmd.Flags().GetString("output"); err == nil && mode != "" {
		cfg.Output.Mode = mode
	}
	if silence, err := cmd.Flags().GetBool("silence"); err == nil && cmd.Flags().Changed("silence") {
		cfg.Output.Silence = silence
	}
	if locale, err := cmd.Flags().GetString("locale"); err == nil && locale != "" {
		cfg.Output.Locale = locale
	}
	if showBody, err := cmd.Flags().GetBool("show-body"); err == nil && cmd.Flags().Changed("show-body") {
		cfg.Output.ShowBody = showBody
	}
	if maxBody, err := cmd.Flags().GetInt("max-body-bytes"); err == nil && maxBody != 0 {
		cfg.Output.MaxBodyBytes = maxBody
	}
	if pretty, err := cmd.Flags().GetBool("pretty"); err == nil && cmd.Flags().Changed("pretty") {
		cfg.Output.Pretty = pretty
	}

	if storageEnable, err := cmd.Flags().GetBool("storage-enable"); err == nil && cmd.Flags().Changed("storage-enable") {
		cfg.Storage.Enable = storageEnable
	}
	if storagePath, err := cmd.Flags().GetString("storage-path"); err == nil && storagePath != "" {
		cfg.Storage.Path = storagePath
	}

	// serve-only flags; lookups fail on other commands
	if host, err := cmd.Flags().GetString("host"); err == nil && host != "" {
		cfg.Web.Host = host
	}
	if port, err := cmd.Flags().GetInt("port"); err == nil && port != 0 {
		cfg.Web.Port = port
	}
	if adminPath, err := cmd.Flags().GetString("admin-path"); err == nil && adminPath != "" {
		cfg.Web.AdminPath = adminPath
	}
	if exportEnable, err := cmd.Flags().GetBool("export-enable"); err == nil && cmd.Flags().Changed("export-enable") {
		cfg.Web.Export.Enable = exportEnable
	}
	if exportFormats, err := cmd.Flags().GetStringSlice("export-formats"); err == nil && len(exportFormats) > 0 {
		cfg.Web.Export.Formats = exportFormats
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Replay.CaptureFile == "" {
		return nil, fmt.Errorf("no capture file given; pass it as an argument or with --capture")
	}
	return cfg, nil
}

func showVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("ReqReplay version %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Built: %s\n", buildDate)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
