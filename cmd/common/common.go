package common

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	logger "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Flag describes a configuration flag.
type Flag struct {
	Name        string
	DefValue    interface{}
	Description string
}

// ConfigureCLI configures a Viper environment with flags and envs.
func ConfigureCLI(v *viper.Viper, envPrefix string, flags []Flag, fs *pflag.FlagSet) {
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	for _, flag := range flags {
		switch defval := flag.DefValue.(type) {
		case string:
			fs.String(flag.Name, defval, flag.Description)
		case bool:
			fs.Bool(flag.Name, defval, flag.Description)
		case int:
			fs.Int(flag.Name, defval, flag.Description)
		case time.Duration:
			fs.Duration(flag.Name, defval, flag.Description)
		default:
			log.Fatalf("unknown flag type: %T", flag.DefValue)
		}
		v.SetDefault(flag.Name, flag.DefValue)
		if err := v.BindPFlag(flag.Name, fs.Lookup(flag.Name)); err != nil {
			log.Fatalf("binding flag %s: %s", flag.Name, err)
		}
	}
}

// LoadEnvFile loads variables from a .env file into the process environment. Variables
// that are already set win. A missing file is ignored.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %s", path, err)
	}
	return nil
}

// ExpandEnvVars expands env vars present in the config.
func ExpandEnvVars(v *viper.Viper, settings map[string]interface{}) {
	for name, val := range settings {
		if str, ok := val.(string); ok {
			v.Set(name, os.ExpandEnv(str))
		}
	}
}

// ConfigureLogging configures the default logger with the right setup depending flag/envs.
// If logLevels is not nil, only logLevels values will be configured to Info/Debug depending
// on viper flags. if logLevels is nil, all sub-logs will be configured.
func ConfigureLogging(v *viper.Viper, logLevels []string) error {
	if v.GetBool("log-json") {
		logger.SetupLogging(logger.Config{
			Format: logger.JSONOutput,
			Stderr: false,
			Stdout: true,
		})
	}

	logLevel, levelName := logger.LevelInfo, "info"
	if v.GetBool("log-debug") {
		logLevel, levelName = logger.LevelDebug, "debug"
	}

	if len(logLevels) == 0 {
		logger.SetAllLoggers(logLevel)
		return nil
	}
	for _, sys := range logLevels {
		if err := logger.SetLogLevel(sys, levelName); err != nil {
			return fmt.Errorf("set log level of %s: %s", sys, err)
		}
	}
	return nil
}

// MarshalConfig returns the JSON encoding of the settings in v. Values of the secrets
// keys are redacted.
func MarshalConfig(v *viper.Viper, pretty bool, secrets ...string) ([]byte, error) {
	all := v.AllSettings()
	for _, key := range secrets {
		if val, ok := all[key]; ok && val != "" {
			all[key] = "***"
		}
	}
	if pretty {
		return json.MarshalIndent(all, "", "  ")
	}
	return json.Marshal(all)
}

// SetupInstrumentation installs a Prometheus backed meter provider and starts the
// metrics endpoint.
func SetupInstrumentation(prometheusAddr string) error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("failed to initialize prometheus exporter %v", err)
	}
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		server := &http.Server{Addr: prometheusAddr, Handler: mux, ReadHeaderTimeout: time.Second * 5}
		_ = server.ListenAndServe()
	}()

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return fmt.Errorf("starting Go runtime metrics: %s", err)
	}

	return nil
}
