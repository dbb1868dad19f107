package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/caarlos0/env/v7"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/errcoll"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/version"
	"github.com/getsentry/sentry-go"
)

// environments represents the configuration that is kept in the environment.
type environments struct {
	HostlistURL *urlutil.URL `env:"HOSTLIST_URL"`
	Top10MURL   *urlutil.URL `env:"TOP10M_URL"`

	BlocklistPath string `env:"BLOCKLIST_PATH"`
	DatabasesDir  string `env:"DATABASES_DIR" envDefault:"./databases/"`
	GoogleAPIKey  string `env:"GOOGLE_API_KEY"`
	OutputPath    string `env:"OUTPUT_PATH"`
	SentryDSN     string `env:"SENTRY_DSN" envDefault:"stderr"`
	Sources       string `env:"SOURCES" envDefault:"top10m,ipv4"`
	Vendors       string `env:"VENDORS" envDefault:"Google,Yandex"`
	YandexAPIKey  string `env:"YANDEX_API_KEY"`

	RunInterval time.Duration `env:"RUN_INTERVAL"`

	UpdateTime int64 `env:"UPDATE_TIME"`

	ListenAddr net.IP `env:"LISTEN_ADDR" envDefault:"127.0.0.1"`

	ListenPort uint16 `env:"LISTEN_PORT"`

	Fetch        strictBool `env:"FETCH" envDefault:"0"`
	LogTimestamp strictBool `env:"LOG_TIMESTAMP" envDefault:"1"`
	LogVerbose   strictBool `env:"VERBOSE" envDefault:"0"`
}

// readEnvs reads the configuration.
func readEnvs() (envs *environments, err error) {
	envs = &environments{}
	err = env.Parse(envs)
	if err != nil {
		return nil, fmt.Errorf("parsing environments: %w", err)
	}

	return envs, nil
}

// configureLogs returns the root [slog.Logger] configured from the
// environment.
func (envs *environments) configureLogs() (slogLogger *slog.Logger) {
	lvl := slogutil.LevelInfo
	if bool(envs.LogVerbose) {
		lvl = slogutil.LevelDebug
	}

	return slogutil.New(&slogutil.Config{
		Level:        lvl,
		Output:       os.Stdout,
		Format:       slogutil.FormatText,
		AddTimestamp: bool(envs.LogTimestamp),
	})
}

// buildErrColl builds and returns an error collector from environment.
func (envs *environments) buildErrColl() (errColl errcoll.Interface, err error) {
	dsn := envs.SentryDSN
	if dsn == "stderr" {
		return errcoll.NewWriterErrorCollector(os.Stderr), nil
	}

	cli, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
		Release:          version.Name() + "/" + version.Version(),
	})
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}

	return errcoll.NewSentryErrorCollector(cli), nil
}

// strictBool is a type for booleans that are parsed from the environment more
// strictly than the usual bool.  It only accepts "0" and "1" as valid values.
type strictBool bool

// UnmarshalText implements the encoding.TextUnmarshaler interface for
// *strictBool.
func (sb *strictBool) UnmarshalText(b []byte) (err error) {
	if len(b) == 1 {
		switch b[0] {
		case '0':
			*sb = false

			return nil
		case '1':
			*sb = true

			return nil
		default:
			// Go on and return an error.
		}
	}

	return fmt.Errorf("invalid value %q, supported: %q, %q", b, "0", "1")
}
