package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverGitHub = "github"
	DriverS3     = "s3"
	DriverNone   = "none"

	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	HTTPAddr       string
	LogLevel       string
	LogDevelopment bool

	// StoreDriver selects the local table store: sqlite or postgres
	StoreDriver string
	// StoreDSN is a file path for sqlite and a connection string for postgres
	StoreDSN string

	RemoteDriver string
	Remote       Remote

	Admin      Admin
	SessionTTL time.Duration
	RateLimit  RateLimit

	// MissingEnvFile names the .env file that could not be found, if any
	MissingEnvFile string
}

// Remote holds the credentials and file locations of the shared remote store.
type Remote struct {
	Token  string
	Repo   string
	Branch string
	// Paths maps secrets keys (file_path, file_path_drones) to file paths
	Paths map[string]string
	S3    S3
}

type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type Admin struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Password     string `yaml:"password"`
}

type RateLimit struct {
	PerSecond float64
	Burst     int
}

// secrets mirrors the YAML secrets file. The github section is kept as a map
// so extra path keys can be added without code changes.
type secrets struct {
	GitHub map[string]string `yaml:"github"`
	S3     S3                `yaml:"s3"`
	Admin  Admin             `yaml:"admin"`
}

// Load reads .env files, the optional YAML secrets file named by
// SECRETS_FILE, and the process environment. Environment variables win over
// the secrets file. A missing .env file is reported in MissingEnvFile so the
// caller can warn about it.
func Load(envFiles ...string) (Config, error) {
	var missing string
	if err := godotenv.Load(envFiles...); err != nil {
		var pathErr *fs.PathError
		if !errors.Is(err, fs.ErrNotExist) || !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load env: %w", err)
		}
		missing = pathErr.Path
	}

	var sec secrets
	if path := os.Getenv("SECRETS_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read secrets: %w", err)
		}
		if err := yaml.Unmarshal(raw, &sec); err != nil {
			return Config{}, fmt.Errorf("parse secrets: %w", err)
		}
	}
	cfg, err := fromEnv(sec)
	if err != nil {
		return Config{}, err
	}
	cfg.MissingEnvFile = missing
	return cfg, nil
}

func fromEnv(sec secrets) (Config, error) {
	gh := sec.GitHub
	if gh == nil {
		gh = map[string]string{}
	}

	cfg := Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogDevelopment: getBool("LOG_DEV", false),
		StoreDriver:    strings.ToLower(getenv("STORE_DRIVER", StoreSQLite)),
		StoreDSN:       os.Getenv("STORE_DSN"),
		Remote: Remote{
			Token:  getenv("GITHUB_TOKEN", gh["token"]),
			Repo:   getenv("GITHUB_REPO", gh["repo"]),
			Branch: getenv("GITHUB_BRANCH", valueOr(gh["branch"], "main")),
			Paths:  map[string]string{},
			S3: S3{
				Bucket:          getenv("S3_BUCKET", sec.S3.Bucket),
				Region:          getenv("S3_REGION", valueOr(sec.S3.Region, "us-east-1")),
				Endpoint:        getenv("S3_ENDPOINT", sec.S3.Endpoint),
				PathStyle:       getBool("S3_PATH_STYLE", sec.S3.PathStyle),
				AccessKeyID:     getenv("S3_ACCESS_KEY_ID", sec.S3.AccessKeyID),
				SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY", sec.S3.SecretAccessKey),
			},
		},
		Admin: Admin{
			Username:     getenv("ADMIN_USERNAME", valueOr(sec.Admin.Username, "admin")),
			PasswordHash: getenv("ADMIN_PASSWORD_HASH", sec.Admin.PasswordHash),
			Password:     getenv("ADMIN_PASSWORD", sec.Admin.Password),
		},
		SessionTTL: getDuration("SESSION_TTL", 12*time.Hour),
		RateLimit: RateLimit{
			PerSecond: getFloat("RATE_LIMIT_RPS", 5),
			Burst:     getInt("RATE_LIMIT_BURST", 20),
		},
	}

	for k, v := range gh {
		if strings.HasPrefix(k, "file_path") && v != "" {
			cfg.Remote.Paths[k] = v
		}
	}
	if v := os.Getenv("GITHUB_FILE_PATH"); v != "" {
		cfg.Remote.Paths["file_path"] = v
	}
	if v := os.Getenv("GITHUB_FILE_PATH_DRONES"); v != "" {
		cfg.Remote.Paths["file_path_drones"] = v
	}

	switch cfg.StoreDriver {
	case StoreSQLite:
		if cfg.StoreDSN == "" {
			cfg.StoreDSN = "dados.db"
		}
	case StorePostgres:
		if cfg.StoreDSN == "" {
			return Config{}, errors.New("STORE_DSN is required for the postgres store")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	cfg.RemoteDriver = strings.ToLower(os.Getenv("REMOTE_DRIVER"))
	if cfg.RemoteDriver == "" {
		switch {
		case cfg.Remote.Token != "" && cfg.Remote.Repo != "":
			cfg.RemoteDriver = DriverGitHub
		case cfg.Remote.S3.Bucket != "":
			cfg.RemoteDriver = DriverS3
		default:
			cfg.RemoteDriver = DriverNone
		}
	}
	switch cfg.RemoteDriver {
	case DriverGitHub, DriverS3, DriverNone:
	default:
		return Config{}, fmt.Errorf("unknown REMOTE_DRIVER %q", cfg.RemoteDriver)
	}

	return cfg, nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
