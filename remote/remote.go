// Package remote mirrors whole datasets as CSV files in a shared remote
// store: a GitHub repository through the contents API, or an S3 bucket.
//
// Every failure is logged and reported to the caller as an absent table or a
// false save result. Callers always have the local store to fall back on.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"github.com/vainnor/painel/config"
	"github.com/vainnor/painel/models"
)

const (
	// DefaultKey holds the logistics file path and the fallback for every key
	DefaultKey = "file_path"
	// DronesKey holds the flights file path
	DronesKey = "file_path_drones"
)

var ErrNotConfigured = errors.New("remote store not configured")

type Store interface {
	Name() string
	// Load reads the file configured under key; ok is false on any failure.
	Load(ctx context.Context, key string) (t models.Table, ok bool)
	// Save writes t to path, updating the file in place when it exists and
	// creating it otherwise.
	Save(ctx context.Context, t models.Table, path, message string) bool
	ResolvePath(key string) string
	Check(ctx context.Context) (Status, error)
}

// Status is the result of a connectivity check.
type Status struct {
	Driver   string   `json:"driver"`
	Location string   `json:"location"`
	Branch   string   `json:"branch,omitempty"`
	Entries  []string `json:"entries"`
}

// Paths maps secrets keys to file paths.
type Paths map[string]string

// Resolve returns the path configured for key. A missing drones key resolves
// to voos.csv beside the default file; any other missing key resolves to the
// default file, then to dados.csv.
func (p Paths) Resolve(key string) string {
	if v := p[key]; v != "" {
		return v
	}
	if key == DronesKey {
		base := p[DefaultKey]
		if i := strings.LastIndex(base, "/"); i >= 0 {
			return base[:i] + "/voos.csv"
		}
		return "voos.csv"
	}
	if v := p[DefaultKey]; v != "" {
		return v
	}
	return "dados.csv"
}

// New builds the store selected by cfg.RemoteDriver.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (Store, error) {
	paths := Paths(cfg.Remote.Paths)
	switch cfg.RemoteDriver {
	case config.DriverGitHub:
		client := github.NewClient(&http.Client{Timeout: 20 * time.Second}).WithAuthToken(cfg.Remote.Token)
		return NewGitHub(client, cfg.Remote.Repo, cfg.Remote.Branch, paths, logger)
	case config.DriverS3:
		return NewS3(ctx, cfg.Remote.S3, paths, logger)
	case config.DriverNone, "":
		return None{Paths: paths}, nil
	}
	return nil, fmt.Errorf("unknown remote driver %q", cfg.RemoteDriver)
}

// None is used when no remote store is configured.
type None struct {
	Paths Paths
}

func (None) Name() string { return config.DriverNone }

func (None) Load(context.Context, string) (models.Table, bool) { return models.Table{}, false }

func (None) Save(context.Context, models.Table, string, string) bool { return false }

func (n None) ResolvePath(key string) string { return n.Paths.Resolve(key) }

func (None) Check(context.Context) (Status, error) { return Status{}, ErrNotConfigured }
