package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"github.com/vainnor/painel/config"
	"github.com/vainnor/painel/models"
)

// GitHub stores datasets as CSV files in a repository branch.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	branch string
	paths  Paths
	logger *zap.Logger
}

// NewGitHub wraps an authenticated client. repo is "owner/name".
func NewGitHub(client *github.Client, repo, branch string, paths Paths, logger *zap.Logger) (*GitHub, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid github repository %q, want owner/name", repo)
	}
	if branch == "" {
		branch = "main"
	}
	return &GitHub{
		client: client,
		owner:  owner,
		repo:   name,
		branch: branch,
		paths:  paths,
		logger: logger.With(zap.String("remote", config.DriverGitHub), zap.String("repo", repo)),
	}, nil
}

func (g *GitHub) Name() string { return config.DriverGitHub }

func (g *GitHub) ResolvePath(key string) string { return g.paths.Resolve(key) }

func (g *GitHub) Load(ctx context.Context, key string) (models.Table, bool) {
	path := g.ResolvePath(key)
	raw, err := g.fetch(ctx, path)
	if err != nil {
		g.logger.Warn("remote load failed", zap.String("path", path), zap.Error(err))
		return models.Table{}, false
	}
	t, err := DecodeCSV(raw)
	if err != nil {
		g.logger.Warn("remote file unreadable", zap.String("path", path), zap.Error(err))
		return models.Table{}, false
	}
	return t, true
}

func (g *GitHub) fetch(ctx context.Context, path string) ([]byte, error) {
	opts := &github.RepositoryContentGetOptions{Ref: g.branch}
	file, _, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path, opts)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	// Files above the inline limit come back without content.
	if file.Content == nil || file.GetEncoding() == "none" {
		rc, _, err := g.client.Repositories.DownloadContents(ctx, g.owner, g.repo, path, opts)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

func (g *GitHub) Save(ctx context.Context, t models.Table, path, message string) bool {
	log := g.logger.With(zap.String("path", path))
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: EncodeCSV(t),
		Branch:  github.String(g.branch),
	}

	file, _, resp, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path,
		&github.RepositoryContentGetOptions{Ref: g.branch})
	switch {
	case err == nil && file != nil:
		opts.SHA = file.SHA
		_, _, err = g.client.Repositories.UpdateFile(ctx, g.owner, g.repo, path, opts)
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		opts.Message = github.String("Criando: " + message)
		_, _, err = g.client.Repositories.CreateFile(ctx, g.owner, g.repo, path, opts)
	case err == nil:
		err = fmt.Errorf("%s is a directory", path)
	}
	if err != nil {
		log.Warn("remote save failed", zap.Error(err))
		return false
	}
	log.Info("remote file saved", zap.Int("rows", t.Len()))
	return true
}

// Check lists the repository root on the configured branch.
func (g *GitHub) Check(ctx context.Context) (Status, error) {
	st := Status{Driver: g.Name(), Location: g.owner + "/" + g.repo, Branch: g.branch}
	_, dir, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, "",
		&github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		return st, err
	}
	for _, entry := range dir {
		st.Entries = append(st.Entries, entry.GetPath())
	}
	sort.Strings(st.Entries)
	return st, nil
}
