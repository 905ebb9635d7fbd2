package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vainnor/painel/models"
)

// fakeRepo serves the contents API for a single repository.
type fakeRepo struct {
	mu      sync.Mutex
	files   map[string][]byte
	sha     map[string]string
	puts    []map[string]any
	failGet bool
}

func (f *fakeRepo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/repos/acme/dados/contents"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		if f.failGet {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"boom"}`))
			return
		}
		if path == "" {
			var dir []map[string]any
			for name := range f.files {
				dir = append(dir, map[string]any{"type": "file", "name": name, "path": name})
			}
			_ = json.NewEncoder(w).Encode(dir)
			return
		}
		body, ok := f.files[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"encoding": "base64",
			"path":     path,
			"sha":      f.sha[path],
			"size":     len(body),
			"content":  base64.StdEncoding.EncodeToString(body),
		})
	case http.MethodPut:
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.puts = append(f.puts, req)
		if _, exists := f.files[path]; exists && req["sha"] != f.sha[path] {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"sha mismatch"}`))
			return
		}
		content, _ := base64.StdEncoding.DecodeString(req["content"].(string))
		f.files[path] = content
		f.sha[path] = "sha-" + path
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": map[string]any{"path": path, "sha": f.sha[path]},
			"commit":  map[string]any{"sha": "c1"},
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestGitHub(t *testing.T, repo *fakeRepo) *GitHub {
	t.Helper()
	srv := httptest.NewServer(repo)
	t.Cleanup(srv.Close)

	client := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	g, err := NewGitHub(client, "acme/dados", "main", Paths{DefaultKey: "data/logistica.csv"}, zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestNewGitHubRejectsBadRepo(t *testing.T) {
	for _, repo := range []string{"", "acme", "/dados", "acme/", "a/b/c"} {
		_, err := NewGitHub(github.NewClient(nil), repo, "", nil, zap.NewNop())
		assert.Error(t, err, repo)
	}
}

func TestGitHubLoad(t *testing.T) {
	repo := &fakeRepo{
		files: map[string][]byte{"data/logistica.csv": []byte("DATA,MALHA\n2024-01-01,4\n")},
		sha:   map[string]string{"data/logistica.csv": "abc"},
	}
	g := newTestGitHub(t, repo)

	got, ok := g.Load(context.Background(), DefaultKey)
	require.True(t, ok)
	assert.Equal(t, []string{"DATA", "MALHA"}, got.Columns)
	assert.Equal(t, [][]string{{"2024-01-01", "4"}}, got.Rows)

	_, ok = g.Load(context.Background(), DronesKey)
	assert.False(t, ok, "data/voos.csv does not exist")
}

func TestGitHubLoadFailure(t *testing.T) {
	g := newTestGitHub(t, &fakeRepo{failGet: true, files: map[string][]byte{}, sha: map[string]string{}})
	_, ok := g.Load(context.Background(), DefaultKey)
	assert.False(t, ok)
}

func TestGitHubSaveUpdatesWithSHA(t *testing.T) {
	repo := &fakeRepo{
		files: map[string][]byte{"data/logistica.csv": []byte("DATA\n")},
		sha:   map[string]string{"data/logistica.csv": "abc"},
	}
	g := newTestGitHub(t, repo)

	table := models.Table{Columns: []string{"DATA"}, Rows: [][]string{{"2024-01-02"}}}
	require.True(t, g.Save(context.Background(), table, "data/logistica.csv", "Atualização"))

	require.Len(t, repo.puts, 1)
	assert.Equal(t, "abc", repo.puts[0]["sha"])
	assert.Equal(t, "Atualização", repo.puts[0]["message"])
	assert.Equal(t, "main", repo.puts[0]["branch"])
	assert.Equal(t, "DATA\n2024-01-02\n", string(repo.files["data/logistica.csv"]))
}

func TestGitHubSaveCreatesMissingFile(t *testing.T) {
	repo := &fakeRepo{files: map[string][]byte{}, sha: map[string]string{}}
	g := newTestGitHub(t, repo)

	table := models.Table{Columns: []string{"Data"}, Rows: [][]string{{"01/01/2024"}}}
	require.True(t, g.Save(context.Background(), table, "data/voos.csv", "Novo voo"))

	require.Len(t, repo.puts, 1)
	assert.Nil(t, repo.puts[0]["sha"])
	assert.Equal(t, "Criando: Novo voo", repo.puts[0]["message"])
	assert.Contains(t, repo.files, "data/voos.csv")
}

func TestGitHubSaveFailure(t *testing.T) {
	g := newTestGitHub(t, &fakeRepo{failGet: true, files: map[string][]byte{}, sha: map[string]string{}})
	assert.False(t, g.Save(context.Background(), models.Table{Columns: []string{"A"}}, "x.csv", "m"))
}

func TestGitHubCheck(t *testing.T) {
	repo := &fakeRepo{
		files: map[string][]byte{"b.csv": nil, "a.csv": nil},
		sha:   map[string]string{},
	}
	g := newTestGitHub(t, repo)

	st, err := g.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acme/dados", st.Location)
	assert.Equal(t, "main", st.Branch)
	assert.Equal(t, []string{"a.csv", "b.csv"}, st.Entries)
}
