package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/vainnor/painel/config"
	"github.com/vainnor/painel/db"
	"github.com/vainnor/painel/models"
	"github.com/vainnor/painel/remote"
	"github.com/vainnor/painel/session"
	"github.com/vainnor/painel/views"
)

var fixedNow = time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	local, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "dados.db"))
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	logger := zap.NewNop()
	none := remote.None{}
	hash, err := bcrypt.GenerateFromPassword([]byte("segredo"), bcrypt.MinCost)
	require.NoError(t, err)

	h := NewHandler(Options{
		Sessions: session.NewManager(session.Stores{Remote: none, Local: local}, time.Hour, logger),
		Remote:   none,
		Auth:     NewAuth(config.Admin{Username: "admin", PasswordHash: string(hash)}, logger),
		Limiter:  NewRateLimiter(1000, 1000),
		Logger:   logger,
		Now:      func() time.Time { return fixedNow },
	})
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp := e.do(t, "POST", "/api/login", map[string]string{"username": "admin", "password": "segredo"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, "POST", "/api/login", map[string]string{"username": "admin", "password": "errada"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid credentials", decode[ErrorResponse](t, resp).Error)

	resp = env.do(t, "POST", "/api/login", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.login(t)
	info := decode[SessionResponse](t, env.do(t, "GET", "/api/session", nil))
	assert.Equal(t, SessionResponse{LoggedIn: true, User: "admin"}, info)

	env.do(t, "POST", "/api/logout", nil)
	info = decode[SessionResponse](t, env.do(t, "GET", "/api/session", nil))
	assert.False(t, info.LoggedIn)
}

func TestMutationsRequireLogin(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, "POST", "/api/flights", map[string]any{"date": "10/05/2024", "operator": "Test"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "GET", "/api/logistics/export", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "GET", "/api/flights", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reading is public")
}

func TestFlightFormInsert(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp := env.do(t, "POST", "/api/flights", map[string]any{
		"date": "10/05/2024", "operator": "Test", "flights": 5, "routes": 3,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	mut := decode[MutationResponse](t, resp)
	assert.Equal(t, 1, mut.Rows)
	assert.True(t, mut.Sync.Local)

	got := decode[RowsResponse[models.Flight]](t, env.do(t, "GET", "/api/flights", nil))
	require.Len(t, got.Rows, 1)
	assert.Equal(t, models.Flight{
		Date: models.NewDate(2024, 5, 10), Operator: "Test", Type: models.FlightFixed, Routes: 3, Flights: 5,
	}, got.Rows[0])
}

func TestFlightFormDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp := env.do(t, "POST", "/api/flights", map[string]any{"date": "2024-05-11", "operator": "Beta", "type": "RESERVA"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	got := decode[RowsResponse[models.Flight]](t, env.do(t, "GET", "/api/flights", nil))
	require.Len(t, got.Rows, 1)
	assert.Equal(t, 1, got.Rows[0].Flights)
	assert.Equal(t, 1, got.Rows[0].Routes)

	resp = env.do(t, "POST", "/api/flights", map[string]any{"date": "10/05/2024"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, resp).Error, "operator")

	resp = env.do(t, "POST", "/api/flights", map[string]any{"date": "10/05/2024", "operator": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, resp).Error, "notblank")

	resp = env.do(t, "POST", "/api/flights", map[string]any{"date": "ontem", "operator": "X"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogisticsFormDerivesTotal(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp := env.do(t, "POST", "/api/logistics", map[string]any{
		"date": "2024-03-04", "carrier": "Rapida", "operation": "LML", "released": 30, "held": 6,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decode[RowsResponse[models.Logistics]](t, env.do(t, "GET", "/api/logistics", nil))
	require.Len(t, got.Rows, 1)
	assert.Equal(t, 36, got.Rows[0].TotalCarriers)

	resp = env.do(t, "POST", "/api/logistics", map[string]any{
		"date": "2024-03-04", "carrier": "Rapida", "operation": "Aérea",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func upload(t *testing.T, env *testEnv, path, filename string, data []byte, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", env.srv.URL+path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func spreadsheet(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"DATA", "TRANSPORTADORA", "OPERAÇÃO", "LIBERADOS", "MALHA"},
		{"2024-03-04", "Rapida", "LML", 90, 10},
		{"sem data", "Rapida", "LML", 7, 1},
		{"2024-03-05", "Lenta", "Direta", 40, 10},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestImportSpreadsheet(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	data := spreadsheet(t)

	resp := upload(t, env, "/api/logistics/import", "dados.xlsx", data, map[string]string{"preview": "true"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	preview := decode[PreviewResponse[models.Logistics]](t, resp)
	assert.Len(t, preview.Rows, 2)
	assert.Equal(t, 1, preview.Report.Dropped)
	assert.Empty(t, decode[RowsResponse[models.Logistics]](t, env.do(t, "GET", "/api/logistics", nil)).Rows)

	resp = upload(t, env, "/api/logistics/import", "dados.xlsx", data, map[string]string{"mode": "merge"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rep := decode[session.ImportReport](t, resp)
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 1, rep.Normalize.Dropped)
	assert.Equal(t, 8.0, rep.Normalize.VolumeLost)

	resp = upload(t, env, "/api/logistics/import", "dados.xlsx", data, nil)
	rep = decode[session.ImportReport](t, resp)
	assert.Equal(t, 2, rep.Duplicates)
	assert.Equal(t, 2, rep.Total)

	resp = upload(t, env, "/api/logistics/import", "dados.pdf", data, nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp = upload(t, env, "/api/logistics/import", "dados.xlsx", data, map[string]string{"mode": "append"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.do(t, "POST", "/api/flights", map[string]any{"date": "10/05/2024", "operator": "Test", "flights": 5, "routes": 3})

	resp := env.do(t, "GET", "/api/flights/export?format=csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="voos.csv"`, resp.Header.Get("Content-Disposition"))

	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Data", "Operador", "Tipo", "Rotas", "Voos", "Obs"},
		{"10/05/2024", "Test", "FIXO", "3", "5", ""},
	}, records)

	resp = env.do(t, "GET", "/api/flights/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportFilteredCSV(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.do(t, "POST", "/api/flights", map[string]any{"date": "10/05/2024", "operator": "Alfa", "flights": 2})
	env.do(t, "POST", "/api/flights", map[string]any{"date": "11/05/2024", "operator": "Beta", "flights": 4})
	env.do(t, "POST", "/api/flights", map[string]any{"date": "12/05/2023", "operator": "Alfa", "flights": 6})

	resp := env.do(t, "GET", "/api/flights/export?format=csv&operators=Alfa&year=2024", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Data", "Operador", "Tipo", "Rotas", "Voos", "Obs"},
		{"10/05/2024", "Alfa", "FIXO", "1", "2", ""},
	}, records)

	for _, carrier := range []string{"Rapida", "Lenta"} {
		env.do(t, "POST", "/api/logistics", map[string]any{
			"date": "2024-03-04", "carrier": carrier, "operation": "LML", "released": 9, "held": 1,
		})
	}
	resp = env.do(t, "GET", "/api/logistics/export?format=csv&carriers=Lenta&from=2024-03-01&to=2024-03-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records, err = csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Contains(t, records[1], "Lenta")

	resp = env.do(t, "GET", "/api/flights/export?format=csv&year=dois", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEditReplacesFilteredRows(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	for _, op := range []string{"Alfa", "Beta"} {
		env.do(t, "POST", "/api/flights", map[string]any{"date": "10/05/2024", "operator": op})
	}

	resp := env.do(t, "PUT", "/api/flights", map[string]any{
		"filter": map[string]any{"operators": []string{"Alfa"}},
		"rows": []map[string]any{
			{"date": "2024-05-09", "operator": "Alfa", "type": "FIXO", "routes": 2, "flights": 8},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[RowsResponse[models.Flight]](t, env.do(t, "GET", "/api/flights", nil))
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "Alfa", got.Rows[0].Operator)
	assert.Equal(t, 8, got.Rows[0].Flights)
	assert.Equal(t, "Beta", got.Rows[1].Operator)
}

func TestFlightsDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.do(t, "POST", "/api/flights", map[string]any{"date": "18/05/2024", "operator": "Alfa", "flights": 10})

	d := decode[views.FlightDashboard](t, env.do(t, "GET", "/api/flights/dashboard", nil))
	assert.Equal(t, 10, d.KPI.Flights)
	assert.Equal(t, 15, d.Projection, "10 flights by May 20th")

	d = decode[views.FlightDashboard](t, env.do(t, "GET", "/api/flights/dashboard?operators=", nil))
	assert.NotEmpty(t, d.Warnings)
	assert.Zero(t, d.KPI.Flights)

	resp := env.do(t, "GET", "/api/flights/dashboard?from=amanha", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogisticsDashboardReadMode(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	for _, carrier := range []string{"Rapida", "Lenta"} {
		env.do(t, "POST", "/api/logistics", map[string]any{
			"date": "2024-03-04", "carrier": carrier, "operation": "LML", "released": 9, "held": 1,
		})
	}

	d := decode[views.LogisticsDashboard](t, env.do(t, "GET", "/api/logistics/dashboard?carriers=Rapida", nil))
	assert.Len(t, d.Rows, 1)

	env.do(t, "POST", "/api/logout", nil)
	d = decode[views.LogisticsDashboard](t, env.do(t, "GET", "/api/logistics/dashboard?carriers=Rapida", nil))
	assert.Len(t, d.Rows, 2, "anonymous sessions ignore filters")
	assert.Equal(t, 10.0, d.KPI.Retention.Value)
}

func TestSessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.do(t, "POST", "/api/flights", map[string]any{"date": "10/05/2024", "operator": "Test"})

	other := &http.Client{}
	resp, err := other.Get(env.srv.URL + "/api/session")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.False(t, decode[SessionResponse](t, resp).LoggedIn)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Set-Cookie"), SessionCookie+"="))
}

func TestResetRehydratesFromLocal(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.do(t, "POST", "/api/flights", map[string]any{"date": "10/05/2024", "operator": "Test"})

	got := decode[ResetResponse](t, env.do(t, "POST", "/api/flights/reset", nil))
	assert.Equal(t, 1, got.Rows)
	assert.Equal(t, session.SourceLocal, got.Source)
}

func TestRemoteCheckWithoutRemote(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	resp := env.do(t, "GET", "/api/remote/check", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := fixedNow
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "clients are limited separately")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))

	now = now.Add(10 * time.Minute)
	l.Allow("10.0.0.3")
	assert.Len(t, l.clients, 1, "idle clients are dropped")
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	l.now = func() time.Time { return fixedNow }
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/api/flights", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRejectedRequestsCreateNoSessions(t *testing.T) {
	logger := zap.NewNop()
	sessions := session.NewManager(session.Stores{Remote: remote.None{}}, time.Hour, logger)
	limiter := NewRateLimiter(0.001, 1)
	limiter.now = func() time.Time { return fixedNow }
	router := NewRouter(NewHandler(Options{
		Sessions: sessions,
		Remote:   remote.None{},
		Auth:     NewAuth(config.Admin{Username: "admin", Password: "abc"}, logger),
		Limiter:  limiter,
		Logger:   logger,
	}))

	var limited int
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest("GET", "/api/session", nil)
		req.RemoteAddr = "192.0.2.7:4000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			assert.Empty(t, rec.Header().Get("Set-Cookie"))
			limited++
		}
	}
	assert.Equal(t, 49, limited)
	assert.Equal(t, 1, sessions.Len())
}

func TestLoginIssuesNewSession(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "GET", "/api/session", nil)
	u, err := url.Parse(env.srv.URL)
	require.NoError(t, err)
	cookieValue := func() string {
		for _, c := range env.client.Jar.Cookies(u) {
			if c.Name == SessionCookie {
				return c.Value
			}
		}
		return ""
	}
	before := cookieValue()
	require.NotEmpty(t, before)

	env.login(t)
	after := cookieValue()
	assert.NotEqual(t, before, after)

	anon := &http.Client{}
	req, err := http.NewRequest("GET", env.srv.URL+"/api/session", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: before})
	resp, err := anon.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.False(t, decode[SessionResponse](t, resp).LoggedIn, "the old id is not logged in")
}

func TestAuthPlainPassword(t *testing.T) {
	a := NewAuth(config.Admin{Username: "admin", Password: "abc"}, zap.NewNop())
	assert.True(t, a.Check("admin", "abc"))
	assert.False(t, a.Check("admin", "abd"))
	assert.False(t, a.Check("root", "abc"))

	disabled := NewAuth(config.Admin{Username: "admin"}, zap.NewNop())
	assert.False(t, disabled.Check("admin", ""))
}
