package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vainnor/painel/models"
	"github.com/vainnor/painel/normalize"
	"github.com/vainnor/painel/session"
	"github.com/vainnor/painel/transfer"
	"github.com/vainnor/painel/views"
)

const maxUploadBytes = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CheckRemote lists the remote store root to confirm credentials.
func (h *Handler) CheckRemote(w http.ResponseWriter, r *http.Request) {
	st, err := h.remote.Check(r.Context())
	if err != nil {
		h.logger.Warn("remote check failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// endpoints describes how one dataset is exposed over HTTP.
type endpoints[T models.Record, F any] struct {
	name string
	pick func(*session.Session) *session.Dataset[T]
	// insert decodes and validates a form body into a row
	insert func(h *Handler, body io.Reader) (T, error)
	match  func(F) func(T) bool
	// exportMatch selects the exported rows from the query string
	exportMatch func(url.Values) (func(T) bool, error)
	// dashboard builds the view; anonymous sessions get default filters
	dashboard func(rows []T, r *http.Request, loggedIn bool, now time.Time) (any, error)
}

var flightsEndpoints = endpoints[models.Flight, flightEditFilter]{
	name: models.FlightSchema.Name,
	pick: func(s *session.Session) *session.Dataset[models.Flight] { return s.Flights },
	insert: func(h *Handler, body io.Reader) (models.Flight, error) {
		var form flightForm
		if err := decodeForm(h, body, &form); err != nil {
			return models.Flight{}, err
		}
		return form.record()
	},
	match:       func(f flightEditFilter) func(models.Flight) bool { return f.match },
	exportMatch: flightExportFilter,
	dashboard: func(rows []models.Flight, r *http.Request, _ bool, now time.Time) (any, error) {
		f, err := flightFilter(r.URL.Query())
		if err != nil {
			return nil, err
		}
		return views.Flights(rows, f, now), nil
	},
}

var logisticsEndpoints = endpoints[models.Logistics, logisticsEditFilter]{
	name: models.LogisticsSchema.Name,
	pick: func(s *session.Session) *session.Dataset[models.Logistics] { return s.Logistics },
	insert: func(h *Handler, body io.Reader) (models.Logistics, error) {
		var form logisticsForm
		if err := decodeForm(h, body, &form); err != nil {
			return models.Logistics{}, err
		}
		return form.record()
	},
	match:       func(f logisticsEditFilter) func(models.Logistics) bool { return f.match },
	exportMatch: logisticsExportFilter,
	dashboard: func(rows []models.Logistics, r *http.Request, loggedIn bool, _ time.Time) (any, error) {
		var f views.LogisticsFilter
		if loggedIn {
			var err error
			if f, err = logisticsFilter(r.URL.Query()); err != nil {
				return nil, err
			}
		}
		return views.Logistics(rows, f), nil
	},
}

func decodeForm(h *Handler, body io.Reader, form any) error {
	if err := json.NewDecoder(body).Decode(form); err != nil {
		return errors.New("invalid request body")
	}
	if err := h.validate.Struct(form); err != nil {
		return errors.New(validationMessage(err))
	}
	return nil
}

func registerDataset[T models.Record, F any](r *mux.Router, h *Handler, e endpoints[T, F]) {
	sub := r.PathPrefix("/" + e.name).Subrouter()
	auth := func(fn http.HandlerFunc) http.Handler { return h.RequireLogin(fn) }

	sub.HandleFunc("", e.list).Methods("GET")
	sub.HandleFunc("/dashboard", e.viewDashboard(h)).Methods("GET")
	sub.Handle("", auth(e.create(h))).Methods("POST")
	sub.Handle("", auth(e.edit(h))).Methods("PUT")
	sub.Handle("/import", auth(e.importFile(h))).Methods("POST")
	sub.Handle("/export", auth(e.export(h))).Methods("GET")
	sub.Handle("/reset", auth(e.reset)).Methods("POST")
}

func (e endpoints[T, F]) list(w http.ResponseWriter, r *http.Request) {
	snap := e.pick(sessionFrom(r.Context())).Rows(r.Context())
	rows := snap.Rows
	if rows == nil {
		rows = []T{}
	}
	writeJSON(w, http.StatusOK, RowsResponse[T]{Rows: rows, Source: snap.Source, Report: snap.Report})
}

func (e endpoints[T, F]) viewDashboard(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())
		snap := e.pick(s).Rows(r.Context())
		d, err := e.dashboard(snap.Rows, r, s.LoggedIn(), h.now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func (e endpoints[T, F]) create(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		row, err := e.insert(h, r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ds := e.pick(sessionFrom(r.Context()))
		rep := ds.Append(r.Context(), row, fmt.Sprintf("Novo registro %s", row.Day()))
		writeJSON(w, http.StatusCreated, MutationResponse{Rows: len(ds.Rows(r.Context()).Rows), Sync: rep})
	}
}

func (e endpoints[T, F]) edit(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req editRequest[T, F]
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ds := e.pick(sessionFrom(r.Context()))
		rep, report, err := ds.ReplaceWhere(r.Context(), e.match(req.Filter), req.Rows, "Edição de dados")
		if err != nil {
			h.logger.Error("edit failed", zap.String("dataset", e.name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, MutationResponse{Rows: len(ds.Rows(r.Context()).Rows), Sync: rep, Report: &report})
	}
}

func (e endpoints[T, F]) importFile(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file")
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file")
			return
		}
		mode, err := session.ParseMode(r.FormValue("mode"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		ds := e.pick(sessionFrom(r.Context()))
		table, err := transfer.ReadUpload(r.Context(), header.Filename, data, ds.Schema())
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, transfer.ErrUnsupportedFormat) {
				status = http.StatusUnsupportedMediaType
			}
			writeError(w, status, err.Error())
			return
		}

		if r.FormValue("preview") == "true" {
			e.preview(w, ds, table)
			return
		}
		rep, err := ds.Import(r.Context(), table, mode, "Importação de "+header.Filename)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Info("import applied",
			zap.String("dataset", e.name),
			zap.String("file", header.Filename),
			zap.Int("added", rep.Added),
			zap.Int("dropped", rep.Normalize.Dropped),
		)
		writeJSON(w, http.StatusOK, rep)
	}
}

func (e endpoints[T, F]) preview(w http.ResponseWriter, ds *session.Dataset[T], table models.Table) {
	res, err := ds.Preview(table)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	rows := res.Rows
	if rows == nil {
		rows = []T{}
	}
	writeJSON(w, http.StatusOK, PreviewResponse[T]{Columns: normalize.Header(table.Columns), Rows: rows, Report: res.Report})
}

func (e endpoints[T, F]) export(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		format, err := transfer.ParseFormat(q.Get("format"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		match, err := e.exportMatch(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ds := e.pick(sessionFrom(r.Context()))
		var rows []T
		for _, row := range ds.Rows(r.Context()).Rows {
			if match(row) {
				rows = append(rows, row)
			}
		}
		table := models.Encode(ds.Schema(), rows)
		file, err := transfer.Export(r.Context(), format, ds.Schema(), table)
		if err != nil {
			h.logger.Error("export failed", zap.String("dataset", e.name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", file.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
		w.WriteHeader(http.StatusOK)
		w.Write(file.Data)
	}
}

func (e endpoints[T, F]) reset(w http.ResponseWriter, r *http.Request) {
	ds := e.pick(sessionFrom(r.Context()))
	ds.Reset()
	snap := ds.Rows(r.Context())
	writeJSON(w, http.StatusOK, ResetResponse{Rows: len(snap.Rows), Source: snap.Source})
}
