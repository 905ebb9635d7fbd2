package api

import (
	"github.com/vainnor/painel/normalize"
	"github.com/vainnor/painel/session"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type SessionResponse struct {
	LoggedIn bool   `json:"logged_in"`
	User     string `json:"user,omitempty"`
}

type RowsResponse[T any] struct {
	Rows   []T              `json:"rows"`
	Source session.Source   `json:"source"`
	Report normalize.Report `json:"report"`
}

type MutationResponse struct {
	Rows   int                `json:"rows"`
	Sync   session.SyncReport `json:"sync"`
	Report *normalize.Report  `json:"report,omitempty"`
}

// PreviewResponse shows what an import would keep without applying it.
type PreviewResponse[T any] struct {
	Columns []string         `json:"columns"`
	Rows    []T              `json:"rows"`
	Report  normalize.Report `json:"report"`
}

type ResetResponse struct {
	Rows   int            `json:"rows"`
	Source session.Source `json:"source"`
}
