// Package viewtest runs console handlers against the demo API in tests.
package viewtest

import (
	"context"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/crudboard/internal/apiclient"
	"github.com/simp-lee/crudboard/internal/config"
	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/mockapi"
)

// Secret signs the demo API tokens in tests.
const Secret = "viewtest-secret-0123456789abcdefghij"

// templates print the data handlers pass, one fact per token, so tests can
// assert on it without the real layout.
const templates = `
{{define "grid"}}rows:{{range .Rows}} [{{.ID}}{{if .Selected}}*{{end}}{{range .Cells}}|{{.}}{{end}}]{{end}} total:{{.Meta.Total}} error:{{.Error}}{{end}}
{{define "crud/list.html"}}LIST {{.Title}} {{template "grid" .Grid}}{{end}}
{{define "crud/grid.html"}}{{template "grid" .Grid}}{{end}}
{{define "crud/confirm.html"}}CONFIRM {{.Message}}{{end}}
{{define "crud/form.html"}}FORM {{.Form.Title}} error:{{.Form.Error}}{{range .Form.Fields}} {{.Name}}={{.Value}}{{range .Errors}}!{{.}}{{end}}{{range .Options}}[{{.Value}}{{if .Checked}}x{{end}}]{{end}}{{end}}{{end}}
{{define "auth/login.html"}}LOGIN error:{{.Error}} email={{.Email}}{{range $k, $v := .Errors}} {{$k}}!{{index $v 0}}{{end}}{{end}}
{{define "auth/register.html"}}REGISTER error:{{.Error}}{{range $k, $v := .Errors}} {{$k}}!{{index $v 0}}{{end}}{{end}}
{{define "auth/profile.html"}}PROFILE {{with .Profile}}{{.Name}} {{.Email}} avatar={{if .Avatar}}{{.Avatar}}{{end}}{{end}}{{end}}
{{define "auth/profile_edit.html"}}PROFILE EDIT error:{{.Error}} name={{.Name}} email={{.Email}}{{range $k, $v := .Errors}} {{$k}}!{{index $v 0}}{{end}}{{end}}
{{define "errors/404.html"}}NOT FOUND{{end}}
{{define "errors/500.html"}}SERVER ERROR {{.Message}}{{end}}
`

// Engine returns a gin engine rendering the test templates.
func Engine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.SetHTMLTemplate(template.Must(template.New("").Parse(templates)))
	return engine
}

// DiscardLogger drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// API is a seeded demo API served over HTTP.
type API struct {
	URL    string
	DB     *gorm.DB
	Client *apiclient.Client
}

// NewAPI starts a seeded demo API. The returned client is not signed in.
func NewAPI(t *testing.T) *API {
	t.Helper()
	db, err := config.SetupDatabase(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}, DiscardLogger(), mockapi.Models()...)
	if err != nil {
		t.Fatalf("SetupDatabase() error: %v", err)
	}
	t.Cleanup(func() { config.CloseDatabase(db) })

	if err := mockapi.Seed(context.Background(), db, DiscardLogger()); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	engine, err := mockapi.NewServer(db, mockapi.Options{
		JWTSecret: Secret,
		AvatarDir: t.TempDir(),
		Logger:    DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	client, err := apiclient.New(srv.URL+"/api/", apiclient.WithLogger(DiscardLogger()))
	if err != nil {
		t.Fatalf("apiclient.New() error: %v", err)
	}
	return &API{URL: srv.URL, DB: db, Client: client}
}

// NewSignedInAPI starts a seeded demo API with the client signed in as the
// seeded administrator.
func NewSignedInAPI(t *testing.T) *API {
	t.Helper()
	api := NewAPI(t)
	env, err := api.Client.Send(context.Background(), http.MethodPost, "auth/login", nil, domain.Credentials{
		Email:    mockapi.SeedAdminEmail,
		Password: mockapi.SeedAdminPassword,
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	tok, err := apiclient.DecodeData[domain.AccessToken](env)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	api.Client.SetToken(tok.AccessToken)
	return api
}

// Do sends a request to engine. A non-nil form is sent url-encoded.
func Do(engine http.Handler, method, target string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	body := ""
	if form != nil {
		body = form.Encode()
	}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}
