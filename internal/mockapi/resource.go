package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/pkg"
)

// resource serves the list/read/write/delete endpoints of one table. In is
// the create payload and build turns it into a row. Up is the partial update
// payload; apply copies its present fields onto a stored row.
type resource[T any, In any, Up any] struct {
	label   string
	repo    *Repository[T]
	parseID func(string) (any, error)
	build   func(ctx context.Context, in In) (*T, error)
	apply   func(ctx context.Context, item *T, up Up) error
	// unique is the payload field blamed when a unique column conflicts.
	unique string
	// validateCreate and validateUpdate run checks the binding tags cannot
	// express.
	validateCreate func(in In) map[string][]string
	validateUpdate func(up Up) map[string][]string
}

// register mounts the resource under path. The batch route is registered
// before the :id routes so it is never taken for an identifier.
func (r *resource[T, In, Up]) register(g *gin.RouterGroup, path string) {
	g.GET(path, r.list)
	g.POST(path, r.create)
	g.DELETE(path+"/batch-delete", r.batchDelete)
	g.GET(path+"/:id", r.get)
	g.PUT(path+"/:id", r.update)
	g.PATCH(path+"/:id", r.update)
	g.DELETE(path+"/:id", r.remove)
}

func (r *resource[T, In, Up]) list(c *gin.Context) {
	req := pkg.ParsePageRequest(c)
	page, err := r.repo.List(c.Request.Context(), req, requestURL(c))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.List(c, page)
}

func (r *resource[T, In, Up]) get(c *gin.Context) {
	item, ok := r.find(c)
	if !ok {
		return
	}
	pkg.Success(c, item)
}

func (r *resource[T, In, Up]) create(c *gin.Context) {
	var in In
	if !pkg.BindAndValidate(c, &in) {
		return
	}
	if r.validateCreate != nil {
		if fields := r.validateCreate(in); len(fields) > 0 {
			pkg.Error(c, domain.NewValidationError(pkg.ValidationMessage, fields))
			return
		}
	}

	ctx := c.Request.Context()
	item, err := r.build(ctx, in)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	if err := r.repo.Create(ctx, item); err != nil {
		pkg.Error(c, r.conflict(err))
		return
	}
	pkg.Created(c, item)
}

func (r *resource[T, In, Up]) update(c *gin.Context) {
	item, ok := r.find(c)
	if !ok {
		return
	}
	var up Up
	if !pkg.BindAndValidate(c, &up) {
		return
	}
	if r.validateUpdate != nil {
		if fields := r.validateUpdate(up); len(fields) > 0 {
			pkg.Error(c, domain.NewValidationError(pkg.ValidationMessage, fields))
			return
		}
	}

	ctx := c.Request.Context()
	if err := r.apply(ctx, item, up); err != nil {
		pkg.Error(c, err)
		return
	}
	if err := r.repo.Save(ctx, item); err != nil {
		pkg.Error(c, r.conflict(err))
		return
	}
	pkg.Success(c, item)
}

func (r *resource[T, In, Up]) remove(c *gin.Context) {
	id, err := r.parseID(c.Param("id"))
	if err != nil {
		pkg.Error(c, r.notFound(err))
		return
	}
	if err := r.repo.Delete(c.Request.Context(), id); err != nil {
		pkg.Error(c, r.notFound(err))
		return
	}
	pkg.Deleted(c, r.label+" deleted")
}

// batchDelete handles DELETE {path}/batch-delete?ids=1,2,3. The batch is
// all-or-nothing.
func (r *resource[T, In, Up]) batchDelete(c *gin.Context) {
	raw := strings.Split(c.Query("ids"), ",")
	ids := make([]any, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := r.parseID(s)
		if err != nil {
			pkg.Error(c, domain.NewValidationError(pkg.ValidationMessage, map[string][]string{
				"ids": {fmt.Sprintf("The id %q is invalid.", s)},
			}))
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		pkg.Error(c, domain.NewValidationError(pkg.ValidationMessage, map[string][]string{
			"ids": {"The ids field is required."},
		}))
		return
	}

	if err := r.repo.DeleteMany(c.Request.Context(), ids); err != nil {
		pkg.Error(c, r.notFound(err))
		return
	}
	pkg.Deleted(c, fmt.Sprintf("%d %s records deleted", len(ids), strings.ToLower(r.label)))
}

func (r *resource[T, In, Up]) find(c *gin.Context) (*T, bool) {
	id, err := r.parseID(c.Param("id"))
	if err != nil {
		pkg.Error(c, r.notFound(err))
		return nil, false
	}
	item, err := r.repo.Get(c.Request.Context(), id)
	if err != nil {
		pkg.Error(c, r.notFound(err))
		return nil, false
	}
	return item, true
}

// notFound gives not-found errors the resource label. Unparseable IDs are
// reported as missing rows.
func (r *resource[T, In, Up]) notFound(err error) error {
	if domain.IsNotFound(err) || !isAppError(err) {
		return domain.NewAppError(domain.CodeNotFound, r.label+" not found", err)
	}
	return err
}

// conflict reports a unique violation as a validation error on the unique
// field.
func (r *resource[T, In, Up]) conflict(err error) error {
	if r.unique != "" && domain.IsAlreadyExists(err) {
		return takenError(r.unique)
	}
	return err
}

func takenError(field string) error {
	return domain.NewValidationError(pkg.ValidationMessage, map[string][]string{
		field: {fmt.Sprintf("The %s has already been taken.", strings.ReplaceAll(field, "_", " "))},
	})
}

func isAppError(err error) bool {
	var appErr *domain.AppError
	return errors.As(err, &appErr)
}

// requestURL rebuilds the absolute URL of the request for page links.
func requestURL(c *gin.Context) *url.URL {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd == "http" || fwd == "https" {
		scheme = fwd
	}
	return &url.URL{
		Scheme:   scheme,
		Host:     c.Request.Host,
		Path:     c.Request.URL.Path,
		RawQuery: c.Request.URL.RawQuery,
	}
}

// absoluteURL joins an absolute path onto the scheme and host of the request.
func absoluteURL(c *gin.Context, path string) string {
	u := requestURL(c)
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: path}).String()
}
