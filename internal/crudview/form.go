package crudview

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/simp-lee/crudboard/internal/crud"
	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/pkg"
)

// FormErrorKey holds errors that belong to no single field.
const FormErrorKey = "_form"

// Field is one input of a create/edit form.
type Field struct {
	Name     string
	Label    string
	Type     string // text, email, password, number, date, textarea or checkboxes
	Required bool
	Hint     string
	// Options lists the choices of a checkboxes field, built from the
	// form's extra data.
	Options func(extra any) []Option
}

// Option is one choice of a checkboxes field.
type Option struct {
	Value   string
	Label   string
	Checked bool
}

// Form describes the create and edit pages of a grid.
type Form[T crud.Resource[ID], ID comparable] struct {
	Fields []Field
	// Values returns the initial field values of an existing item. A
	// checkboxes field takes a slice of the checked option values.
	Values func(T) map[string][]string
	// Bind turns the submitted form into the API payload. Field errors are
	// keyed by Field.Name.
	Bind func(c *gin.Context, editing bool) (any, map[string][]string)
	// Extra loads data the template needs besides the item, such as option
	// lists. On the edit page it runs concurrently with the item fetch.
	Extra func(ctx context.Context) (any, error)
	// AfterSave runs after a successful create or update.
	AfterSave func(ctx context.Context, c *gin.Context, item T) error
}

// FormView is the template data of a form page.
type FormView struct {
	Title   string
	Action  string
	Cancel  string
	Editing bool
	Fields  []FieldView
	Error   string
	Extra   any
	Item    any
}

// FieldView is one rendered input.
type FieldView struct {
	Field
	Value   string
	Options []Option
	Errors  []string
}

// BindForm binds the submitted form into In. Failures come back as field
// errors keyed by the form names.
func BindForm[In any](c *gin.Context) (In, map[string][]string) {
	var in In
	if err := c.ShouldBind(&in); err != nil {
		fields := pkg.ValidationFields(err, &in)
		if len(fields) == 0 {
			fields = map[string][]string{FormErrorKey: {"The submitted form could not be read."}}
		}
		return in, fields
	}
	return in, nil
}

// NewPage renders an empty create form.
// GET /{path}/new
func (g *Grid[T, ID]) NewPage(c *gin.Context) {
	extra, err := g.loadExtra(c.Request.Context())
	if err != nil {
		g.pageError(c, err)
		return
	}
	g.renderForm(c, http.StatusOK, formState[T]{extra: extra})
}

// EditPage renders the edit form of one item. The item and the form's extra
// data are loaded concurrently.
// GET /{path}/:id/edit
func (g *Grid[T, ID]) EditPage(c *gin.Context) {
	id, err := g.parseID(c.Param("id"))
	if err != nil {
		c.HTML(http.StatusNotFound, "errors/404.html", PageData(c, nil))
		return
	}

	var (
		item  T
		extra any
	)
	eg, ctx := errgroup.WithContext(c.Request.Context())
	eg.Go(func() error {
		var err error
		item, err = g.store.FetchOne(ctx, id)
		return err
	})
	if g.form.Extra != nil {
		eg.Go(func() error {
			var err error
			extra, err = g.form.Extra(ctx)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		g.pageError(c, err)
		return
	}

	g.renderForm(c, http.StatusOK, formState[T]{
		item:    &item,
		id:      formatID(id),
		values:  g.form.Values(item),
		extra:   extra,
		editing: true,
	})
}

// Create submits the create form.
// POST /{path}
func (g *Grid[T, ID]) Create(c *gin.Context) {
	payload, fields := g.form.Bind(c, false)
	if len(fields) > 0 {
		g.rejectForm(c, formState[T]{fields: fields})
		return
	}

	ctx := c.Request.Context()
	item, err := g.store.CreateOne(ctx, payload)
	if g.expired(c, err) {
		return
	}
	if err != nil {
		g.rejectForm(c, formState[T]{err: err})
		return
	}
	g.saved(c, item, g.singular+" created.")
}

// Update submits the edit form.
// POST /{path}/:id, PUT /{path}/:id
func (g *Grid[T, ID]) Update(c *gin.Context) {
	id, err := g.parseID(c.Param("id"))
	if err != nil {
		c.HTML(http.StatusNotFound, "errors/404.html", PageData(c, nil))
		return
	}
	state := formState[T]{id: formatID(id), editing: true}

	payload, fields := g.form.Bind(c, true)
	if len(fields) > 0 {
		state.fields = fields
		g.rejectForm(c, state)
		return
	}

	ctx := c.Request.Context()
	item, err := g.store.UpdateOne(ctx, id, payload)
	if g.expired(c, err) {
		return
	}
	if err != nil {
		state.err = err
		g.rejectForm(c, state)
		return
	}
	g.saved(c, item, g.singular+" updated.")
}

// saved runs the AfterSave hook, reloads the grid page and sends the operator
// back to it.
func (g *Grid[T, ID]) saved(c *gin.Context, item T, message string) {
	ctx := c.Request.Context()
	if g.form.AfterSave != nil {
		if err := g.form.AfterSave(ctx, c, item); err != nil {
			if g.expired(c, err) {
				return
			}
			g.logger.WarnContext(ctx, "after save hook failed", "error", err)
			pkg.Toast(c, message+" "+domain.Message(err), pkg.ToastError)
			pkg.Redirect(c, g.path+"/"+formatID(item.GetID())+"/edit")
			return
		}
	}

	if err := g.store.FetchAll(ctx); g.expired(c, err) {
		return
	}
	pkg.Toast(c, message, pkg.ToastSuccess)
	g.backToGrid(c)
}

// formState carries what a form page is rendered from.
type formState[T any] struct {
	item    *T
	id      string
	values  map[string][]string
	extra   any
	editing bool
	fields  map[string][]string
	err     error
}

// rejectForm re-renders a submitted form with its errors. Submitted values
// are kept, except passwords.
func (g *Grid[T, ID]) rejectForm(c *gin.Context, st formState[T]) {
	if domain.IsValidation(st.err) {
		st.fields = domain.ValidationFields(st.err)
		st.err = nil
	}
	st.values = make(map[string][]string, len(g.form.Fields))
	for _, f := range g.form.Fields {
		if f.Type != "password" {
			st.values[f.Name] = c.PostFormArray(f.Name)
		}
	}
	extra, err := g.loadExtra(c.Request.Context())
	if g.expired(c, err) {
		return
	}
	st.extra = extra

	status := http.StatusUnprocessableEntity
	if pkg.IsHTMX(c) {
		// htmx does not swap 4xx responses by default.
		status = http.StatusOK
	}
	g.renderForm(c, status, st)
}

func (g *Grid[T, ID]) renderForm(c *gin.Context, status int, st formState[T]) {
	v := FormView{
		Title:   "New " + g.singular,
		Action:  g.path,
		Cancel:  g.loc.URL(),
		Editing: st.editing,
		Extra:   st.extra,
	}
	if st.editing {
		v.Title = "Edit " + g.singular
		v.Action = g.path + "/" + st.id
	}
	if st.item != nil {
		v.Item = *st.item
	}
	if st.err != nil {
		v.Error = domain.Message(st.err)
	}
	if msgs := st.fields[FormErrorKey]; len(msgs) > 0 {
		v.Error = msgs[0]
	}
	for _, f := range g.form.Fields {
		values := st.values[f.Name]
		fv := FieldView{Field: f, Errors: st.fields[f.Name]}
		if f.Options == nil && len(values) > 0 {
			fv.Value = values[0]
		}
		if f.Options != nil {
			fv.Options = f.Options(st.extra)
			for i := range fv.Options {
				fv.Options[i].Checked = slices.Contains(values, fv.Options[i].Value)
			}
		}
		v.Fields = append(v.Fields, fv)
	}

	c.HTML(status, "crud/form.html", PageData(c, gin.H{"Title": v.Title, "Form": v}))
}

func (g *Grid[T, ID]) loadExtra(ctx context.Context) (any, error) {
	if g.form.Extra == nil {
		return nil, nil
	}
	return g.form.Extra(ctx)
}

// pageError renders the error page matching err.
func (g *Grid[T, ID]) pageError(c *gin.Context, err error) {
	if g.expired(c, err) {
		return
	}
	if domain.IsNotFound(err) {
		c.HTML(http.StatusNotFound, "errors/404.html", PageData(c, nil))
		return
	}
	g.logger.ErrorContext(c.Request.Context(), "form page failed", "error", err)
	c.HTML(http.StatusInternalServerError, "errors/500.html", PageData(c, gin.H{
		"Message": domain.Message(err),
	}))
}
