package crudview

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/pkg"
)

// ConfirmDelete asks before deleting one row.
// GET /{path}/:id/delete
func (g *Grid[T, ID]) ConfirmDelete(c *gin.Context) {
	id, err := g.parseID(c.Param("id"))
	if err != nil {
		c.HTML(http.StatusNotFound, "errors/404.html", PageData(c, nil))
		return
	}
	c.HTML(http.StatusOK, "crud/confirm.html", PageData(c, gin.H{
		"Title":   "Delete " + g.singular,
		"Message": fmt.Sprintf("Delete %s %s? This cannot be undone.", g.singular, formatID(id)),
		"Action":  g.path + "/" + formatID(id) + "/delete",
		"Cancel":  g.loc.URL(),
	}))
}

// Delete removes one row, then shows the reloaded grid with a toast.
// POST /{path}/:id/delete, DELETE /{path}/:id
func (g *Grid[T, ID]) Delete(c *gin.Context) {
	id, err := g.parseID(c.Param("id"))
	if err != nil {
		g.toastOnly(c, "Unknown "+g.singular+".", pkg.ToastError)
		return
	}

	err = g.store.DeleteOne(c.Request.Context(), id)
	if g.expired(c, err) {
		return
	}
	if err != nil {
		g.finishDelete(c, domain.Message(err), pkg.ToastError, false)
		return
	}
	g.query.Deselect(id)
	g.finishDelete(c, g.singular+" deleted.", pkg.ToastSuccess, true)
}

// ConfirmBulkDelete asks before deleting the selected rows of the loaded page.
// GET /{path}/bulk-delete
func (g *Grid[T, ID]) ConfirmBulkDelete(c *gin.Context) {
	ids := g.query.SelectedIDs(g.pageIDs())
	if len(ids) == 0 {
		pkg.Toast(c, "Select at least one row.", pkg.ToastInfo)
		pkg.Redirect(c, g.loc.URL())
		return
	}
	c.HTML(http.StatusOK, "crud/confirm.html", PageData(c, gin.H{
		"Title":   "Delete " + g.title,
		"Message": fmt.Sprintf("Delete %d selected %s? This cannot be undone.", len(ids), g.title),
		"Action":  g.path + "/bulk-delete",
		"Cancel":  g.loc.URL(),
	}))
}

// BulkDelete removes the selected rows of the loaded page in one request and
// clears the selection.
// POST /{path}/bulk-delete, DELETE /{path}/bulk-delete
func (g *Grid[T, ID]) BulkDelete(c *gin.Context) {
	ids := g.query.SelectedIDs(g.pageIDs())
	if len(ids) == 0 {
		g.finishDelete(c, "Select at least one row.", pkg.ToastInfo, false)
		return
	}

	err := g.store.DeleteMany(c.Request.Context(), ids)
	if g.expired(c, err) {
		return
	}
	if err != nil {
		g.finishDelete(c, domain.Message(err), pkg.ToastError, false)
		return
	}
	g.query.ClearSelection()
	g.finishDelete(c, fmt.Sprintf("%d %s deleted.", len(ids), g.title), pkg.ToastSuccess, true)
}

// finishDelete answers a delete: htmx gets the grid partial and a toast,
// other clients are sent back to the grid. reloaded reports whether the store
// was refreshed by the delete.
func (g *Grid[T, ID]) finishDelete(c *gin.Context, message, kind string, reloaded bool) {
	pkg.Toast(c, message, kind)
	if pkg.IsHTMX(c) {
		c.Header("HX-Retarget", "#grid")
		c.Header("HX-Reswap", "outerHTML")
		c.Header("HX-Push-Url", g.loc.URL())
		c.HTML(http.StatusOK, "crud/grid.html", PageData(c, gin.H{"Grid": g.view()}))
		return
	}
	if reloaded {
		g.backToGrid(c)
		return
	}
	c.Redirect(http.StatusSeeOther, g.loc.URL())
}
