package mockapi

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/pkg"
)

// Repository is the GORM-backed store shared by every demo resource.
type Repository[T any] struct {
	db         *gorm.DB
	sortable   []string
	filterable []string
	preload    []string
	onDelete   func(tx *gorm.DB, id any) error
}

// RepositoryOption configures a Repository.
type RepositoryOption[T any] func(*Repository[T])

// Sortable sets the columns accepted by the sort parameter.
func Sortable[T any](cols ...string) RepositoryOption[T] {
	return func(r *Repository[T]) { r.sortable = cols }
}

// Filterable sets the columns accepted as filter keys.
func Filterable[T any](cols ...string) RepositoryOption[T] {
	return func(r *Repository[T]) { r.filterable = cols }
}

// Preload sets the associations loaded with every read.
func Preload[T any](assocs ...string) RepositoryOption[T] {
	return func(r *Repository[T]) { r.preload = assocs }
}

// OnDelete runs fn inside the delete transaction before the row is removed.
// It is used to clear references the row's own associations do not cover.
func OnDelete[T any](fn func(tx *gorm.DB, id any) error) RepositoryOption[T] {
	return func(r *Repository[T]) { r.onDelete = fn }
}

// NewRepository creates a Repository over db.
func NewRepository[T any](db *gorm.DB, opts ...RepositoryOption[T]) *Repository[T] {
	r := &Repository[T]{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository[T]) query(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx)
	for _, p := range r.preload {
		q = q.Preload(p)
	}
	return q
}

// List returns one filtered, sorted page. base is the request URL the page
// links are derived from.
func (r *Repository[T]) List(ctx context.Context, req domain.PageRequest, base *url.URL) (domain.Page[T], error) {
	var total int64
	filtered := r.db.WithContext(ctx).Model(new(T)).
		Scopes(pkg.Filter(req, r.filterable))

	if err := filtered.Count(&total).Error; err != nil {
		return domain.Page[T]{}, mapError(err)
	}

	var items []T
	if err := r.query(ctx).
		Scopes(
			pkg.Filter(req, r.filterable),
			pkg.Sort(req, r.sortable),
			pkg.Paginate(req),
		).Find(&items).Error; err != nil {
		return domain.Page[T]{}, mapError(err)
	}

	return pkg.NewPage(items, total, req, base), nil
}

// Get retrieves an item by primary key.
func (r *Repository[T]) Get(ctx context.Context, id any) (*T, error) {
	var item T
	if err := r.query(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &item, nil
}

// FindBy retrieves the first item whose column equals value.
func (r *Repository[T]) FindBy(ctx context.Context, column, value string) (*T, error) {
	var item T
	if err := r.query(ctx).Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).First(&item).Error; err != nil {
		return nil, mapError(err)
	}
	return &item, nil
}

// Create inserts item. Associations are not upserted.
func (r *Repository[T]) Create(ctx context.Context, item *T) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// Save updates every column of item. Associations are not touched.
func (r *Repository[T]) Save(ctx context.Context, item *T) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(item).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// Delete removes the item with id together with its join-table rows.
func (r *Repository[T]) Delete(ctx context.Context, id any) error {
	return pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		return r.deleteOne(tx, id)
	})
}

// DeleteMany removes every listed item in one transaction. Unknown IDs fail
// the whole batch with CodeNotFound.
func (r *Repository[T]) DeleteMany(ctx context.Context, ids []any) error {
	return pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		for _, id := range ids {
			if err := r.deleteOne(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of stored items.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(new(T)).Count(&n).Error; err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (r *Repository[T]) deleteOne(tx *gorm.DB, id any) error {
	var item T
	if err := tx.First(&item, "id = ?", id).Error; err != nil {
		return mapError(err)
	}
	if r.onDelete != nil {
		if err := r.onDelete(tx, id); err != nil {
			return mapError(err)
		}
	}
	if err := tx.Select(clause.Associations).Delete(&item).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// mapError converts GORM errors to domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
		return domain.NewAppError(domain.CodeAlreadyExists, "already exists", err)
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return domain.NewAppError(domain.CodeInternal, "database error", err)
}

// isDuplicateKeyError detects unique constraint violations by examining the
// error message. Not all GORM dialectors translate driver-level errors to
// gorm.ErrDuplicatedKey (the pure-Go SQLite driver does not).
func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
