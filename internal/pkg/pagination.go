package pkg

import (
	"math"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/crudboard/internal/domain"
)

const (
	defaultPage    = 1
	defaultPerPage = 10
	maxPerPage     = 100
	defaultSort    = "-id"

	suffixStarts = "_starts"
	suffixEnds   = "_ends"
)

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ParsePageRequest extracts pagination, sorting and filtering parameters from
// the query string: page, per_page, sort ("-created_at,name") and
// filter[<key>]=<value>.
func ParsePageRequest(c *gin.Context) domain.PageRequest {
	return PageRequestFromQuery(c.Request.URL.Query())
}

// PageRequestFromQuery is ParsePageRequest over raw query values.
func PageRequestFromQuery(q url.Values) domain.PageRequest {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = defaultPage
	}

	perPage, err := strconv.Atoi(q.Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	sort := strings.TrimSpace(q.Get("sort"))
	if sort == "" {
		sort = defaultSort
	}

	filter := make(map[string]string)
	for key, values := range q {
		name, ok := strings.CutPrefix(key, "filter[")
		if !ok {
			continue
		}
		name, ok = strings.CutSuffix(name, "]")
		if !ok || name == "" {
			continue
		}
		if len(values) > 0 && values[0] != "" {
			filter[name] = values[0]
		}
	}

	return domain.PageRequest{
		Page:    page,
		PerPage: perPage,
		Sort:    sort,
		Filter:  filter,
	}
}

// Paginate returns a GORM scope that applies LIMIT and OFFSET based on the page request.
func Paginate(req domain.PageRequest) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		offset := (req.Page - 1) * req.PerPage
		return db.Offset(offset).Limit(req.PerPage)
	}
}

// Sort returns a GORM scope that applies ORDER BY for each comma-separated
// field of the page request. A leading "-" sorts descending. Fields missing
// from allowed, or not matching a strict identifier pattern, are ignored.
func Sort(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for part := range strings.SplitSeq(req.Sort, ",") {
			field := strings.TrimSpace(part)
			direction := "asc"
			if rest, ok := strings.CutPrefix(field, "-"); ok {
				field, direction = rest, "desc"
			}
			if !validFieldName.MatchString(field) || !isAllowed(field, allowed) {
				continue
			}
			db = db.Order(field + " " + direction)
		}
		return db
	}
}

// Filter returns a GORM scope that applies WHERE conditions for the page
// request filters. "<field>_starts" and "<field>_ends" match a prefix or
// suffix; a bare field name matches a substring. Matching is
// case-insensitive. Keys whose field is not in allowed are ignored.
func Filter(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		keys := make([]string, 0, len(req.Filter))
		for k := range req.Filter {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		for _, key := range keys {
			field, pattern := likePattern(key, req.Filter[key], allowed)
			if field == "" {
				continue
			}
			db = db.Where("LOWER("+field+`) LIKE LOWER(?) ESCAPE '\'`, pattern)
		}
		return db
	}
}

// likePattern resolves a filter key to a column and LIKE pattern. It returns
// an empty field when the key is not filterable.
func likePattern(key, value string, allowed []string) (field, pattern string) {
	escaped := likeEscaper.Replace(value)
	// An allowed column may itself end in a suffix, so check the bare key first.
	if validFieldName.MatchString(key) && isAllowed(key, allowed) {
		return key, "%" + escaped + "%"
	}
	if f, ok := strings.CutSuffix(key, suffixStarts); ok && validFieldName.MatchString(f) && isAllowed(f, allowed) {
		return f, escaped + "%"
	}
	if f, ok := strings.CutSuffix(key, suffixEnds); ok && validFieldName.MatchString(f) && isAllowed(f, allowed) {
		return f, "%" + escaped
	}
	return "", ""
}

// NewPage builds a list page with meta and links. Links are derived from
// base, the request URL, by replacing its page parameter.
func NewPage[T any](items []T, total int64, req domain.PageRequest, base *url.URL) domain.Page[T] {
	lastPage := 1
	if req.PerPage > 0 && total > 0 {
		lastPage = int(math.Ceil(float64(total) / float64(req.PerPage)))
	}

	if items == nil {
		items = []T{}
	}

	link := func(page int) *string {
		if base == nil {
			return nil
		}
		u := *base
		q := u.Query()
		q.Set("page", strconv.Itoa(page))
		u.RawQuery = q.Encode()
		s := u.String()
		return &s
	}

	links := domain.PageLinks{First: link(1), Last: link(lastPage)}
	if req.Page > 1 {
		links.Prev = link(req.Page - 1)
	}
	if req.Page < lastPage {
		links.Next = link(req.Page + 1)
	}

	return domain.Page[T]{
		Items: items,
		Meta: domain.PageMeta{
			Total:       total,
			PerPage:     req.PerPage,
			CurrentPage: req.Page,
			LastPage:    lastPage,
		},
		Links: links,
	}
}

// isAllowed checks if a field name is in the allowed list.
func isAllowed(field string, allowed []string) bool {
	return slices.Contains(allowed, field)
}
