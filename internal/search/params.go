package search

import (
	"net/url"
	"regexp"
	"strconv"

	internalErrors "github.com/lippkg/lip-index/internal/errors"
	"github.com/lippkg/lip-index/internal/tokenizer"
)

// Query parameter names of the search endpoint.
const (
	ParamQuery   = "q"
	ParamPerPage = "perPage"
	ParamPage    = "page"
	ParamSort    = "sort"
	ParamOrder   = "order"
)

// Parameter defaults, applied before validation.
const (
	DefaultQuery   = ""
	DefaultPerPage = "20"
	DefaultPage    = "1"
	DefaultSort    = "starCount"
	DefaultOrder   = "descending"

	// MaxPerPage is the largest page size a caller may request.
	MaxPerPage = 100
	// MaxPageLength bounds the page parameter before it is converted to an integer.
	MaxPageLength = 15
)

var naturalNumberRegex = regexp.MustCompile(`^[1-9]\d*$`)

// SortKey is the logical sort key accepted by the search endpoint.
type SortKey int

const (
	SortStarCount SortKey = iota
	SortCreatedAt
	SortUpdatedAt
)

func (k SortKey) String() string {
	switch k {
	case SortCreatedAt:
		return "createdAt"
	case SortUpdatedAt:
		return "updatedAt"
	default:
		return "starCount"
	}
}

// ParseSortKey returns the SortKey named by s.
func ParseSortKey(s string) (SortKey, bool) {
	switch s {
	case "starCount":
		return SortStarCount, true
	case "createdAt":
		return SortCreatedAt, true
	case "updatedAt":
		return SortUpdatedAt, true
	default:
		return 0, false
	}
}

// Order is the logical sort order accepted by the search endpoint.
type Order int

const (
	OrderDescending Order = iota
	OrderAscending
)

func (o Order) String() string {
	if o == OrderAscending {
		return "ascending"
	}
	return "descending"
}

// ParseOrder returns the Order named by s.
func ParseOrder(s string) (Order, bool) {
	switch s {
	case "ascending":
		return OrderAscending, true
	case "descending":
		return OrderDescending, true
	default:
		return 0, false
	}
}

// RawParams holds the untyped search parameters. A nil field means the parameter
// was not supplied. Nothing downstream of ParseParams sees this type.
type RawParams struct {
	Q       *string
	PerPage *string
	Page    *string
	Sort    *string
	Order   *string
}

// Params is the validated, request-scoped form of a search request.
type Params struct {
	Terms   []string
	Tags    []string
	PerPage int
	Page    int
	Sort    SortKey
	Order   Order
}

// Offset is the number of matching entries skipped before the requested page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// RawParamsFromQuery picks the recognised parameters out of a URL query.
// Other keys are ignored; a recognised key given more than once is rejected.
func RawParamsFromQuery(values url.Values) (RawParams, error) {
	var raw RawParams
	fields := []struct {
		name string
		dst  **string
	}{
		{ParamQuery, &raw.Q},
		{ParamPerPage, &raw.PerPage},
		{ParamPage, &raw.Page},
		{ParamSort, &raw.Sort},
		{ParamOrder, &raw.Order},
	}

	for _, f := range fields {
		vals, ok := values[f.name]
		if !ok {
			continue
		}
		if len(vals) != 1 {
			return RawParams{}, internalErrors.NewBadRequestError(f.name, "must be given at most once", strconv.Itoa(len(vals))+" values")
		}
		v := vals[0]
		*f.dst = &v
	}
	return raw, nil
}

// ParseParams applies defaults to raw and validates every parameter, failing on
// the first violated constraint with a BadRequestError naming the parameter and value.
func ParseParams(raw RawParams) (Params, error) {
	q := valueOr(raw.Q, DefaultQuery)
	perPageParam := valueOr(raw.PerPage, DefaultPerPage)
	pageParam := valueOr(raw.Page, DefaultPage)
	sortParam := valueOr(raw.Sort, DefaultSort)
	orderParam := valueOr(raw.Order, DefaultOrder)

	if !naturalNumberRegex.MatchString(perPageParam) {
		return Params{}, internalErrors.NewBadRequestError(ParamPerPage, "must be a natural number", perPageParam)
	}
	perPage, err := strconv.Atoi(perPageParam)
	if err != nil || perPage > MaxPerPage {
		return Params{}, internalErrors.NewBadRequestError(ParamPerPage, "must be less than or equal to 100", perPageParam)
	}

	if !naturalNumberRegex.MatchString(pageParam) {
		return Params{}, internalErrors.NewBadRequestError(ParamPage, "must be a natural number", pageParam)
	}
	if len(pageParam) > MaxPageLength {
		return Params{}, internalErrors.NewBadRequestError(ParamPage, "is too large", pageParam)
	}
	page, err := strconv.Atoi(pageParam)
	if err != nil {
		return Params{}, internalErrors.NewBadRequestError(ParamPage, "is too large", pageParam)
	}
	if page < 1 {
		return Params{}, internalErrors.NewBadRequestError(ParamPage, "must be greater than or equal to 1", pageParam)
	}

	sortKey, ok := ParseSortKey(sortParam)
	if !ok {
		return Params{}, internalErrors.NewBadRequestError(ParamSort, "must be one of starCount, createdAt, updatedAt", sortParam)
	}

	order, ok := ParseOrder(orderParam)
	if !ok {
		return Params{}, internalErrors.NewBadRequestError(ParamOrder, "must be one of ascending, descending", orderParam)
	}

	terms, tags := tokenizer.Tokenize(q)

	return Params{
		Terms:   terms,
		Tags:    tags,
		PerPage: perPage,
		Page:    page,
		Sort:    sortKey,
		Order:   order,
	}, nil
}

func valueOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
