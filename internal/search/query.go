package search

import (
	"github.com/lippkg/lip-index/services"
)

// termFields are the fields a free-text term is matched against.
var termFields = []services.Column{
	services.ColumnRepoOwner,
	services.ColumnRepoName,
	services.ColumnName,
	services.ColumnDescription,
	services.ColumnAuthor,
}

// Column maps the logical sort key to the catalog column it sorts on.
func (k SortKey) Column() services.Column {
	switch k {
	case SortCreatedAt:
		return services.ColumnRepoCreatedAt
	case SortUpdatedAt:
		return services.ColumnReleasedAt
	default:
		return services.ColumnStarCount
	}
}

// Direction maps the logical order to a physical sort direction.
func (o Order) Direction() services.Direction {
	if o == OrderAscending {
		return services.Ascending
	}
	return services.Descending
}

// BuildQuery turns validated parameters into a catalog query. It cannot fail.
//
// The filter is an AND of: one OR-over-termFields per free-text term, one exact
// membership test per tag, and isLatest = true. Only one sort key is applied, so
// entries that tie on it come back in storage order, which may differ between pages.
func BuildQuery(p Params) services.QuerySpec {
	terms := make([]services.TermPredicate, 0, len(p.Terms))
	for _, term := range p.Terms {
		terms = append(terms, services.TermPredicate{
			Term:   term,
			Fields: append([]services.Column(nil), termFields...),
		})
	}

	return services.QuerySpec{
		Terms:      terms,
		Tags:       append([]string{}, p.Tags...),
		LatestOnly: true,
		Sort:       p.Sort.Column(),
		Direction:  p.Order.Direction(),
		Offset:     p.Offset(),
		Limit:      p.PerPage,
	}
}

// TotalPages is ceil(total / perPage).
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
