package search

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/lippkg/lip-index/services"
)

// Service answers search requests against a catalog.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	catalog services.CatalogReader
	host    string
	logger  hclog.Logger
}

// NewService creates a new search Service. host prefixes every repoPath.
func NewService(catalog services.CatalogReader, host string, logger hclog.Logger) (*Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if host == "" {
		return nil, fmt.Errorf("host cannot be empty")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		catalog: catalog,
		host:    host,
		logger:  logger.Named("search"),
	}, nil
}

// Search validates raw, queries the catalog once and builds the response.
// Parameter problems come back as *errors.BadRequestError before the catalog is touched.
// A duplicate latest row on the returned page is logged and the page is returned as is.
func (s *Service) Search(ctx context.Context, raw RawParams) (Response, error) {
	params, err := ParseParams(raw)
	if err != nil {
		return Response{}, err
	}

	spec := BuildQuery(params)
	total, rows, err := s.catalog.FindAndCountAll(ctx, spec)
	if err != nil {
		return Response{}, fmt.Errorf("failed to query catalog: %w", err)
	}

	if warning := CheckDuplicates(rows); warning != nil {
		s.logger.Warn("failed to validate non-repeatability", "error", warning, "page", params.Page)
	}

	s.logger.Trace("search completed", "terms", params.Terms, "tags", params.Tags, "total", total, "returned", len(rows))
	return BuildResponse(s.host, params, total, rows), nil
}
