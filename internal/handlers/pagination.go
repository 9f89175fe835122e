package handlers

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"storefront/internal/catalog"
)

var errInvalidPagination = errors.New("invalid pagination params")

// parsePaginationParams reads the page and limit query values. Missing
// values take the catalog defaults.
func parsePaginationParams(pageStr, limitStr string) (int64, int64, error) {
	page := int64(1)
	limit := int64(catalog.DefaultPageSize)

	if pageStr = strings.TrimSpace(pageStr); pageStr != "" {
		p, err := strconv.ParseInt(pageStr, 10, 64)
		if err != nil || p < 1 {
			return 0, 0, errInvalidPagination
		}
		page = p
	}

	if limitStr = strings.TrimSpace(limitStr); limitStr != "" {
		l, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil || l < 1 || l > catalog.MaxPageSize {
			return 0, 0, errInvalidPagination
		}
		limit = l
	}

	return page, limit, nil
}
