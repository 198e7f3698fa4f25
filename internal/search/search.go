// Package search serves read-only order queries from the RediSearch index.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avolkov/orderhub/internal/index"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPageSize applies when the caller does not ask for a size.
	DefaultPageSize = 10
	// MaxPageSize caps the page size regardless of what the caller asks for.
	MaxPageSize = 100
)

// Params are the supported search filters. The zero value matches everything.
type Params struct {
	// Term matches as a substring against both name and description.
	Term string
	// DateFrom and DateTo bound the order date inclusively. Either side
	// may be nil to leave that side open.
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	Size     int
}

// OrderDoc is one order as returned by a search.
type OrderDoc struct {
	ID          int64   `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Date        string  `json:"date"`
}

// Result is one page of matches, newest orders first.
type Result struct {
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	Size     int        `json:"size"`
	MaxPages int64      `json:"maxPages"`
	Orders   []OrderDoc `json:"orders"`
}

// Service executes order searches against the index.
type Service struct {
	rdb *redis.Client
}

// NewService creates a search Service on top of the given Redis client.
func NewService(rdb *redis.Client) *Service {
	return &Service{rdb: rdb}
}

// Search returns the requested page of orders matching the filters, sorted
// by order date descending.
func (s *Service) Search(ctx context.Context, params Params) (*Result, error) {
	page := clampPage(params.Page)
	size := clampSize(params.Size)

	res, err := s.rdb.FTSearchWithArgs(ctx, index.Name, buildQuery(params),
		&redis.FTSearchOptions{
			SortBy:         []redis.FTSearchSortBy{{FieldName: "ts", Desc: true}},
			LimitOffset:    (page - 1) * size,
			Limit:          size,
			DialectVersion: 2,
		}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to search orders: %w", err)
	}

	orders := make([]OrderDoc, 0, len(res.Docs))
	for _, doc := range res.Docs {
		orders = append(orders, toOrderDoc(doc))
	}

	total := int64(res.Total)
	return &Result{
		Total:    total,
		Page:     page,
		Size:     size,
		MaxPages: maxPages(total, size),
		Orders:   orders,
	}, nil
}

// buildQuery assembles the RediSearch query string. A term fans out to name
// and description with infix wildcards; date bounds become a numeric range
// on the sortable ts field.
func buildQuery(params Params) string {
	var clauses []string

	if term := strings.TrimSpace(params.Term); term != "" {
		escaped := escapeTerm(term)
		clauses = append(clauses,
			fmt.Sprintf("(@name:(*%s*) | @description:(*%s*))", escaped, escaped))
	}

	if params.DateFrom != nil || params.DateTo != nil {
		from := "-inf"
		to := "+inf"
		if params.DateFrom != nil {
			from = strconv.FormatInt(params.DateFrom.Unix(), 10)
		}
		if params.DateTo != nil {
			to = strconv.FormatInt(params.DateTo.Unix(), 10)
		}
		clauses = append(clauses, fmt.Sprintf("@ts:[%s %s]", from, to))
	}

	if len(clauses) == 0 {
		return "*"
	}
	return strings.Join(clauses, " ")
}

// escapeTerm neutralizes RediSearch query syntax inside user input.
func escapeTerm(term string) string {
	var b strings.Builder
	b.Grow(len(term))
	for _, r := range term {
		if strings.ContainsRune(`,.<>{}[]"':;!@#$%^&*()-+=~|/\ `, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// clampSize bounds the page size to [1, MaxPageSize]. Zero means the caller
// did not ask for a size and gets the default.
func clampSize(size int) int {
	if size == 0 {
		return DefaultPageSize
	}
	if size < 1 {
		return 1
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// maxPages is the number of pages needed to cover total hits at the given
// page size.
func maxPages(total int64, size int) int64 {
	if total <= 0 {
		return 0
	}
	return (total + int64(size) - 1) / int64(size)
}

func toOrderDoc(doc redis.Document) OrderDoc {
	out := OrderDoc{Date: doc.Fields["date"]}
	if id, err := strconv.ParseInt(strings.TrimPrefix(doc.ID, index.DocPrefix), 10, 64); err == nil {
		out.ID = id
	}
	if name, ok := doc.Fields["name"]; ok && name != "" {
		out.Name = &name
	}
	if desc, ok := doc.Fields["description"]; ok && desc != "" {
		out.Description = &desc
	}
	return out
}
