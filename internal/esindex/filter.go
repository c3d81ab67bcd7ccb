package esindex

import (
	"fmt"

	"github.com/connexus-ai/discovery-engine/internal/model"
)

// compileFilter translates a FilterExpr into an Elasticsearch bool/range
// query fragment under properties.<name> (or top-level for
// publication_date, which is always indexed).
func compileFilter(f model.FilterExpr) (map[string]any, error) {
	if !f.IsLeaf() {
		clauses := make([]map[string]any, 0, len(f.Children))
		for _, child := range f.Children {
			c, err := compileFilter(child)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c)
		}
		switch f.Combinator {
		case model.FilterAnd:
			return map[string]any{"bool": map[string]any{"must": clauses}}, nil
		case model.FilterOr:
			return map[string]any{"bool": map[string]any{"should": clauses, "minimum_should_match": 1}}, nil
		default:
			return nil, fmt.Errorf("esindex.compileFilter: unknown combinator %q", f.Combinator)
		}
	}

	field := fieldPath(f.Property)
	switch f.Op {
	case model.FilterEq:
		return map[string]any{"term": map[string]any{field: f.Value}}, nil
	case model.FilterGt:
		return map[string]any{"range": map[string]any{field: map[string]any{"gt": f.Value}}}, nil
	case model.FilterGte:
		return map[string]any{"range": map[string]any{field: map[string]any{"gte": f.Value}}}, nil
	case model.FilterLt:
		return map[string]any{"range": map[string]any{field: map[string]any{"lt": f.Value}}}, nil
	case model.FilterLte:
		return map[string]any{"range": map[string]any{field: map[string]any{"lte": f.Value}}}, nil
	case model.FilterIn:
		return map[string]any{"terms": map[string]any{field: f.Values}}, nil
	default:
		return nil, fmt.Errorf("esindex.compileFilter: unknown operator %q", f.Op)
	}
}

func fieldPath(property string) string {
	if property == "publication_date" {
		return "publication_date"
	}
	return "properties." + property
}
