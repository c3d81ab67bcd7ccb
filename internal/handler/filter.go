package handler

import (
	"encoding/json"
	"fmt"

	"github.com/connexus-ai/discovery-engine/internal/apierror"
	"github.com/connexus-ai/discovery-engine/internal/model"
)

// decodeFilter parses the wire filter-expression JSON into a
// model.FilterExpr. A node is either a single-key combinator object
// ({"$and": [...]}, {"$or": [...]}) or a single-key property object
// whose value is a single-key operator object ({"title": {"$eq":
// "foo"}}).
func decodeFilter(raw json.RawMessage) (*model.FilterExpr, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, apierror.InvalidRequest("filter must be a JSON object", map[string]any{"error": err.Error()})
	}
	if len(obj) != 1 {
		return nil, apierror.InvalidRequest("filter node must have exactly one key", nil)
	}

	for key, val := range obj {
		switch model.FilterCombinator(key) {
		case model.FilterAnd, model.FilterOr:
			var rawChildren []json.RawMessage
			if err := json.Unmarshal(val, &rawChildren); err != nil {
				return nil, apierror.InvalidRequest(fmt.Sprintf("%s must be an array of filter nodes", key), nil)
			}
			children := make([]model.FilterExpr, 0, len(rawChildren))
			for _, rc := range rawChildren {
				child, err := decodeFilter(rc)
				if err != nil {
					return nil, err
				}
				children = append(children, *child)
			}
			return &model.FilterExpr{Combinator: model.FilterCombinator(key), Children: children}, nil
		default:
			return decodeLeaf(key, val)
		}
	}
	panic("unreachable")
}

func decodeLeaf(property string, raw json.RawMessage) (*model.FilterExpr, error) {
	var opObj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &opObj); err != nil {
		return nil, apierror.InvalidRequest(fmt.Sprintf("property %q filter must be an operator object", property), nil)
	}
	if len(opObj) != 1 {
		return nil, apierror.InvalidRequest(fmt.Sprintf("property %q filter must have exactly one operator", property), nil)
	}

	for opKey, val := range opObj {
		op := model.FilterOp(opKey)
		switch op {
		case model.FilterEq, model.FilterGt, model.FilterGte, model.FilterLt, model.FilterLte:
			var v any
			if err := json.Unmarshal(val, &v); err != nil {
				return nil, apierror.InvalidRequest(fmt.Sprintf("invalid value for %s %s", property, opKey), nil)
			}
			return &model.FilterExpr{Property: property, Op: op, Value: v}, nil
		case model.FilterIn:
			var vs []any
			if err := json.Unmarshal(val, &vs); err != nil {
				return nil, apierror.InvalidRequest(fmt.Sprintf("%s value must be an array", opKey), map[string]any{"property": property})
			}
			return &model.FilterExpr{Property: property, Op: op, Values: vs}, nil
		default:
			return nil, apierror.InvalidRequest(fmt.Sprintf("unknown filter operator %q", opKey), map[string]any{"property": property})
		}
	}
	panic("unreachable")
}
