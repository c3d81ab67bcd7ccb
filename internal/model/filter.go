package model

// FilterOp is a leaf comparison operator in the filter language.
type FilterOp string

const (
	FilterEq  FilterOp = "$eq"
	FilterGt  FilterOp = "$gt"
	FilterGte FilterOp = "$gte"
	FilterLt  FilterOp = "$lt"
	FilterLte FilterOp = "$lte"
	FilterIn  FilterOp = "$in"
)

// FilterCombinator joins a list of sub-expressions.
type FilterCombinator string

const (
	FilterAnd FilterCombinator = "$and"
	FilterOr  FilterCombinator = "$or"
)

// FilterExpr is one node of the filter AST. A node is either a combinator
// over Children, or a leaf comparing Property against Value(s) with Op.
type FilterExpr struct {
	Combinator FilterCombinator
	Children   []FilterExpr

	Property string
	Op       FilterOp
	Value    any
	Values   []any
}

func (f FilterExpr) IsLeaf() bool { return f.Combinator == "" }
