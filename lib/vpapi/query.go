package vpapi

// Op is a filter operator understood by the entity store.
type Op string

const (
	// OpEq matches a field by exact value.
	OpEq Op = "eq"
	// OpElemMatch matches when any element of a list field equals the
	// value, used for natural-key lookups on `identifiers`.
	OpElemMatch Op = "elemMatch"
	// OpLt matches fields strictly less than the value.
	OpLt Op = "lt"
	// OpEmpty matches records where the field is absent, null or "".
	OpEmpty Op = "empty"
)

type Condition struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

func ElemMatch(field string, value any) Condition {
	return Condition{Field: field, Op: OpElemMatch, Value: value}
}

func Lt(field string, value any) Condition {
	return Condition{Field: field, Op: OpLt, Value: value}
}

func Empty(field string) Condition {
	return Condition{Field: field, Op: OpEmpty}
}

type SortKey struct {
	Field string
	Desc  bool
}

// Query filters and orders records of one resource.
type Query struct {
	Where []Condition
	Sort  []SortKey
}

// whereDoc renders the conditions as the store's mongo-style filter
// document.
func (q Query) whereDoc() map[string]any {
	if len(q.Where) == 0 {
		return nil
	}
	doc := map[string]any{}
	for _, c := range q.Where {
		switch c.Op {
		case OpEq:
			doc[c.Field] = c.Value
		case OpElemMatch:
			doc[c.Field] = map[string]any{"$elemMatch": c.Value}
		case OpLt:
			doc[c.Field] = map[string]any{"$lt": c.Value}
		case OpEmpty:
			doc["$or"] = []map[string]any{
				{c.Field: map[string]any{"$exists": false}},
				{c.Field: map[string]any{"$in": []any{nil, ""}}},
			}
		}
	}
	return doc
}

// sortSpec renders sort keys in the store's "-field,field" form.
func (q Query) sortSpec() string {
	spec := ""
	for _, s := range q.Sort {
		if spec != "" {
			spec += ","
		}
		if s.Desc {
			spec += "-"
		}
		spec += s.Field
	}
	return spec
}
