package scope

import "strings"

// QueryScope represents a SQL condition that can be added to a query.
// It carries a raw SQL predicate and its arguments for safe parameter binding.
type QueryScope struct {
	// Condition is the SQL WHERE clause condition (e.g., "\"e0\".\"NAME\" = ?")
	Condition string
	// Args contains the parameter values for placeholders in Condition
	Args []interface{}
}

// New creates a scope from a condition and its arguments.
func New(condition string, args ...interface{}) QueryScope {
	return QueryScope{Condition: condition, Args: args}
}

// IsEmpty reports whether the scope has no condition.
func (s QueryScope) IsEmpty() bool {
	return strings.TrimSpace(s.Condition) == ""
}

// And joins scopes with AND, skipping empty ones.
func And(scopes ...QueryScope) QueryScope {
	return join(" AND ", scopes)
}

// Or joins scopes with OR, skipping empty ones.
func Or(scopes ...QueryScope) QueryScope {
	return join(" OR ", scopes)
}

// Not negates a scope.
func Not(s QueryScope) QueryScope {
	if s.IsEmpty() {
		return s
	}
	return QueryScope{Condition: "NOT (" + s.Condition + ")", Args: s.Args}
}

// Wrap places the condition in parentheses unless it is already enclosed
// in a single pair.
func (s QueryScope) Wrap() QueryScope {
	if s.IsEmpty() || enclosed(s.Condition) {
		return s
	}
	return QueryScope{Condition: "(" + s.Condition + ")", Args: s.Args}
}

func join(sep string, scopes []QueryScope) QueryScope {
	var (
		kept  []QueryScope
		parts []string
		args  []interface{}
	)
	for _, s := range scopes {
		if s.IsEmpty() {
			continue
		}
		kept = append(kept, s)
		parts = append(parts, s.Wrap().Condition)
		args = append(args, s.Args...)
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return QueryScope{Condition: strings.Join(parts, sep), Args: args}
}

// enclosed reports whether the whole condition sits inside one pair of
// parentheses. Quoted identifiers and literals are skipped.
func enclosed(condition string) bool {
	if len(condition) < 2 || condition[0] != '(' || condition[len(condition)-1] != ')' {
		return false
	}
	depth := 0
	var quote byte
	for i := 0; i < len(condition); i++ {
		c := condition[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 && i < len(condition)-1 {
				return false
			}
		}
	}
	return depth == 0
}
