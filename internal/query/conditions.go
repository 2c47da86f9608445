package query

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tracewell/discover-go/internal/domain"
)

// Function encodes as [name, [args...]].
type Function struct {
	Name string
	Args []any
}

func (f Function) MarshalJSON() ([]byte, error) {
	args := f.Args
	if args == nil {
		args = []any{}
	}
	return json.Marshal([]any{f.Name, args})
}

// Condition encodes as [lhs, op, rhs].
type Condition struct {
	LHS any
	Op  string
	RHS any
}

func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.LHS, c.Op, c.RHS})
}

// Disjunction is an OR group. Within Request.Conditions groups are ANDed.
type Disjunction []Condition

func (d Disjunction) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Condition(d))
}

// StringLiteral quotes s the way the condition grammar expects string arguments.
func StringLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// KeyTransactionConditions matches any of records by (transaction, project).
// The grammar has no AND inside an OR group, so each pair is expressed as an
// and() function compared against 1.
func KeyTransactionConditions(records []domain.KeyTransaction) Disjunction {
	out := make(Disjunction, 0, len(records))
	for _, kt := range records {
		out = append(out, Condition{
			LHS: Function{
				Name: "and",
				Args: []any{
					Function{Name: "equals", Args: []any{"transaction", StringLiteral(kt.Transaction)}},
					Function{Name: "equals", Args: []any{"project_id", kt.ProjectID}},
				},
			},
			Op:  "=",
			RHS: 1,
		})
	}
	return out
}

var (
	functionPattern = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)\((.*)\)$`)
	nonAliasChars   = regexp.MustCompile(`[^a-zA-Z0-9_]+`)
)

// IsFunction reports whether field is an aggregate such as "p95()".
func IsFunction(field string) bool {
	return functionPattern.MatchString(strings.TrimSpace(field))
}

// Alias returns the result column name for field: "p95()" is "p95",
// "count_unique(user)" is "count_unique_user". Plain columns are unchanged.
func Alias(field string) string {
	field = strings.TrimSpace(field)
	m := functionPattern.FindStringSubmatch(field)
	if m == nil {
		return field
	}
	args := strings.Trim(nonAliasChars.ReplaceAllString(m[2], "_"), "_")
	if args == "" {
		return m[1]
	}
	return m[1] + "_" + args
}
