package duck

import (
	"fmt"
	"strings"

	pg "github.com/pganalyze/pg_query_go/v6"
)

// ValidateSelect checks that a split query is a single SELECT reading from at
// least one relation, and returns the tables it references.
func ValidateSelect(sql string) ([]string, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("empty query not allowed")
	}

	tree, err := pg.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	stmts := tree.GetStmts()
	if len(stmts) != 1 {
		return nil, fmt.Errorf("expected a single statement, got %d", len(stmts))
	}
	sel := stmts[0].GetStmt().GetSelectStmt()
	if sel == nil {
		return nil, fmt.Errorf("only SELECT statements can define a dataset split")
	}

	var tables []string
	seen := map[string]struct{}{}
	sources := walkFromClause(sel, func(name string) {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			tables = append(tables, name)
		}
	})
	if sources == 0 {
		return nil, fmt.Errorf("query must have a FROM clause")
	}
	return tables, nil
}

// walkFromClause collects relation names from FROM items, descending into
// joins, sub-selects and set operations. It returns the number of FROM items
// seen, table functions such as read_csv included.
func walkFromClause(sel *pg.SelectStmt, add func(string)) int {
	if sel == nil {
		return 0
	}
	sources := walkFromClause(sel.GetLarg(), add) + walkFromClause(sel.GetRarg(), add)
	for _, n := range sel.GetFromClause() {
		walkNode(n, add)
		sources++
	}
	return sources
}

func walkNode(n *pg.Node, add func(string)) {
	switch {
	case n.GetRangeVar() != nil:
		add(n.GetRangeVar().GetRelname())
	case n.GetJoinExpr() != nil:
		walkNode(n.GetJoinExpr().GetLarg(), add)
		walkNode(n.GetJoinExpr().GetRarg(), add)
	case n.GetRangeSubselect() != nil:
		if sub := n.GetRangeSubselect().GetSubquery(); sub != nil {
			walkFromClause(sub.GetSelectStmt(), add)
		}
	}
}
