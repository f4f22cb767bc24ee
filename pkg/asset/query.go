package asset

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	pg "github.com/pganalyze/pg_query_go/v6"
)

const (
	qualifiedColumnFields = 2 // table.column
)

// Lineage is the best-effort picture of what an asset query reads: the
// tables named in FROM and JOIN clauses and the equality keys joining them.
// It is informational; query validity is checked by the warehouse.
type Lineage struct {
	Tables      []string
	JoinClauses []JoinClause
	JoinGraph   map[string][]string
}

type JoinClause struct {
	LeftTable  string
	RightTable string
	LeftKeys   []string
	RightKeys  []string
}

// Dotted warehouse names (dataset.table, project.dataset.table) are quoted so
// the Postgres grammar reads them as one identifier.
var tableRefRe = regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+([A-Za-z0-9_.]+)`)

func quoteTableNames(sql string) string {
	sql = strings.ReplaceAll(sql, "`", `"`)
	return tableRefRe.ReplaceAllString(sql, `$1 "$2"`)
}

// Analyze parses sql and collects its lineage.
func Analyze(sql string) (*Lineage, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("empty query not allowed")
	}

	tree, err := pg.Parse(quoteTableNames(sql))
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	w := newWalker()
	for _, raw := range tree.GetStmts() {
		w.statement(raw.GetStmt())
	}

	sort.Strings(w.tables)
	clauses := collapseSameKeyClauses(w.joins)
	return &Lineage{Tables: w.tables, JoinClauses: clauses, JoinGraph: buildJoinGraph(clauses)}, nil
}

// ReferencedTables returns the sorted, de-duplicated tables sql reads from.
// Common table expressions are not reported.
func ReferencedTables(sql string) ([]string, error) {
	l, err := Analyze(sql)
	if err != nil {
		return nil, err
	}
	return l.Tables, nil
}

type walker struct {
	seen    map[string]struct{}
	ctes    map[string]struct{}
	aliasTo map[string]string
	tables  []string
	joins   []JoinClause
}

func newWalker() *walker {
	return &walker{
		seen:    map[string]struct{}{},
		ctes:    map[string]struct{}{},
		aliasTo: map[string]string{},
	}
}

func (w *walker) addTable(name string) {
	if _, ok := w.ctes[name]; ok {
		return
	}
	if _, ok := w.seen[name]; !ok {
		w.seen[name] = struct{}{}
		w.tables = append(w.tables, name)
	}
}

func (w *walker) statement(stmt *pg.Node) {
	if stmt == nil {
		return
	}
	switch {
	case stmt.GetSelectStmt() != nil:
		w.selectStmt(stmt.GetSelectStmt())
	case stmt.GetInsertStmt() != nil:
		w.statement(stmt.GetInsertStmt().GetSelectStmt())
	case stmt.GetCreateTableAsStmt() != nil:
		w.statement(stmt.GetCreateTableAsStmt().GetQuery())
	case stmt.GetViewStmt() != nil:
		w.statement(stmt.GetViewStmt().GetQuery())
	}
}

func (w *walker) selectStmt(sel *pg.SelectStmt) {
	if sel == nil {
		return
	}
	if wc := sel.GetWithClause(); wc != nil {
		for _, n := range wc.GetCtes() {
			if cte := n.GetCommonTableExpr(); cte != nil {
				w.ctes[cte.GetCtename()] = struct{}{}
				w.statement(cte.GetCtequery())
			}
		}
	}
	// UNION / INTERSECT / EXCEPT
	w.selectStmt(sel.GetLarg())
	w.selectStmt(sel.GetRarg())
	w.fromClause(sel.GetFromClause())
}

func (w *walker) fromClause(list []*pg.Node) {
	for _, n := range list {
		switch {
		case n.GetRangeVar() != nil:
			rv := n.GetRangeVar()
			name := qualifiedName(rv)
			w.addTable(name)

			alias := rv.GetRelname()
			if rv.GetAlias() != nil && rv.GetAlias().GetAliasname() != "" {
				alias = rv.GetAlias().GetAliasname()
			}
			w.aliasTo[alias] = name
		case n.GetJoinExpr() != nil:
			j := n.GetJoinExpr()
			if j.GetLarg() != nil {
				w.fromClause([]*pg.Node{j.GetLarg()})
			}
			if j.GetRarg() != nil {
				w.fromClause([]*pg.Node{j.GetRarg()})
			}
			w.joinExpr(j)
		case n.GetRangeSubselect() != nil:
			w.statement(n.GetRangeSubselect().GetSubquery())
		}
	}
}

func qualifiedName(rv *pg.RangeVar) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{rv.GetCatalogname(), rv.GetSchemaname(), rv.GetRelname()} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

func (w *walker) joinExpr(j *pg.JoinExpr) {
	if j.GetQuals() == nil {
		return // NATURAL JOIN, USING
	}
	var jc JoinClause
	w.scanQuals(j.GetQuals(), &jc)
	if jc.LeftTable != "" && jc.RightTable != "" {
		w.joins = append(w.joins, jc)
	}
}

// scanQuals collects equality predicates between two known aliases.
func (w *walker) scanQuals(node *pg.Node, jc *JoinClause) {
	if node == nil {
		return
	}

	if boolExp := node.GetBoolExpr(); boolExp != nil {
		for _, arg := range boolExp.GetArgs() {
			w.scanQuals(arg, jc)
		}
		return
	}

	aexpr := node.GetAExpr()
	if aexpr == nil {
		return
	}
	if len(aexpr.GetName()) == 0 || aexpr.GetName()[0].GetString_().GetSval() != "=" {
		return
	}
	lcol := aexpr.GetLexpr().GetColumnRef()
	rcol := aexpr.GetRexpr().GetColumnRef()
	if lcol == nil || rcol == nil {
		return
	}

	aliasL, colL := splitColumnRef(lcol)
	aliasR, colR := splitColumnRef(rcol)
	tblL, okL := w.aliasTo[aliasL]
	tblR, okR := w.aliasTo[aliasR]
	if !okL || !okR {
		return
	}

	if jc.LeftTable == "" {
		jc.LeftTable, jc.RightTable = tblL, tblR
	}
	jc.LeftKeys = appendIfMissing(jc.LeftKeys, colL)
	jc.RightKeys = appendIfMissing(jc.RightKeys, colR)
}

func splitColumnRef(cr *pg.ColumnRef) (alias, col string) {
	fields := cr.GetFields()
	if len(fields) == qualifiedColumnFields {
		alias = fields[0].GetString_().GetSval()
		col = fields[1].GetString_().GetSval()
	} else if len(fields) == 1 {
		col = fields[0].GetString_().GetSval()
	}
	return
}

func buildJoinGraph(clauses []JoinClause) map[string][]string {
	tmp := map[string]map[string]struct{}{}
	add := func(a, b string) {
		if tmp[a] == nil {
			tmp[a] = map[string]struct{}{}
		}
		tmp[a][b] = struct{}{}
	}
	for _, jc := range clauses {
		for _, rt := range strings.Split(jc.RightTable, ",") {
			add(jc.LeftTable, rt)
			add(rt, jc.LeftTable)
		}
	}
	graph := make(map[string][]string, len(tmp))
	for k, v := range tmp {
		ns := make([]string, 0, len(v))
		for n := range v {
			ns = append(ns, n)
		}
		sort.Strings(ns)
		graph[k] = ns
	}
	return graph
}

// collapseSameKeyClauses merges clauses joining several tables to the same
// left table on the same keys.
func collapseSameKeyClauses(cs []JoinClause) []JoinClause {
	m := map[string]JoinClause{}
	for _, c := range cs {
		key := c.LeftTable + "|" + strings.Join(c.LeftKeys, "|")
		agg, ok := m[key]
		if !ok {
			m[key] = c
			continue
		}
		agg.RightTable = strings.Join(appendIfMissing(strings.Split(agg.RightTable, ","), c.RightTable), ",")
		for _, rk := range c.RightKeys {
			agg.RightKeys = appendIfMissing(agg.RightKeys, rk)
		}
		m[key] = agg
	}
	out := make([]JoinClause, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return joinSortKey(out[i]) < joinSortKey(out[j]) })
	return out
}

func joinSortKey(c JoinClause) string {
	return c.LeftTable + "\x00" + strings.Join(c.LeftKeys, ",") + "\x00" + c.RightTable + "\x00" + strings.Join(c.RightKeys, ",")
}

func appendIfMissing(slice []string, val string) []string {
	if slices.Contains(slice, val) {
		return slice
	}
	return append(slice, val)
}
