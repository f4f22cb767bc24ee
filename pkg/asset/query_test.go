package asset

import (
	"reflect"
	"testing"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		expectError  bool
		expectTables []string
		expectJoins  int
	}{
		{
			name:         "simple select",
			query:        "SELECT * FROM events",
			expectTables: []string{"events"},
		},
		{
			name:         "dotted warehouse names",
			query:        "SELECT * FROM raw.alpha.employees",
			expectTables: []string{"raw.alpha.employees"},
		},
		{
			name:         "backticked names",
			query:        "SELECT * FROM `project.dataset.orders`",
			expectTables: []string{"project.dataset.orders"},
		},
		{
			name:         "join",
			query:        "SELECT e.*, u.name FROM events e LEFT JOIN users u ON e.user_id = u.user_id",
			expectTables: []string{"events", "users"},
			expectJoins:  1,
		},
		{
			name: "multiple joins",
			query: "SELECT e.*, u.name, p.title FROM events e " +
				"LEFT JOIN users u ON e.user_id = u.user_id " +
				"LEFT JOIN products p ON e.product_id = p.product_id",
			expectTables: []string{"events", "products", "users"},
			expectJoins:  2,
		},
		{
			name:         "cte is not a table",
			query:        "WITH recent AS (SELECT * FROM orders WHERE day > 1) SELECT * FROM recent",
			expectTables: []string{"orders"},
		},
		{
			name:         "subquery and union",
			query:        "SELECT id FROM (SELECT id FROM a) s UNION ALL SELECT id FROM b",
			expectTables: []string{"a", "b"},
		},
		{
			name:         "insert select",
			query:        "INSERT INTO target SELECT * FROM source",
			expectTables: []string{"source"},
		},
		{
			name:         "no tables",
			query:        "SELECT 1",
			expectTables: nil,
		},
		{
			name:        "invalid sql",
			query:       "INVALID SQL QUERY",
			expectError: true,
		},
		{
			name:        "empty query",
			query:       "  ",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Analyze(tt.query)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error for query: %s", tt.query)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !reflect.DeepEqual(l.Tables, tt.expectTables) {
				t.Errorf("Tables mismatch: got %v, want %v", l.Tables, tt.expectTables)
			}
			if len(l.JoinClauses) != tt.expectJoins {
				t.Errorf("Join count mismatch: got %d, want %d", len(l.JoinClauses), tt.expectJoins)
			}
		})
	}
}

func TestAnalyzeJoinGraph(t *testing.T) {
	l, err := Analyze("SELECT * FROM orders o JOIN customers c ON o.customer_id = c.id")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	want := map[string][]string{
		"orders":    {"customers"},
		"customers": {"orders"},
	}
	if !reflect.DeepEqual(l.JoinGraph, want) {
		t.Errorf("JoinGraph = %v, want %v", l.JoinGraph, want)
	}
	jc := l.JoinClauses[0]
	if !reflect.DeepEqual(jc.LeftKeys, []string{"customer_id"}) || !reflect.DeepEqual(jc.RightKeys, []string{"id"}) {
		t.Errorf("unexpected join keys: %+v", jc)
	}
}

func TestAnalyzeJoinClauseOrder(t *testing.T) {
	const q = "SELECT * FROM a JOIN b ON a.x = b.x JOIN c ON a.y = c.y"
	for i := 0; i < 100; i++ {
		l, err := Analyze(q)
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		var got []string
		for _, jc := range l.JoinClauses {
			got = append(got, jc.LeftTable+"->"+jc.RightTable)
		}
		if want := []string{"a->b", "a->c"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d: join clauses = %v, want %v", i, got, want)
		}
	}
}
