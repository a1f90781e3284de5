package db

import "testing"

func TestRebind(t *testing.T) {
	q := `SELECT id FROM works_for WHERE staff_id=? AND activity_id=? AND active=?`
	if got := SQLite.Rebind(q); got != q {
		t.Fatalf("sqlite rebind changed query: %s", got)
	}
	want := `SELECT id FROM works_for WHERE staff_id=$1 AND activity_id=$2 AND active=$3`
	if got := Postgres.Rebind(q); got != want {
		t.Fatalf("postgres rebind: %s", got)
	}
}

func TestParseDialect(t *testing.T) {
	cases := map[string]Dialect{"": SQLite, "sqlite": SQLite, "Postgres": Postgres, "pgx": Postgres}
	for in, want := range cases {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q err %v", in, got, err)
		}
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Fatalf("expected mysql rejected")
	}
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}
