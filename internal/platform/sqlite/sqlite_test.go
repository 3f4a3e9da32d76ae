package sqlite

import "testing"

func TestOpen_MigratesSchema(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{"securities", "prices"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s: %v", table, err)
		}
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := t.TempDir() + "/stockdash.db"

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = db.Close()

	// Migrations already applied; a second open must be a no-op.
	db, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	_ = db.Close()
}
