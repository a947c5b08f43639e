package persistence

import (
	"path/filepath"
	"testing"

	"agroledger/internal/infra/persistence/sqlite"
	"agroledger/internal/ledger"
)

func TestOpenSelectsDriver(t *testing.T) {
	t.Setenv("AGROLEDGER_STORAGE_DRIVER", "memory")
	store, err := Open("root")
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := store.(*ledger.MemoryStore); !ok {
		t.Fatalf("driver memory produced %T", store)
	}

	t.Setenv("AGROLEDGER_STORAGE_DRIVER", "sqlite")
	t.Setenv("AGROLEDGER_SQLITE_PATH", filepath.Join(t.TempDir(), "ledger.db"))
	store, err = Open("root")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("driver sqlite produced %T", store)
	}
	_ = s.Close()

	t.Setenv("AGROLEDGER_STORAGE_DRIVER", "bogus")
	if _, err := Open("root"); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
