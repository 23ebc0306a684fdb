package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetline/pelorus/common/retry"
	"github.com/fleetline/pelorus/internal/pelorus/audit"
	"github.com/fleetline/pelorus/internal/pelorus/fleetdata"
	"github.com/fleetline/pelorus/internal/pelorus/store"
)

func newTestFleet(t *testing.T, handler http.HandlerFunc) *fleetdata.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return fleetdata.New(fleetdata.Config{
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond},
	})
}

func newTestDB(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "app-test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadDirectoryFromAPIRefreshesSnapshot(t *testing.T) {
	fleet := newTestFleet(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"vessels":[{"name":"GCL YAMUNA","identifier":"9481219"}]}`))
	})
	st := newTestDB(t)

	dir, err := loadDirectory(context.Background(), Config{}, fleet, st, audit.NopNotifier{})
	if err != nil {
		t.Fatalf("loadDirectory: %v", err)
	}
	if dir.Len() != 1 {
		t.Errorf("Len = %d, want 1", dir.Len())
	}

	// The successful API load must leave a usable snapshot behind.
	records, err := st.LoadCatalog(context.Background())
	if err != nil || len(records) != 1 {
		t.Errorf("snapshot = (%v, %v), want 1 record", records, err)
	}
}

func TestLoadDirectoryFallsBackToSnapshot(t *testing.T) {
	fleet := newTestFleet(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	st := newTestDB(t)

	seed := newTestFleet(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"vessels":[{"name":"GCL GANGA","identifier":"9481220"}]}`))
	})
	records, err := seed.Catalog(context.Background())
	if err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	if err := st.SaveCatalog(context.Background(), records); err != nil {
		t.Fatalf("SaveCatalog: %v", err)
	}

	dir, err := loadDirectory(context.Background(), Config{}, fleet, st, audit.NopNotifier{})
	if err != nil {
		t.Fatalf("loadDirectory: %v", err)
	}
	if _, ok := dir.FindByIdentifier("9481220"); !ok {
		t.Error("snapshot record not served by directory")
	}
}

func TestLoadDirectoryFallsBackToFile(t *testing.T) {
	fleet := newTestFleet(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	st := newTestDB(t)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	catalog := "vessels:\n  - name: GCL YAMUNA\n    identifier: \"9481219\"\n"
	if err := os.WriteFile(path, []byte(catalog), 0o600); err != nil {
		t.Fatal(err)
	}

	dir, err := loadDirectory(context.Background(), Config{CatalogPath: path}, fleet, st, audit.NopNotifier{})
	if err != nil {
		t.Fatalf("loadDirectory: %v", err)
	}
	if _, ok := dir.FindByName("GCL YAMUNA"); !ok {
		t.Error("file record not served by directory")
	}
}

func TestLoadDirectoryAllSourcesFail(t *testing.T) {
	fleet := newTestFleet(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	st := newTestDB(t)

	if _, err := loadDirectory(context.Background(), Config{}, fleet, st, audit.NopNotifier{}); err == nil {
		t.Fatal("expected error when every catalog source fails")
	}
}
