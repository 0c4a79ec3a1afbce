// DatasetCatalog_test.go
package Goseg

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func addTestTiles(t *testing.T, catalog *TileCatalog) {
	t.Helper()
	records := []*TileRecord{
		{RunID: "run-1", Scene: "alpha", TileIndex: 0, X0: 0, Y0: 0, TileSize: 8, ImagePath: "images/alpha_0.tif", LabelPath: "labels/alpha_0.tif"},
		{RunID: "run-1", Scene: "alpha", TileIndex: 1, X0: 4, Y0: 2, TileSize: 8, ImagePath: "images/alpha_1.tif", LabelPath: "labels/alpha_1.tif", BoundsWKT: "POLYGON((0 0,1 0,1 1,0 1,0 0))"},
		{RunID: "run-1", Scene: "beta", TileIndex: 0, X0: 1, Y0: 1, TileSize: 8, ImagePath: "images/beta_0.tif", LabelPath: "labels/beta_0.tif"},
	}
	for _, record := range records {
		if err := catalog.AddTile(record); err != nil {
			t.Fatalf("failed to add tile: %v", err)
		}
	}
}

func TestTileCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.sqlite")

	catalog, err := NewTileCatalog(path)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}

	if err := catalog.WriteMetadata(map[string]string{"run_id": "run-1", "tile_size": "8"}); err != nil {
		t.Fatalf("failed to write metadata: %v", err)
	}
	addTestTiles(t, catalog)

	count, err := catalog.TileCount()
	if err != nil {
		t.Fatalf("failed to count tiles: %v", err)
	}
	if count != 3 {
		t.Fatalf("got %d tiles, want 3", count)
	}
	if err := catalog.Close(); err != nil {
		t.Fatalf("failed to close catalog: %v", err)
	}

	// 元数据自定义项覆盖默认项
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to reopen catalog: %v", err)
	}
	defer db.Close()

	var runID string
	if err := db.QueryRow("SELECT value FROM metadata WHERE name = 'run_id'").Scan(&runID); err != nil {
		t.Fatalf("failed to query metadata: %v", err)
	}
	if runID != "run-1" {
		t.Fatalf("run_id = %s, want run-1", runID)
	}

	var format string
	if err := db.QueryRow("SELECT value FROM metadata WHERE name = 'format'").Scan(&format); err != nil {
		t.Fatalf("failed to query default metadata: %v", err)
	}
	if format != "tif" {
		t.Fatalf("format = %s, want tif", format)
	}

	var bounds string
	if err := db.QueryRow("SELECT bounds_wkt FROM tiles WHERE scene = 'alpha' AND tile_index = 1").Scan(&bounds); err != nil {
		t.Fatalf("failed to query tile bounds: %v", err)
	}
	if bounds == "" {
		t.Fatal("bounds_wkt is empty")
	}
}

func TestCatalogStatsQueries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.sqlite")

	catalog, err := NewTileCatalog(path)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	addTestTiles(t, catalog)
	if err := catalog.Close(); err != nil {
		t.Fatalf("failed to close catalog: %v", err)
	}

	db, err := OpenCatalogDB(path)
	if err != nil {
		t.Fatalf("failed to open catalog with gorm: %v", err)
	}

	counts, err := QuerySceneTileCounts(db)
	if err != nil {
		t.Fatalf("failed to query scene counts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("got %d scenes, want 2", len(counts))
	}
	if counts[0].Scene != "alpha" || counts[0].Count != 2 {
		t.Errorf("got %+v, want alpha with 2 tiles", counts[0])
	}
	if counts[1].Scene != "beta" || counts[1].Count != 1 {
		t.Errorf("got %+v, want beta with 1 tile", counts[1])
	}

	summary, err := QueryCatalogSummary(db)
	if err != nil {
		t.Fatalf("failed to query summary: %v", err)
	}
	if summary.Runs != 1 || summary.Scenes != 2 || summary.Tiles != 3 {
		t.Fatalf("got summary %+v", summary)
	}
}
