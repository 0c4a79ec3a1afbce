// DatasetCatalog.go
package Goseg

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// TileRecord 单个瓦片的目录记录
type TileRecord struct {
	RunID     string
	Scene     string
	TileIndex int
	X0        int
	Y0        int
	TileSize  int
	ImagePath string
	LabelPath string
	BoundsWKT string // 瓦片地理范围，无地理参考时为空
}

// TileCatalog 瓦片目录数据库
// 生成瓦片时逐条登记，便于追溯每个瓦片的来源场景与像素窗口
type TileCatalog struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	path       string
}

// NewTileCatalog 创建或打开瓦片目录数据库
func NewTileCatalog(path string) (*TileCatalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	catalog := &TileCatalog{db: db, path: path}
	if err := catalog.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create catalog tables: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO tiles (run_id, scene, tile_index, x0, y0, tile_size, image_path, label_path, bounds_wkt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare tile insert: %w", err)
	}
	catalog.insertStmt = stmt
	return catalog, nil
}

// Path 目录数据库文件路径
func (c *TileCatalog) Path() string { return c.path }

// createTables 创建目录数据库表
func (c *TileCatalog) createTables() error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			name TEXT,
			value TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tiles (
			run_id TEXT,
			scene TEXT,
			tile_index INTEGER,
			x0 INTEGER,
			y0 INTEGER,
			tile_size INTEGER,
			image_path TEXT,
			label_path TEXT,
			bounds_wkt TEXT
		)`,
	}

	for _, schema := range schemas {
		if _, err := c.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// WriteMetadata 写入目录元数据，自定义项覆盖默认项
func (c *TileCatalog) WriteMetadata(customMetadata map[string]string) error {
	defaultMetadata := map[string]string{
		"name":        "Goseg tiles",
		"type":        "training",
		"version":     "1.0",
		"description": "Segmentation tiles generated from raster scenes",
		"format":      "tif",
	}
	for k, v := range customMetadata {
		defaultMetadata[k] = v
	}

	stmt, err := c.db.Prepare("INSERT INTO metadata (name, value) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for k, v := range defaultMetadata {
		if _, err := stmt.Exec(k, v); err != nil {
			return err
		}
	}
	return nil
}

// AddTile 登记一个瓦片
func (c *TileCatalog) AddTile(record *TileRecord) error {
	_, err := c.insertStmt.Exec(
		record.RunID, record.Scene, record.TileIndex,
		record.X0, record.Y0, record.TileSize,
		record.ImagePath, record.LabelPath, record.BoundsWKT,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tile record: %w", err)
	}
	return nil
}

// TileCount 目录中的瓦片总数
func (c *TileCatalog) TileCount() (int, error) {
	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM tiles").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tiles: %w", err)
	}
	return count, nil
}

// Close 关闭目录数据库
func (c *TileCatalog) Close() error {
	if c.insertStmt != nil {
		c.insertStmt.Close()
		c.insertStmt = nil
	}
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

// ==================== 统计查询 ====================

// SceneTileCount 单场景瓦片统计
type SceneTileCount struct {
	Scene string `gorm:"column:scene"`
	Count int    `gorm:"column:cnt"`
}

// CatalogSummary 目录总体统计
type CatalogSummary struct {
	Runs   int `gorm:"column:runs"`
	Scenes int `gorm:"column:scenes"`
	Tiles  int `gorm:"column:tiles"`
}

// OpenCatalogDB 以gorm打开目录数据库做统计查询
func OpenCatalogDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	return db, nil
}

// QuerySceneTileCounts 按场景聚合瓦片数
func QuerySceneTileCounts(db *gorm.DB) ([]SceneTileCount, error) {
	var results []SceneTileCount
	query := `SELECT scene, COUNT(*) as cnt FROM tiles GROUP BY scene ORDER BY scene`
	if err := db.Raw(query).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to query scene tile counts: %w", err)
	}
	return results, nil
}

// QueryCatalogSummary 查询目录总体统计
func QueryCatalogSummary(db *gorm.DB) (*CatalogSummary, error) {
	var summary CatalogSummary
	query := `SELECT COUNT(DISTINCT run_id) as runs, COUNT(DISTINCT scene) as scenes, COUNT(*) as tiles FROM tiles`
	if err := db.Raw(query).Scan(&summary).Error; err != nil {
		return nil, fmt.Errorf("failed to query catalog summary: %w", err)
	}
	return &summary, nil
}
