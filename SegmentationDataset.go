/*
Copyright (C) 2025 [GrainArc]

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package Goseg

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// ProgressCallback 生成进度回调，返回false中止生成
type ProgressCallback func(done, total int, scene string) bool

// TensorTransform 单张量变换
type TensorTransform func(t *tensor.Dense) (*tensor.Dense, error)

// TensorPairTransform 影像与标签的成对变换，训练时做数据增强用
type TensorPairTransform func(x, y *tensor.Dense) (*tensor.Dense, *tensor.Dense, error)

// SegmentationDatasetConfig 数据集构造参数
type SegmentationDatasetConfig struct {
	DatasetDir      string
	InputBands      []string
	OutputBands     []string
	TileSize        int
	MaxPatches      float64 // 不小于1按绝对数量，(0,1)按可用窗口位置比例
	GenerateDataset bool
	ImagesGlob      string
	LabelsGlob      string
	TestSize        float64 // 预留的验证集划分比例，当前流程未使用
	Invert          bool    // 影像张量输出(C,H,W)排布
	Normalize       bool    // 除以输入类型最大值
	Standardize     bool
	StandardizeFunc TensorTransform // 为空时使用LocalStandardize
	Transform       TensorPairTransform
	Chunks          ChunkConfig
	Rand            *rand.Rand // 为空时以当前时间做种
	Progress        ProgressCallback
	Catalog         *TileCatalog
	Logger          zerolog.Logger
}

// DefaultSegmentationDatasetConfig 与上游训练管线一致的默认参数
// WorldView八波段输入，可见光三波段输出
func DefaultSegmentationDatasetConfig() *SegmentationDatasetConfig {
	return &SegmentationDatasetConfig{
		InputBands:  []string{"CB", "B", "G", "Y", "R", "RE", "N1", "N2"},
		OutputBands: []string{"B", "G", "R"},
		TileSize:    256,
		MaxPatches:  100,
		TestSize:    0.20,
		Invert:      true,
		Chunks:      DefaultChunkConfig(),
	}
}

// TilePair 清单记录：影像瓦片与同名标签瓦片
type TilePair struct {
	Image string
	Label string
}

// SegmentationDataset 语义分割训练数据集
// 瓦片以GeoTIFF形式存放在dataset_dir的images与labels子目录，文件名一一对应
type SegmentationDataset struct {
	cfg       SegmentationDatasetConfig
	imagesDir string
	labelsDir string
	manifest  []TilePair
	rng       *rand.Rand
	catalog   *TileCatalog
	logger    zerolog.Logger
}

// NewSegmentationDataset 构建数据集
// GenerateDataset为真时先切瓦片再装载清单，为假时直接装载既有瓦片
func NewSegmentationDataset(config *SegmentationDatasetConfig) (*SegmentationDataset, error) {
	if config == nil || config.DatasetDir == "" {
		return nil, fmt.Errorf("dataset directory should be defined")
	}

	cfg := *config
	if cfg.TileSize <= 0 {
		cfg.TileSize = 256
	}
	if cfg.MaxPatches == 0 {
		cfg.MaxPatches = 100
	}
	cfg.Chunks = cfg.Chunks.normalized()

	imagesDir := filepath.Join(cfg.DatasetDir, "images")
	labelsDir := filepath.Join(cfg.DatasetDir, "labels")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}
	if err := os.MkdirAll(labelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create labels directory: %w", err)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	d := &SegmentationDataset{
		cfg:       cfg,
		imagesDir: imagesDir,
		labelsDir: labelsDir,
		rng:       rng,
		catalog:   cfg.Catalog,
		logger:    cfg.Logger,
	}

	if cfg.GenerateDataset {
		if cfg.ImagesGlob == "" {
			return nil, fmt.Errorf("images glob should be defined when generating dataset")
		}
		if cfg.LabelsGlob == "" {
			return nil, fmt.Errorf("labels glob should be defined when generating dataset")
		}
		if len(cfg.InputBands) == 0 || len(cfg.OutputBands) == 0 {
			return nil, fmt.Errorf("input and output bands should be defined when generating dataset")
		}
		d.logger.Info().Str("dataset_dir", cfg.DatasetDir).Msg("starting to prepare dataset")
		if err := d.genDataset(); err != nil {
			return nil, err
		}
	}

	manifest, err := d.loadManifest()
	if err != nil {
		return nil, err
	}
	if len(manifest) == 0 {
		return nil, fmt.Errorf("%s is empty, make sure dataset generation is enabled", imagesDir)
	}
	d.manifest = manifest
	return d, nil
}

// Len 瓦片总数
func (d *SegmentationDataset) Len() int { return len(d.manifest) }

func (d *SegmentationDataset) String() string {
	return fmt.Sprintf("segmentation dataset with %d tiles", d.Len())
}

// TilePairAt 返回第idx对瓦片的文件路径
func (d *SegmentationDataset) TilePairAt(idx int) (TilePair, error) {
	if err := d.checkIndex(idx); err != nil {
		return TilePair{}, err
	}
	return d.manifest[idx], nil
}

// loadManifest 枚举images目录构建清单，标签取labels目录下的同名文件
func (d *SegmentationDataset) loadManifest() ([]TilePair, error) {
	entries, err := os.ReadDir(d.imagesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list images directory: %w", err)
	}

	pairs := make([]TilePair, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		pairs = append(pairs, TilePair{
			Image: filepath.Join(d.imagesDir, entry.Name()),
			Label: filepath.Join(d.labelsDir, entry.Name()),
		})
	}
	return pairs, nil
}

// ==================== 瓦片生成 ====================

// genDataset 切分全部场景为训练瓦片
// 影像与标签列表各自排序后按位置配对，多余的场景忽略
func (d *SegmentationDataset) genDataset() error {
	imagesList, err := filepath.Glob(d.cfg.ImagesGlob)
	if err != nil {
		return fmt.Errorf("invalid images glob %s: %w", d.cfg.ImagesGlob, err)
	}
	labelsList, err := filepath.Glob(d.cfg.LabelsGlob)
	if err != nil {
		return fmt.Errorf("invalid labels glob %s: %w", d.cfg.LabelsGlob, err)
	}
	sort.Strings(imagesList)
	sort.Strings(labelsList)

	total := min(len(imagesList), len(labelsList))
	d.logger.Info().Int("images", len(imagesList)).Int("labels", len(labelsList)).Int("scenes", total).Msg("preparing dataset")

	runID := uuid.New().String()
	if d.catalog != nil {
		if err := d.catalog.WriteMetadata(map[string]string{
			"run_id":       runID,
			"tile_size":    fmt.Sprintf("%d", d.cfg.TileSize),
			"input_bands":  strings.Join(d.cfg.InputBands, ","),
			"output_bands": strings.Join(d.cfg.OutputBands, ","),
		}); err != nil {
			return fmt.Errorf("failed to write catalog metadata: %w", err)
		}
	}

	for i := 0; i < total; i++ {
		stem := fileStem(imagesList[i])
		if err := d.generateSceneTiles(runID, imagesList[i], labelsList[i]); err != nil {
			return err
		}
		if d.cfg.Progress != nil && !d.cfg.Progress(i+1, total, stem) {
			return fmt.Errorf("dataset generation cancelled")
		}
	}
	return nil
}

// generateSceneTiles 切分单个场景
func (d *SegmentationDataset) generateSceneTiles(runID, imagePath, labelPath string) error {
	stem := fileStem(imagePath)

	planes, width, height, geo, err := loadScenePlanes(imagePath, d.cfg.Chunks)
	if err != nil {
		return err
	}
	labelPlanes, labelWidth, labelHeight, _, err := loadScenePlanes(labelPath, d.cfg.Chunks)
	if err != nil {
		return err
	}
	if len(labelPlanes) != 1 {
		return fmt.Errorf("label %s has %d bands, expected a single band", labelPath, len(labelPlanes))
	}
	if labelWidth != width || labelHeight != height {
		return fmt.Errorf("label %s size %dx%d does not match image %dx%d",
			labelPath, labelWidth, labelHeight, width, height)
	}
	label := &LabelPlane{Data: labelPlanes[0], Height: height, Width: width}

	planes, err = ModifyBands(planes, d.cfg.InputBands, d.cfg.OutputBands)
	if err != nil {
		return fmt.Errorf("failed to modify bands for %s: %w", stem, err)
	}
	cube, err := InterleaveToHWC(planes, width, height)
	if err != nil {
		return err
	}

	count, err := ResolveMaxPatches(d.cfg.MaxPatches, height, width, d.cfg.TileSize)
	if err != nil {
		return fmt.Errorf("scene %s: %w", stem, err)
	}
	windows, err := GenRandomTileWindows(d.rng, height, width, d.cfg.TileSize, count)
	if err != nil {
		return fmt.Errorf("scene %s: %w", stem, err)
	}

	d.logger.Info().
		Str("scene", stem).
		Int("tiles", len(windows)).
		Interface("classes", label.UniqueClasses()).
		Msg("generating scene tiles")

	for id, win := range windows {
		imageTile, err := cube.Crop(win)
		if err != nil {
			return fmt.Errorf("scene %s tile %d: %w", stem, id, err)
		}
		labelTile, err := label.Crop(win)
		if err != nil {
			return fmt.Errorf("scene %s tile %d: %w", stem, id, err)
		}

		name := fmt.Sprintf("%s_%d.tif", stem, id)
		imageOut := filepath.Join(d.imagesDir, name)
		labelOut := filepath.Join(d.labelsDir, name)
		if err := writeImageTile(imageOut, imageTile, geo, win); err != nil {
			return err
		}
		if err := writeLabelTile(labelOut, labelTile, geo, win); err != nil {
			return err
		}

		if d.catalog != nil {
			record := &TileRecord{
				RunID:     runID,
				Scene:     stem,
				TileIndex: id,
				X0:        win.X0,
				Y0:        win.Y0,
				TileSize:  win.Size,
				ImagePath: imageOut,
				LabelPath: labelOut,
			}
			if geo.hasGeoInfo {
				record.BoundsWKT = tileBoundsWKT(geo.transform, win)
			}
			if err := d.catalog.AddTile(record); err != nil {
				return fmt.Errorf("failed to catalog tile %s: %w", name, err)
			}
		}
	}
	return nil
}

// ==================== 样本读取 ====================

func (d *SegmentationDataset) checkIndex(idx int) error {
	if idx < 0 || idx >= len(d.manifest) {
		return fmt.Errorf("tile index %d out of range [0,%d)", idx, len(d.manifest))
	}
	return nil
}

// At 返回第idx个样本：影像float32张量与标签int64张量
func (d *SegmentationDataset) At(idx int) (*tensor.Dense, *tensor.Dense, error) {
	x, err := d.OpenImage(idx)
	if err != nil {
		return nil, nil, err
	}
	y, err := d.OpenMask(idx, false)
	if err != nil {
		return nil, nil, err
	}
	if d.cfg.Transform != nil {
		x, y, err = d.cfg.Transform(x, y)
		if err != nil {
			return nil, nil, fmt.Errorf("transform failed on tile %d: %w", idx, err)
		}
	}
	return x, y, nil
}

// OpenImage 读取影像瓦片为float32张量
// Invert时输出(C,H,W)，否则(H,W,C)；Normalize除以int16最大值
func (d *SegmentationDataset) OpenImage(idx int) (*tensor.Dense, error) {
	if err := d.checkIndex(idx); err != nil {
		return nil, err
	}

	planes, width, height, _, err := loadScenePlanes(d.manifest[idx].Image, d.cfg.Chunks)
	if err != nil {
		return nil, err
	}
	channels := len(planes)

	buf := make([]float32, channels*width*height)
	var shape tensor.Shape
	if d.cfg.Invert {
		for b, plane := range planes {
			off := b * width * height
			for p, v := range plane {
				buf[off+p] = float32(v)
			}
		}
		shape = tensor.Shape{channels, height, width}
	} else {
		for b, plane := range planes {
			for p, v := range plane {
				buf[p*channels+b] = float32(v)
			}
		}
		shape = tensor.Shape{height, width, channels}
	}

	if d.cfg.Normalize {
		for i := range buf {
			buf[i] /= float32(math.MaxInt16)
		}
	}

	x := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(buf))
	if d.cfg.Standardize {
		standardize := d.cfg.StandardizeFunc
		if standardize == nil {
			standardize = LocalStandardize
		}
		x, err = standardize(x)
		if err != nil {
			return nil, fmt.Errorf("failed to standardize tile %d: %w", idx, err)
		}
	}
	return x, nil
}

// OpenMask 读取标签瓦片为int64张量，addDims时在前面补一个长度1的轴
func (d *SegmentationDataset) OpenMask(idx int, addDims bool) (*tensor.Dense, error) {
	if err := d.checkIndex(idx); err != nil {
		return nil, err
	}

	planes, width, height, _, err := loadScenePlanes(d.manifest[idx].Label, d.cfg.Chunks)
	if err != nil {
		return nil, err
	}
	if len(planes) != 1 {
		return nil, fmt.Errorf("label tile %s has %d bands, expected a single band", d.manifest[idx].Label, len(planes))
	}

	buf := make([]int64, width*height)
	for i, v := range planes[0] {
		buf[i] = int64(v)
	}
	if addDims {
		return tensor.New(tensor.WithShape(1, height, width), tensor.WithBacking(buf)), nil
	}
	return tensor.New(tensor.WithShape(height, width), tensor.WithBacking(buf)), nil
}

// LocalStandardize 逐通道局部标准化 (x-mean)/stddev，期望(C,H,W)排布
func LocalStandardize(t *tensor.Dense) (*tensor.Dense, error) {
	shape := t.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("standardize expects a 3-axis tensor, got %v", shape)
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("standardize expects a float32 tensor")
	}

	channels := shape[0]
	planeLen := shape[1] * shape[2]
	sample := make([]float64, planeLen)
	for b := 0; b < channels; b++ {
		plane := data[b*planeLen : (b+1)*planeLen]
		for i, v := range plane {
			sample[i] = float64(v)
		}
		mean, std := stat.MeanStdDev(sample, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for i := range plane {
			plane[i] = float32((float64(plane[i]) - mean) / std)
		}
	}
	return t, nil
}
