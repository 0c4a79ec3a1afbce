// Raster.go
package Goseg

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rs/zerolog"
)

var gdalRegisterOnce sync.Once

// ensureGDALRegistered GDAL驱动只注册一次
func ensureGDALRegistered() {
	gdalRegisterOnce.Do(func() {
		godal.RegisterAll()
	})
}

// ChunkConfig 分块读取配置，按 波段/X/Y 三个方向的窗口尺寸
type ChunkConfig struct {
	Band int
	X    int
	Y    int
}

// DefaultChunkConfig 默认分块：单波段，2048x2048窗口
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{Band: 1, X: 2048, Y: 2048}
}

func (c ChunkConfig) normalized() ChunkConfig {
	d := DefaultChunkConfig()
	if c.Band <= 0 {
		c.Band = d.Band
	}
	if c.X <= 0 {
		c.X = d.X
	}
	if c.Y <= 0 {
		c.Y = d.Y
	}
	return c
}

// RasterOptions Raster构造选项
type RasterOptions struct {
	Chunks  ChunkConfig
	Logger  zerolog.Logger
	Backend MedianBackend // 中值滤波后端，可为空，为空时退回CPU
}

// Raster 多波段栅格的内存表示
// 数据按波段优先存储，Bands、Scales、Offsets、NoDataVals与波段轴始终等长
type Raster struct {
	filePath   string
	width      int
	height     int
	chunks     ChunkConfig
	hasGeoInfo bool
	transform  [6]float64
	projection string

	Data       [][]float64 // 每波段一个切片，长度 width*height，行优先
	Bands      []string
	Scales     []float64
	Offsets    []float64
	NoDataVals []float64 // 未设置时为NaN

	logger  zerolog.Logger
	backend MedianBackend
}

// NewRaster 打开栅格文件并读入内存
// bands为必填的波段名列表，长度必须与文件波段数一致
func NewRaster(filename string, bands []string, opts *RasterOptions) (*Raster, error) {
	r := &Raster{}
	if opts != nil {
		r.logger = opts.Logger
		r.backend = opts.Backend
		r.chunks = opts.Chunks
	}
	if err := r.ReadRaster(filename, bands, r.chunks); err != nil {
		return nil, err
	}
	return r, nil
}

// ReadRaster 按块读取栅格数据，可在空Raster上调用以延迟装载
func (r *Raster) ReadRaster(filename string, bands []string, chunks ChunkConfig) error {
	ensureGDALRegistered()

	if _, err := os.Stat(filename); err != nil {
		return fmt.Errorf("%s does not exist", filename)
	}
	if len(bands) == 0 {
		return fmt.Errorf("band names must be specified")
	}
	chunks = chunks.normalized()

	ds, err := godal.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open raster %s: %w", filename, err)
	}
	defer ds.Close()

	structure := ds.Structure()
	width, height := structure.SizeX, structure.SizeY
	if len(bands) != structure.NBands {
		return fmt.Errorf("band names (%d) do not match raster band count (%d)", len(bands), structure.NBands)
	}

	data := make([][]float64, 0, structure.NBands)
	nodataVals := make([]float64, 0, structure.NBands)
	for _, band := range ds.Bands() {
		buf := make([]float64, width*height)
		// 按窗口读取，窗口内数据行优先回填
		for y0 := 0; y0 < height; y0 += chunks.Y {
			bh := min(chunks.Y, height-y0)
			for x0 := 0; x0 < width; x0 += chunks.X {
				bw := min(chunks.X, width-x0)
				win := make([]float64, bw*bh)
				if err := band.Read(x0, y0, win, bw, bh); err != nil {
					return fmt.Errorf("failed to read raster window (%d,%d %dx%d): %w", x0, y0, bw, bh, err)
				}
				for row := 0; row < bh; row++ {
					copy(buf[(y0+row)*width+x0:(y0+row)*width+x0+bw], win[row*bw:(row+1)*bw])
				}
			}
		}
		data = append(data, buf)

		nd, ok := band.NoData()
		if !ok {
			nd = math.NaN()
		}
		nodataVals = append(nodataVals, nd)
	}

	scales := make([]float64, structure.NBands)
	offsets := make([]float64, structure.NBands)
	for i := range scales {
		scales[i] = 1.0
	}

	gt, gtErr := ds.GeoTransform()

	r.filePath = filename
	r.width = width
	r.height = height
	r.chunks = chunks
	r.hasGeoInfo = gtErr == nil
	if gtErr == nil {
		r.transform = gt
	}
	r.projection = ds.Projection()
	r.Data = data
	r.Bands = append([]string(nil), bands...)
	r.Scales = scales
	r.Offsets = offsets
	r.NoDataVals = nodataVals

	r.logger.Debug().
		Str("file", filename).
		Int("width", width).
		Int("height", height).
		Int("bands", len(bands)).
		Msg("raster loaded")
	return nil
}

// Width 栅格宽度（列数）
func (r *Raster) Width() int { return r.width }

// Height 栅格高度（行数）
func (r *Raster) Height() int { return r.height }

// BandCount 当前波段数
func (r *Raster) BandCount() int { return len(r.Data) }

// FilePath 数据来源文件
func (r *Raster) FilePath() string { return r.filePath }

// BandData 返回指定名称波段的数据切片
func (r *Raster) BandData(name string) ([]float64, error) {
	for i, b := range r.Bands {
		if b == name {
			return r.Data[i], nil
		}
	}
	return nil, fmt.Errorf("band %s not found in raster", name)
}

// Preprocess 阈值清洗：保留满足 value op boundary 的像元，其余替换为subs
// op 取 ">" 或 "<"
func (r *Raster) Preprocess(op string, boundary, subs float64) error {
	var keep func(v float64) bool
	switch op {
	case ">":
		keep = func(v float64) bool { return v > boundary }
	case "<":
		keep = func(v float64) bool { return v < boundary }
	default:
		return fmt.Errorf("unsupported preprocess operator: %s", op)
	}

	for _, band := range r.Data {
		for i, v := range band {
			if !keep(v) {
				band[i] = subs
			}
		}
	}
	r.logger.Debug().Str("op", op).Float64("boundary", boundary).Float64("subs", subs).Msg("raster preprocessed")
	return nil
}
