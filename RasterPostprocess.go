// RasterPostprocess.go
package Goseg

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
)

// Sieve 剔除小于size个像元的连通区域，结果写入调用方提供的out缓冲
// connectivity 取4或8
func (r *Raster) Sieve(prediction, out []uint8, width, height, size, connectivity int) error {
	ensureGDALRegistered()

	if len(prediction) != width*height {
		return fmt.Errorf("prediction length %d does not match %dx%d", len(prediction), width, height)
	}
	if len(out) != width*height {
		return fmt.Errorf("output length %d does not match %dx%d", len(out), width, height)
	}
	if size <= 0 {
		return fmt.Errorf("sieve size must be positive: %d", size)
	}

	src, err := godal.Create(godal.Memory, "", 1, godal.Byte, width, height)
	if err != nil {
		return fmt.Errorf("failed to create sieve source dataset: %w", err)
	}
	defer src.Close()

	dst, err := godal.Create(godal.Memory, "", 1, godal.Byte, width, height)
	if err != nil {
		return fmt.Errorf("failed to create sieve destination dataset: %w", err)
	}
	defer dst.Close()

	srcBand := src.Bands()[0]
	if err := srcBand.Write(0, 0, prediction, width, height); err != nil {
		return fmt.Errorf("failed to write prediction data: %w", err)
	}

	opts := []godal.SieveFilterOption{
		godal.Destination(dst.Bands()[0]),
		godal.NoMask(),
	}
	switch connectivity {
	case 8:
		opts = append(opts, godal.EightConnected())
	case 4:
	default:
		return fmt.Errorf("connectivity must be 4 or 8: %d", connectivity)
	}

	if err := srcBand.SieveFilter(size, opts...); err != nil {
		return fmt.Errorf("sieve filter failed: %w", err)
	}

	if err := dst.Bands()[0].Read(0, 0, out, width, height); err != nil {
		return fmt.Errorf("failed to read sieve result: %w", err)
	}
	r.logger.Debug().Int("size", size).Int("connectivity", connectivity).Msg("sieve filter applied")
	return nil
}

// Median 中值滤波，执行路径由注入的计算后端决定
// 核尺寸为偶数时自动加一取奇
func (r *Raster) Median(prediction []uint8, width, height, ksize int) ([]uint8, error) {
	backend := r.backend
	if backend == nil {
		backend = &cpuMedianBackend{}
	}
	if ksize%2 == 0 && ksize >= 3 {
		r.logger.Warn().Int("ksize", ksize).Int("adjusted", ksize+1).Msg("median kernel size adjusted to odd")
	}

	out, err := backend.Median(prediction, width, height, ksize)
	if err != nil {
		return nil, fmt.Errorf("median filter failed on %s backend: %w", backend.Name(), err)
	}
	return out, nil
}

// ToRaster 将预测结果保存为单波段GeoTIFF
// 地理参考复制自参考影像，参考影像掩膜为0处以nodata值替换，替换直接作用于传入切片
func (r *Raster) ToRaster(refPath string, prediction []int16, dtype godal.DataType, output string) error {
	ensureGDALRegistered()

	if len(r.NoDataVals) == 0 || math.IsNaN(r.NoDataVals[0]) {
		return fmt.Errorf("raster nodata value is not set, cannot mask prediction")
	}
	nodata := r.NoDataVals[0]

	ref, err := godal.Open(refPath)
	if err != nil {
		return fmt.Errorf("failed to open reference raster %s: %w", refPath, err)
	}
	defer ref.Close()

	structure := ref.Structure()
	if len(prediction) != structure.SizeX*structure.SizeY {
		return fmt.Errorf("prediction length %d does not match reference size %dx%d",
			len(prediction), structure.SizeX, structure.SizeY)
	}

	// 参考影像第一波段的有效掩膜，0表示无效像元
	mask := make([]uint8, structure.SizeX*structure.SizeY)
	maskBand := ref.Bands()[0].MaskBand()
	if err := maskBand.Read(0, 0, mask, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("failed to read reference mask: %w", err)
	}
	for i := range mask {
		if mask[i] == 0 {
			prediction[i] = int16(nodata)
		}
	}

	out, err := godal.Create(godal.GTiff, output, 1, dtype, structure.SizeX, structure.SizeY,
		godal.CreationOption("TILED=YES", "COMPRESS=LZW"))
	if err != nil {
		return fmt.Errorf("failed to create output raster %s: %w", output, err)
	}

	if gt, err := ref.GeoTransform(); err == nil {
		if err := out.SetGeoTransform(gt); err != nil {
			out.Close()
			return fmt.Errorf("failed to set geotransform: %w", err)
		}
	}
	if projection := ref.Projection(); projection != "" {
		if err := out.SetProjection(projection); err != nil {
			out.Close()
			return fmt.Errorf("failed to set projection: %w", err)
		}
	}

	band := out.Bands()[0]
	if err := band.SetNoData(nodata); err != nil {
		out.Close()
		return fmt.Errorf("failed to set nodata value: %w", err)
	}
	if err := band.Write(0, 0, prediction, structure.SizeX, structure.SizeY); err != nil {
		out.Close()
		return fmt.Errorf("failed to write prediction: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finalize output raster %s: %w", output, err)
	}

	r.logger.Info().Str("output", output).Msg("prediction saved to raster")
	return nil
}
