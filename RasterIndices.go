// RasterIndices.go
package Goseg

import (
	"fmt"
	"math"
	"slices"
)

// IndexFunc 光谱指数计算函数
// 输入当前栅格与大气校正系数，输出新波段数据与波段名
type IndexFunc func(r *Raster, factor float64) ([]float64, string, error)

// AddIndices 依次计算各光谱指数并追加为新波段
// 追加完成后scale和offset以首波段值复制到全部波段，与上游数据管线保持一致
func (r *Raster) AddIndices(indices []IndexFunc, factor float64) error {
	for _, indexFunc := range indices {
		band, bandID, err := indexFunc(r, factor)
		if err != nil {
			return fmt.Errorf("failed to calculate index: %w", err)
		}
		if len(band) != r.width*r.height {
			return fmt.Errorf("index band %s has size %d, expected %d", bandID, len(band), r.width*r.height)
		}

		r.Data = append(r.Data, band)
		r.Bands = append(r.Bands, bandID)
		r.logger.Info().Str("band", bandID).Msg("index band added")
	}

	nbands := len(r.Bands)
	if nbands > 0 && len(r.Scales) > 0 {
		r.Scales = replicateFirst(r.Scales, nbands)
		r.Offsets = replicateFirst(r.Offsets, nbands)
		r.NoDataVals = replicateFirst(r.NoDataVals, nbands)
	}
	return nil
}

// replicateFirst 以首元素扩展到n个
func replicateFirst(vals []float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = vals[0]
	}
	return out
}

// DropIndices 删除指定名称的波段，名称必须全部存在
// 波段数据与scale、offset、nodata元数据同步删除
func (r *Raster) DropIndices(drop []string) error {
	for _, name := range drop {
		if !slices.Contains(r.Bands, name) {
			return fmt.Errorf("specified band %s is not in raster", name)
		}
	}

	newData := make([][]float64, 0, len(r.Data))
	newBands := make([]string, 0, len(r.Bands))
	newScales := make([]float64, 0, len(r.Scales))
	newOffsets := make([]float64, 0, len(r.Offsets))
	newNoData := make([]float64, 0, len(r.NoDataVals))
	for i, name := range r.Bands {
		if slices.Contains(drop, name) {
			continue
		}
		newBands = append(newBands, name)
		newData = append(newData, r.Data[i])
		if i < len(r.Scales) {
			newScales = append(newScales, r.Scales[i])
		}
		if i < len(r.Offsets) {
			newOffsets = append(newOffsets, r.Offsets[i])
		}
		if i < len(r.NoDataVals) {
			newNoData = append(newNoData, r.NoDataVals[i])
		}
	}
	r.Data = newData
	r.Bands = newBands
	r.Scales = newScales
	r.Offsets = newOffsets
	r.NoDataVals = newNoData
	return nil
}

// ==================== 光谱指数 ====================

// NDVI 归一化植被指数 (N1 - R) / (N1 + R)
func NDVI(r *Raster, factor float64) ([]float64, string, error) {
	nir, err := r.BandData("N1")
	if err != nil {
		return nil, "", err
	}
	red, err := r.BandData("R")
	if err != nil {
		return nil, "", err
	}

	out := make([]float64, len(nir))
	for i := range out {
		sum := nir[i] + red[i]
		if sum == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (nir[i] - red[i]) / sum
	}
	return out, "NDVI", nil
}

// NDWI 归一化水体指数 (G - N1) / (G + N1)
func NDWI(r *Raster, factor float64) ([]float64, string, error) {
	green, err := r.BandData("G")
	if err != nil {
		return nil, "", err
	}
	nir, err := r.BandData("N1")
	if err != nil {
		return nil, "", err
	}

	out := make([]float64, len(green))
	for i := range out {
		sum := green[i] + nir[i]
		if sum == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (green[i] - nir[i]) / sum
	}
	return out, "NDWI", nil
}

// EVI 增强型植被指数 2.5*(N1-R)/(N1+6*R-7.5*B+factor)
func EVI(r *Raster, factor float64) ([]float64, string, error) {
	nir, err := r.BandData("N1")
	if err != nil {
		return nil, "", err
	}
	red, err := r.BandData("R")
	if err != nil {
		return nil, "", err
	}
	blue, err := r.BandData("B")
	if err != nil {
		return nil, "", err
	}

	out := make([]float64, len(nir))
	for i := range out {
		denom := nir[i] + 6.0*red[i] - 7.5*blue[i] + factor
		if denom == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = 2.5 * (nir[i] - red[i]) / denom
	}
	return out, "EVI", nil
}

// DVI 差值植被指数 N1 - R
func DVI(r *Raster, factor float64) ([]float64, string, error) {
	nir, err := r.BandData("N1")
	if err != nil {
		return nil, "", err
	}
	red, err := r.BandData("R")
	if err != nil {
		return nil, "", err
	}

	out := make([]float64, len(nir))
	for i := range out {
		out[i] = nir[i] - red[i]
	}
	return out, "DVI", nil
}

// FDI 森林判别指数 N1 - (RE + B)
func FDI(r *Raster, factor float64) ([]float64, string, error) {
	nir, err := r.BandData("N1")
	if err != nil {
		return nil, "", err
	}
	rededge, err := r.BandData("RE")
	if err != nil {
		return nil, "", err
	}
	blue, err := r.BandData("B")
	if err != nil {
		return nil, "", err
	}

	out := make([]float64, len(nir))
	for i := range out {
		out[i] = nir[i] - (rededge[i] + blue[i])
	}
	return out, "FDI", nil
}

// SI 阴影指数 ((factor-B)*(factor-G)*(factor-R))^(1/3)
func SI(r *Raster, factor float64) ([]float64, string, error) {
	blue, err := r.BandData("B")
	if err != nil {
		return nil, "", err
	}
	green, err := r.BandData("G")
	if err != nil {
		return nil, "", err
	}
	red, err := r.BandData("R")
	if err != nil {
		return nil, "", err
	}

	out := make([]float64, len(blue))
	for i := range out {
		out[i] = math.Cbrt((factor - blue[i]) * (factor - green[i]) * (factor - red[i]))
	}
	return out, "SI", nil
}
