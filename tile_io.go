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
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// sceneGeo 场景地理参考信息
type sceneGeo struct {
	hasGeoInfo bool
	transform  [6]float64
	projection string
}

// loadScenePlanes 按块读取整景数据，返回波段在前的int16平面与地理参考
func loadScenePlanes(path string, chunks ChunkConfig) ([][]int16, int, int, *sceneGeo, error) {
	ensureGDALRegistered()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, 0, 0, nil, fmt.Errorf("failed to open scene %s: %w", path, err)
	}
	defer ds.Close()

	structure := ds.Structure()
	width, height := structure.SizeX, structure.SizeY
	chunks = chunks.normalized()

	planes := make([][]int16, 0, structure.NBands)
	for _, band := range ds.Bands() {
		buf := make([]int16, width*height)
		for y0 := 0; y0 < height; y0 += chunks.Y {
			bh := min(chunks.Y, height-y0)
			for x0 := 0; x0 < width; x0 += chunks.X {
				bw := min(chunks.X, width-x0)
				win := make([]int16, bw*bh)
				if err := band.Read(x0, y0, win, bw, bh); err != nil {
					return nil, 0, 0, nil, fmt.Errorf("failed to read scene window (%d,%d %dx%d): %w", x0, y0, bw, bh, err)
				}
				for row := 0; row < bh; row++ {
					copy(buf[(y0+row)*width+x0:(y0+row)*width+x0+bw], win[row*bw:(row+1)*bw])
				}
			}
		}
		planes = append(planes, buf)
	}

	geo := &sceneGeo{projection: ds.Projection()}
	if gt, err := ds.GeoTransform(); err == nil {
		geo.hasGeoInfo = true
		geo.transform = gt
	}
	return planes, width, height, geo, nil
}

// windowGeoTransform 由场景地理变换推导窗口的地理变换
func windowGeoTransform(gt [6]float64, win TileWindow) [6]float64 {
	return [6]float64{
		gt[0] + float64(win.X0)*gt[1] + float64(win.Y0)*gt[2],
		gt[1],
		gt[2],
		gt[3] + float64(win.X0)*gt[4] + float64(win.Y0)*gt[5],
		gt[4],
		gt[5],
	}
}

// tileBoundsWKT 计算窗口地理范围的WKT多边形
func tileBoundsWKT(gt [6]float64, win TileWindow) string {
	x1 := gt[0] + float64(win.X0)*gt[1] + float64(win.Y0)*gt[2]
	y1 := gt[3] + float64(win.X0)*gt[4] + float64(win.Y0)*gt[5]
	x2 := gt[0] + float64(win.X0+win.Size)*gt[1] + float64(win.Y0+win.Size)*gt[2]
	y2 := gt[3] + float64(win.X0+win.Size)*gt[4] + float64(win.Y0+win.Size)*gt[5]

	bound := orb.Bound{
		Min: orb.Point{min(x1, x2), min(y1, y2)},
		Max: orb.Point{max(x1, x2), max(y1, y2)},
	}
	return wkt.MarshalString(bound.ToPolygon())
}

// writeImageTile 将影像块写为多波段Int16 GeoTIFF
func writeImageTile(path string, cube *ImageCube, geo *sceneGeo, win TileWindow) error {
	ensureGDALRegistered()

	ds, err := godal.Create(godal.GTiff, path, cube.Channels, godal.Int16, cube.Width, cube.Height,
		godal.CreationOption("COMPRESS=LZW"))
	if err != nil {
		return fmt.Errorf("failed to create tile %s: %w", path, err)
	}

	if err := applyTileGeo(ds, geo, win); err != nil {
		ds.Close()
		return err
	}

	// 交错数据逐波段解出后写入
	plane := make([]int16, cube.Width*cube.Height)
	for b, band := range ds.Bands() {
		for p := 0; p < cube.Width*cube.Height; p++ {
			plane[p] = cube.Data[p*cube.Channels+b]
		}
		if err := band.Write(0, 0, plane, cube.Width, cube.Height); err != nil {
			ds.Close()
			return fmt.Errorf("failed to write tile band %d: %w", b+1, err)
		}
	}

	if err := ds.Close(); err != nil {
		return fmt.Errorf("failed to finalize tile %s: %w", path, err)
	}
	return nil
}

// writeLabelTile 将标签写为单波段Int16 GeoTIFF
func writeLabelTile(path string, plane *LabelPlane, geo *sceneGeo, win TileWindow) error {
	ensureGDALRegistered()

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Int16, plane.Width, plane.Height,
		godal.CreationOption("COMPRESS=LZW"))
	if err != nil {
		return fmt.Errorf("failed to create label tile %s: %w", path, err)
	}

	if err := applyTileGeo(ds, geo, win); err != nil {
		ds.Close()
		return err
	}

	if err := ds.Bands()[0].Write(0, 0, plane.Data, plane.Width, plane.Height); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write label tile: %w", err)
	}

	if err := ds.Close(); err != nil {
		return fmt.Errorf("failed to finalize label tile %s: %w", path, err)
	}
	return nil
}

// applyTileGeo 把窗口地理参考写入瓦片数据集
func applyTileGeo(ds *godal.Dataset, geo *sceneGeo, win TileWindow) error {
	if geo == nil || !geo.hasGeoInfo {
		return nil
	}
	if err := ds.SetGeoTransform(windowGeoTransform(geo.transform, win)); err != nil {
		return fmt.Errorf("failed to set tile geotransform: %w", err)
	}
	if geo.projection != "" {
		if err := ds.SetProjection(geo.projection); err != nil {
			return fmt.Errorf("failed to set tile projection: %w", err)
		}
	}
	return nil
}

// fileStem 去掉目录与扩展名的文件名
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
