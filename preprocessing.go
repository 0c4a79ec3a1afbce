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
	"math/rand"
	"sort"
)

// ImageCube 波段在后的影像块，数据按 (H, W, C) 交错存储
type ImageCube struct {
	Data     []int16
	Height   int
	Width    int
	Channels int
}

// LabelPlane 单波段标签，数据按 (H, W) 行优先存储
type LabelPlane struct {
	Data   []int16
	Height int
	Width  int
}

// TileWindow 瓦片像素窗口，左上角坐标加边长
type TileWindow struct {
	X0   int
	Y0   int
	Size int
}

// ModifyBands 按输出波段列表挑选并重排波段
// 输入为波段在前的平面列表，平面数必须与输入波段名等长
func ModifyBands(planes [][]int16, inputBands, outputBands []string) ([][]int16, error) {
	if len(planes) != len(inputBands) {
		return nil, fmt.Errorf("plane count %d does not match input band count %d", len(planes), len(inputBands))
	}

	out := make([][]int16, 0, len(outputBands))
	for _, name := range outputBands {
		idx := -1
		for i, in := range inputBands {
			if in == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("output band %s is not present in input bands", name)
		}
		out = append(out, planes[idx])
	}
	return out, nil
}

// InterleaveToHWC 将波段在前(C,H,W)的平面列表转为波段在后(H,W,C)的影像块
func InterleaveToHWC(planes [][]int16, width, height int) (*ImageCube, error) {
	channels := len(planes)
	if channels == 0 {
		return nil, fmt.Errorf("no bands to interleave")
	}
	for i, plane := range planes {
		if len(plane) != width*height {
			return nil, fmt.Errorf("band %d has length %d, expected %d", i, len(plane), width*height)
		}
	}

	data := make([]int16, width*height*channels)
	for b, plane := range planes {
		for p := 0; p < width*height; p++ {
			data[p*channels+b] = plane[p]
		}
	}
	return &ImageCube{Data: data, Height: height, Width: width, Channels: channels}, nil
}

// ResolveMaxPatches 解析瓦片数参数：不小于1按绝对数量，(0,1)按可用窗口位置比例
func ResolveMaxPatches(maxPatches float64, height, width, tileSize int) (int, error) {
	if maxPatches <= 0 {
		return 0, fmt.Errorf("max patches must be positive: %v", maxPatches)
	}
	positions := (height - tileSize + 1) * (width - tileSize + 1)
	if tileSize <= 0 || positions <= 0 {
		return 0, fmt.Errorf("tile size %d does not fit image %dx%d", tileSize, width, height)
	}
	if maxPatches < 1 {
		n := int(maxPatches * float64(positions))
		if n < 1 {
			n = 1
		}
		return n, nil
	}
	return int(maxPatches), nil
}

// GenRandomTileWindows 在有效范围内均匀随机采样瓦片窗口，允许位置重复
func GenRandomTileWindows(rng *rand.Rand, height, width, tileSize, count int) ([]TileWindow, error) {
	if tileSize > width || tileSize > height {
		return nil, fmt.Errorf("tile size %d exceeds image %dx%d", tileSize, width, height)
	}
	if count <= 0 {
		return nil, fmt.Errorf("tile count must be positive: %d", count)
	}

	windows := make([]TileWindow, count)
	for i := range windows {
		windows[i] = TileWindow{
			X0:   rng.Intn(width - tileSize + 1),
			Y0:   rng.Intn(height - tileSize + 1),
			Size: tileSize,
		}
	}
	return windows, nil
}

// Crop 提取影像块窗口
func (c *ImageCube) Crop(win TileWindow) (*ImageCube, error) {
	if win.X0 < 0 || win.Y0 < 0 || win.X0+win.Size > c.Width || win.Y0+win.Size > c.Height {
		return nil, fmt.Errorf("window (%d,%d size %d) out of cube %dx%d", win.X0, win.Y0, win.Size, c.Width, c.Height)
	}

	data := make([]int16, win.Size*win.Size*c.Channels)
	rowLen := win.Size * c.Channels
	for row := 0; row < win.Size; row++ {
		srcOff := ((win.Y0+row)*c.Width + win.X0) * c.Channels
		copy(data[row*rowLen:(row+1)*rowLen], c.Data[srcOff:srcOff+rowLen])
	}
	return &ImageCube{Data: data, Height: win.Size, Width: win.Size, Channels: c.Channels}, nil
}

// Crop 提取标签窗口
func (p *LabelPlane) Crop(win TileWindow) (*LabelPlane, error) {
	if win.X0 < 0 || win.Y0 < 0 || win.X0+win.Size > p.Width || win.Y0+win.Size > p.Height {
		return nil, fmt.Errorf("window (%d,%d size %d) out of label %dx%d", win.X0, win.Y0, win.Size, p.Width, p.Height)
	}

	data := make([]int16, win.Size*win.Size)
	for row := 0; row < win.Size; row++ {
		srcOff := (win.Y0+row)*p.Width + win.X0
		copy(data[row*win.Size:(row+1)*win.Size], p.Data[srcOff:srcOff+win.Size])
	}
	return &LabelPlane{Data: data, Height: win.Size, Width: win.Size}, nil
}

// UniqueClasses 返回标签中出现的类别值，升序
func (p *LabelPlane) UniqueClasses() []int16 {
	seen := make(map[int16]struct{})
	for _, v := range p.Data {
		seen[v] = struct{}{}
	}
	classes := make([]int16, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}
