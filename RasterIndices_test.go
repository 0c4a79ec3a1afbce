// RasterIndices_test.go
package Goseg

import (
	"math"
	"testing"
)

func newTestRaster(names []string, data [][]float64, width, height int) *Raster {
	scales := make([]float64, len(names))
	offsets := make([]float64, len(names))
	nodata := make([]float64, len(names))
	for i := range scales {
		scales[i] = 1.0
		nodata[i] = math.NaN()
	}
	return &Raster{
		width:      width,
		height:     height,
		Data:       data,
		Bands:      names,
		Scales:     scales,
		Offsets:    offsets,
		NoDataVals: nodata,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNDVI(t *testing.T) {
	r := newTestRaster(
		[]string{"R", "N1"},
		[][]float64{{2, 0}, {8, 0}},
		2, 1,
	)
	band, id, err := NDVI(r, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "NDVI" {
		t.Fatalf("got band id %s", id)
	}
	if !almostEqual(band[0], 0.6) {
		t.Errorf("ndvi[0] = %v, want 0.6", band[0])
	}
	if !math.IsNaN(band[1]) {
		t.Errorf("ndvi[1] = %v, want NaN for zero denominator", band[1])
	}
}

func TestNDWI(t *testing.T) {
	r := newTestRaster(
		[]string{"G", "N1"},
		[][]float64{{6, 0}, {2, 0}},
		2, 1,
	)
	band, id, err := NDWI(r, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "NDWI" {
		t.Fatalf("got band id %s", id)
	}
	if !almostEqual(band[0], 0.5) {
		t.Errorf("ndwi[0] = %v, want 0.5", band[0])
	}
	if !math.IsNaN(band[1]) {
		t.Errorf("ndwi[1] = %v, want NaN for zero denominator", band[1])
	}
}

func TestEVI(t *testing.T) {
	r := newTestRaster(
		[]string{"B", "R", "N1"},
		[][]float64{{0}, {1}, {3}},
		1, 1,
	)
	band, _, err := EVI(r, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 2.5*(3-1)/(3+6*1-7.5*0+1) = 0.5
	if !almostEqual(band[0], 0.5) {
		t.Errorf("evi[0] = %v, want 0.5", band[0])
	}
}

func TestDVI(t *testing.T) {
	r := newTestRaster(
		[]string{"R", "N1"},
		[][]float64{{2, 5}, {8, 3}},
		2, 1,
	)
	band, _, err := DVI(r, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if band[0] != 6 || band[1] != -2 {
		t.Errorf("dvi = %v, want [6 -2]", band)
	}
}

func TestFDI(t *testing.T) {
	r := newTestRaster(
		[]string{"B", "RE", "N1"},
		[][]float64{{1}, {2}, {10}},
		1, 1,
	)
	band, _, err := FDI(r, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if band[0] != 7 {
		t.Errorf("fdi[0] = %v, want 7", band[0])
	}
}

func TestSI(t *testing.T) {
	r := newTestRaster(
		[]string{"B", "G", "R"},
		[][]float64{{0}, {0}, {0}},
		1, 1,
	)
	band, _, err := SI(r, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(band[0], 2.0) {
		t.Errorf("si[0] = %v, want 2.0", band[0])
	}
}

func TestIndexMissingBand(t *testing.T) {
	r := newTestRaster([]string{"B"}, [][]float64{{1}}, 1, 1)
	if _, _, err := NDVI(r, 1.0); err == nil {
		t.Fatal("expected error for missing band")
	}
}

func TestAddIndices(t *testing.T) {
	r := newTestRaster(
		[]string{"B", "G", "R", "RE", "N1"},
		[][]float64{{1}, {2}, {3}, {4}, {9}},
		1, 1,
	)
	r.Scales[0] = 2.0 // 首波段scale不同，验证复制行为

	if err := r.AddIndices([]IndexFunc{NDVI, DVI}, 1.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(r.Bands) != 7 {
		t.Fatalf("got %d bands, want 7", len(r.Bands))
	}
	if r.Bands[5] != "NDVI" || r.Bands[6] != "DVI" {
		t.Fatalf("got bands %v", r.Bands)
	}
	if len(r.Data) != len(r.Bands) || len(r.Scales) != len(r.Bands) ||
		len(r.Offsets) != len(r.Bands) || len(r.NoDataVals) != len(r.Bands) {
		t.Fatalf("metadata arrays out of sync after add: data=%d scales=%d offsets=%d nodata=%d bands=%d",
			len(r.Data), len(r.Scales), len(r.Offsets), len(r.NoDataVals), len(r.Bands))
	}

	// 上游语义：scale与offset以首波段值复制到全部波段
	for i, s := range r.Scales {
		if s != 2.0 {
			t.Errorf("scale[%d] = %v, want 2.0", i, s)
		}
	}

	if !almostEqual(r.Data[5][0], 0.5) { // (9-3)/(9+3)
		t.Errorf("ndvi value = %v, want 0.5", r.Data[5][0])
	}
	if r.Data[6][0] != 6 { // 9-3
		t.Errorf("dvi value = %v, want 6", r.Data[6][0])
	}
}

func TestAddIndicesMissingBand(t *testing.T) {
	r := newTestRaster([]string{"B"}, [][]float64{{1}}, 1, 1)
	if err := r.AddIndices([]IndexFunc{NDVI}, 1.0); err == nil {
		t.Fatal("expected error when index band is missing")
	}
}

func TestDropIndices(t *testing.T) {
	r := newTestRaster(
		[]string{"B", "G", "R"},
		[][]float64{{1}, {2}, {3}},
		1, 1,
	)
	if err := r.DropIndices([]string{"G"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Bands) != 2 || r.Bands[0] != "B" || r.Bands[1] != "R" {
		t.Fatalf("got bands %v", r.Bands)
	}
	if r.Data[1][0] != 3 {
		t.Fatalf("data moved incorrectly: %v", r.Data)
	}
	if len(r.Scales) != 2 || len(r.Offsets) != 2 || len(r.NoDataVals) != 2 {
		t.Fatalf("metadata arrays out of sync after drop")
	}
}

func TestDropIndicesUnknownBand(t *testing.T) {
	r := newTestRaster([]string{"B", "G"}, [][]float64{{1}, {2}}, 1, 1)
	if err := r.DropIndices([]string{"B", "N1"}); err == nil {
		t.Fatal("expected error for unknown band")
	}
	// 失败时不应做任何删除
	if len(r.Bands) != 2 {
		t.Fatalf("raster modified on failed drop: %v", r.Bands)
	}
}

func TestDropIndicesAll(t *testing.T) {
	r := newTestRaster([]string{"B", "G"}, [][]float64{{1}, {2}}, 1, 1)
	if err := r.DropIndices([]string{"G", "B"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Bands) != 0 || len(r.Data) != 0 {
		t.Fatalf("expected empty raster, got %v", r.Bands)
	}
}
