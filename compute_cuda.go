package Goseg

import (
	"fmt"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/cuda"
)

// cudaMedianBackend 基于CUDA的中值滤波实现
// 设备号来自配置，默认为1
type cudaMedianBackend struct {
	device int
}

func newCudaMedianBackend(device int) *cudaMedianBackend {
	return &cudaMedianBackend{device: device}
}

func (b *cudaMedianBackend) Name() string { return BackendCUDA }

func (b *cudaMedianBackend) Close() error { return nil }

func (b *cudaMedianBackend) Median(prediction []uint8, width, height, ksize int) ([]uint8, error) {
	k, err := normalizeKernelSize(ksize)
	if err != nil {
		return nil, err
	}
	if len(prediction) != width*height {
		return nil, fmt.Errorf("预测数据长度 %d 与尺寸 %dx%d 不符", len(prediction), width, height)
	}

	cuda.SetDevice(b.device)

	src, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, prediction)
	if err != nil {
		return nil, fmt.Errorf("无法构建滤波输入矩阵: %w", err)
	}
	defer src.Close()

	gpuSrc := cuda.NewGpuMat()
	defer gpuSrc.Close()
	gpuSrc.Upload(src)

	gpuDst := cuda.NewGpuMat()
	defer gpuDst.Close()

	filter := cuda.NewMedianFilter(gocv.MatTypeCV8UC1, k)
	defer filter.Close()
	filter.Apply(gpuSrc, &gpuDst)

	dst := gocv.NewMat()
	defer dst.Close()
	gpuDst.Download(&dst)

	return dst.ToBytes(), nil
}
