package Goseg

import (
	"fmt"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/cuda"
)

// 计算后端名称
const (
	BackendAuto = "auto"
	BackendCPU  = "cpu"
	BackendCUDA = "cuda"
)

// MedianBackend 中值滤波后端
// 进程启动时通过ResolveMedianBackend解析一次，之后注入Raster使用
type MedianBackend interface {
	Name() string
	Median(prediction []uint8, width, height, ksize int) ([]uint8, error)
	Close() error
}

// ResolveMedianBackend 依据配置选择中值滤波实现
// auto模式下探测CUDA设备，探测只在这里发生一次
func ResolveMedianBackend(config *ComputeConfig, logger zerolog.Logger) (MedianBackend, error) {
	if config == nil {
		config = DefaultComputeConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Backend {
	case BackendCPU:
		logger.Info().Str("backend", BackendCPU).Msg("中值滤波后端已选择")
		return &cpuMedianBackend{}, nil
	case BackendCUDA:
		if cuda.GetCudaEnabledDeviceCount() == 0 {
			return nil, fmt.Errorf("配置要求CUDA后端，但未检测到CUDA设备")
		}
		logger.Info().Str("backend", BackendCUDA).Int("device", config.GPUDevice).Msg("中值滤波后端已选择")
		return newCudaMedianBackend(config.GPUDevice), nil
	default: // auto
		if cuda.GetCudaEnabledDeviceCount() > 0 {
			logger.Info().Str("backend", BackendCUDA).Int("device", config.GPUDevice).Msg("检测到CUDA设备，使用GPU中值滤波")
			return newCudaMedianBackend(config.GPUDevice), nil
		}
		logger.Info().Str("backend", BackendCPU).Msg("未检测到CUDA设备，使用CPU中值滤波")
		return &cpuMedianBackend{}, nil
	}
}

// normalizeKernelSize OpenCV要求中值核为不小于3的奇数，偶数向上取奇
func normalizeKernelSize(ksize int) (int, error) {
	if ksize < 3 {
		return 0, fmt.Errorf("中值滤波核尺寸必须不小于3: %d", ksize)
	}
	if ksize%2 == 0 {
		return ksize + 1, nil
	}
	return ksize, nil
}

// ==================== CPU实现 ====================

type cpuMedianBackend struct{}

func (b *cpuMedianBackend) Name() string { return BackendCPU }

func (b *cpuMedianBackend) Close() error { return nil }

func (b *cpuMedianBackend) Median(prediction []uint8, width, height, ksize int) ([]uint8, error) {
	k, err := normalizeKernelSize(ksize)
	if err != nil {
		return nil, err
	}
	if len(prediction) != width*height {
		return nil, fmt.Errorf("预测数据长度 %d 与尺寸 %dx%d 不符", len(prediction), width, height)
	}

	src, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, prediction)
	if err != nil {
		return nil, fmt.Errorf("无法构建滤波输入矩阵: %w", err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	gocv.MedianBlur(src, &dst, k)

	return dst.ToBytes(), nil
}
