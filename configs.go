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
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// ComputeConfig 计算后端配置
// 在进程启动时解析一次并显式传入构造函数，不使用包级全局状态
type ComputeConfig struct {
	XMLName   xml.Name `xml:"compute"`
	Backend   string   `xml:"backend"`    // auto / cpu / cuda
	GPUDevice int      `xml:"gpu_device"` // CUDA设备号
}

// DefaultComputeConfig 默认配置：自动探测，GPU设备号1
func DefaultComputeConfig() *ComputeConfig {
	return &ComputeConfig{
		Backend:   BackendAuto,
		GPUDevice: 1,
	}
}

// DefaultComputeConfigPath 用户配置目录下的默认配置文件路径
func DefaultComputeConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("无法获取用户配置目录: %w", err)
	}
	return filepath.Join(configDir, "Goseg", "compute.xml"), nil
}

// LoadComputeConfig 从XML文件读取计算配置
func LoadComputeConfig(path string) (*ComputeConfig, error) {
	xmlFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开配置文件 %s: %w", path, err)
	}
	defer xmlFile.Close()

	config := DefaultComputeConfig()
	xmlDecoder := xml.NewDecoder(xmlFile)
	if err := xmlDecoder.Decode(config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件 %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate 校验配置项取值
func (c *ComputeConfig) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendCPU, BackendCUDA, "":
	default:
		return fmt.Errorf("未知的计算后端: %s", c.Backend)
	}
	if c.GPUDevice < 0 {
		return fmt.Errorf("GPU设备号不能为负数: %d", c.GPUDevice)
	}
	return nil
}
