package Goseg

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewConsoleLogger 创建面向终端的结构化日志器
func NewConsoleLogger(level zerolog.Level) zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// NewLogger 以任意writer创建结构化日志器
func NewLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// NopLogger 返回丢弃全部输出的日志器，未显式传入日志器时使用
func NopLogger() zerolog.Logger {
	return zerolog.Nop()
}
