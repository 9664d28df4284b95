// internal/logger/pretty.go
package logger

import (
	"go.uber.org/zap/zapcore"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

var levelColors = map[zapcore.Level]string{
	zapcore.DebugLevel: colorCyan,
	zapcore.InfoLevel:  colorGreen,
	zapcore.WarnLevel:  colorYellow,
	zapcore.ErrorLevel: colorRed,
	zapcore.FatalLevel: colorRed + colorBold,
}

// PrettyEncoder creates the console encoder: "15:04:05 [INFO] name msg k=v".
// Colors are ANSI escapes and should be off when output is not a terminal.
func PrettyEncoder(color bool) zapcore.Encoder {
	encodeLevel := plainLevel
	if color {
		encodeLevel = coloredLevel
	}
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		TimeKey:          "time",
		NameKey:          "logger",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      encodeLevel,
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	})
}

func levelLabel(level zapcore.Level) string {
	if level == zapcore.WarnLevel {
		return "[WARN]"
	}
	return "[" + level.CapitalString() + "]"
}

func plainLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(levelLabel(level))
}

func coloredLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	color, ok := levelColors[level]
	if !ok {
		plainLevel(level, enc)
		return
	}
	enc.AppendString(color + levelLabel(level) + colorReset)
}

// ShortenAddress renders 0x1234...abcd for display.
func ShortenAddress(addr string) string {
	if len(addr) > 12 {
		return addr[:6] + "..." + addr[len(addr)-4:]
	}
	return addr
}

// ShortenHash renders a transaction hash for display.
func ShortenHash(hash string) string {
	if len(hash) > 20 {
		return hash[:10] + "..." + hash[len(hash)-8:]
	}
	return hash
}
