package logs

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cube2222/octoudf/config"
)

var Output *os.File

var DefaultPath = filepath.Join(config.OctoudfCacheDir, "logs.txt")

// InitializeFileLogger creates a logger writing json lines to the file at path.
// Stdout stays reserved for query output.
func InitializeFileLogger(path, level string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level '%s'", level)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "couldn't create logs directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create logs file")
	}
	Output = f

	return NewLogger(f, zapLevel), nil
}

func NewLogger(output zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(output), level)
	return zap.New(core, zap.AddCaller())
}

func CloseLogger() {
	if Output != nil {
		Output.Close()
	}
}
