package mlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fixkme/timerwheel/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// zapLogger Logger 的 zap 实现, 级别过滤由自身完成(zap 没有 notice/trace)
type zapLogger struct {
	sugar *zap.SugaredLogger
	level atomic.Uint32
}

func newZapLogger(core zapcore.Core, level Level) *zapLogger {
	// log -> Logf -> Infof -> 包级 Infof -> 调用方
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(4))
	zl := &zapLogger{sugar: l.Sugar()}
	zl.level.Store(uint32(level))
	return zl
}

func encoderConfig() zapcore.EncoderConfig {
	conf := zap.NewProductionEncoderConfig()
	conf.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000000")
	conf.EncodeLevel = zapcore.LowercaseLevelEncoder
	conf.ConsoleSeparator = " "
	return conf
}

func newStdoutLogger(level Level) *zapLogger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stdout), zapcore.DebugLevel)
	return newZapLogger(core, level)
}

func newFileLogger(logpath, logName string, level Level, stdOut bool, opt FileOptions) (*zapLogger, io.Closer, error) {
	// 默认使用当前路径
	if len(logpath) == 0 {
		logpath = "."
	}
	if err := util.EnsureDir(logpath); err != nil {
		return nil, nil, err
	}
	if logName == "" {
		logName = "mlog"
	}
	if opt.MaxSizeMB <= 0 {
		opt.MaxSizeMB = 100
	}
	writer := &lumberjack.Logger{
		Filename:   filepath.Join(logpath, logName+".log"),
		MaxSize:    opt.MaxSizeMB,
		MaxBackups: opt.MaxBackups,
		MaxAge:     opt.MaxAgeDays,
		Compress:   opt.Compress,
		LocalTime:  true,
	}
	enc := zapcore.NewConsoleEncoder(encoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(writer), zapcore.DebugLevel)
	if stdOut {
		core = zapcore.NewTee(core, zapcore.NewCore(enc.Clone(), zapcore.Lock(os.Stdout), zapcore.DebugLevel))
	}
	return newZapLogger(core, level), writer, nil
}

func (l *zapLogger) IsLevelEnabled(level Level) bool {
	return Level(l.level.Load()) >= level
}

func (l *zapLogger) SetLevel(level Level) {
	l.level.Store(uint32(level))
}

func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}

func (l *zapLogger) log(level Level, msg string) {
	switch level {
	case FatalLevel:
		l.sugar.Fatal(msg)
	case ErrorLevel:
		l.sugar.Error(msg)
	case WarnLevel:
		l.sugar.Warn(msg)
	case NoticeLevel:
		l.sugar.Info("[notice] " + msg)
	case InfoLevel:
		l.sugar.Info(msg)
	case DebugLevel:
		l.sugar.Debug(msg)
	default:
		l.sugar.Debug("[trace] " + msg)
	}
}

func (l *zapLogger) Log(level Level, args ...any) {
	if l.IsLevelEnabled(level) {
		l.log(level, fmt.Sprint(args...))
	}
}

func (l *zapLogger) Logf(level Level, format string, args ...any) {
	if l.IsLevelEnabled(level) {
		if len(format) == 0 {
			l.log(level, fmt.Sprint(args...))
		} else {
			l.log(level, fmt.Sprintf(format, args...))
		}
	}
}

func (l *zapLogger) Trace(v ...any) {
	l.Log(TraceLevel, v...)
}

func (l *zapLogger) Tracef(format string, v ...any) {
	l.Logf(TraceLevel, format, v...)
}

func (l *zapLogger) Debug(v ...any) {
	l.Log(DebugLevel, v...)
}

func (l *zapLogger) Debugf(format string, v ...any) {
	l.Logf(DebugLevel, format, v...)
}

func (l *zapLogger) Info(v ...any) {
	l.Log(InfoLevel, v...)
}

func (l *zapLogger) Infof(format string, v ...any) {
	l.Logf(InfoLevel, format, v...)
}

func (l *zapLogger) Notice(v ...any) {
	l.Log(NoticeLevel, v...)
}

func (l *zapLogger) Noticef(format string, v ...any) {
	l.Logf(NoticeLevel, format, v...)
}

func (l *zapLogger) Warn(v ...any) {
	l.Log(WarnLevel, v...)
}

func (l *zapLogger) Warnf(format string, v ...any) {
	l.Logf(WarnLevel, format, v...)
}

func (l *zapLogger) Error(v ...any) {
	l.Log(ErrorLevel, v...)
}

func (l *zapLogger) Errorf(format string, v ...any) {
	l.Logf(ErrorLevel, format, v...)
}

// Fatal zap 输出后退出进程
func (l *zapLogger) Fatal(v ...any) {
	l.Log(FatalLevel, v...)
}

func (l *zapLogger) Fatalf(format string, v ...any) {
	l.Logf(FatalLevel, format, v...)
}
