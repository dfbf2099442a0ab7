package webrtc

import (
	"fmt"

	"github.com/pion/logging"

	"github.com/dep2p/go-timingmesh/pkg/lib/log"
)

// loggerFactory 将 pion 的作用域日志桥接到组件日志
//
// scope 映射为组件 "webrtc/<scope>"，Trace 降级为 Debug。
type loggerFactory struct{}

var _ logging.LoggerFactory = loggerFactory{}

// NewLogger 实现 logging.LoggerFactory
func (loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{l: log.Logger("webrtc/" + scope)}
}

type leveledLogger struct {
	l *log.LazyLogger
}

func (p *leveledLogger) Trace(msg string) { p.l.Debug(msg) }

func (p *leveledLogger) Tracef(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p *leveledLogger) Debug(msg string) { p.l.Debug(msg) }

func (p *leveledLogger) Debugf(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p *leveledLogger) Info(msg string) { p.l.Info(msg) }

func (p *leveledLogger) Infof(format string, args ...interface{}) {
	p.l.Info(fmt.Sprintf(format, args...))
}

func (p *leveledLogger) Warn(msg string) { p.l.Warn(msg) }

func (p *leveledLogger) Warnf(format string, args ...interface{}) {
	p.l.Warn(fmt.Sprintf(format, args...))
}

func (p *leveledLogger) Error(msg string) { p.l.Error(msg) }

func (p *leveledLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
}
