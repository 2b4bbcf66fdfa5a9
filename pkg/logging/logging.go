package logging

// Logger is the minimal logging contract used across tradexd. Concrete
// backends (zap in production, no-op in tests) are adapted through LogFuncs.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type LogFunc func(format string, args ...interface{})

type LogFuncs struct {
	Debugf LogFunc
	Infof  LogFunc
	Warnf  LogFunc
	Errorf LogFunc
}

type logger struct {
	prefix string
	funcs  LogFuncs
}

// NewLogger returns a Logger that prepends prefix to every message and
// forwards to the given functions. Nil functions silently drop the message.
func NewLogger(prefix string, funcs LogFuncs) Logger {
	return &logger{
		prefix: prefix,
		funcs:  funcs,
	}
}

func (l *logger) logf(fn LogFunc, msg string, args ...interface{}) {
	if fn == nil {
		return
	}
	if l.prefix != "" {
		msg = l.prefix + msg
	}
	fn(msg, args...)
}

func (l *logger) Debugf(msg string, args ...interface{}) {
	l.logf(l.funcs.Debugf, msg, args...)
}

func (l *logger) Infof(msg string, args ...interface{}) {
	l.logf(l.funcs.Infof, msg, args...)
}

func (l *logger) Warnf(msg string, args ...interface{}) {
	l.logf(l.funcs.Warnf, msg, args...)
}

func (l *logger) Errorf(msg string, args ...interface{}) {
	l.logf(l.funcs.Errorf, msg, args...)
}

// NewNopLogger returns a Logger that discards everything. Used in tests.
func NewNopLogger() Logger {
	return &logger{}
}
