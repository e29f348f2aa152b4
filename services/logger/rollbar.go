package logsvc

import (
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"

	"github.com/trezcool/shule/core"
)

// RollbarLogger reports to rollbar and mirrors every entry to a local zap logger.
type RollbarLogger struct {
	zl     *zap.Logger
	remote bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(zl *zap.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{zl: zl, remote: true}
}

// NewNopLogger returns a logger that drops everything. Meant for tests.
func NewNopLogger() *RollbarLogger {
	return &RollbarLogger{zl: zap.NewNop()}
}

// NewZapLogger builds the local sink: human readable in debug, JSON otherwise.
func NewZapLogger(name string, debug bool) *zap.Logger {
	var (
		zl  *zap.Logger
		err error
	)
	if debug {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		zl = zap.NewExample()
	}
	return zl.Named(name)
}

func (l *RollbarLogger) Enable(enabled bool) {
	l.remote = enabled
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, core.Person
func (l *RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var personSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		// set logged in User
		if p, ok := arg.(core.Person); ok {
			if !personSet { // only set one Person
				rollbar.SetPerson(p.ID, p.Username, p.Email)
				personSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	if !personSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l *RollbarLogger) fields(args []interface{}) []zap.Field {
	flds := make([]zap.Field, 0, len(args))
	var nErrs int
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			if nErrs == 0 {
				flds = append(flds, zap.Error(a))
			} else {
				flds = append(flds, zap.NamedError("cause", a))
			}
			nErrs++
		case map[string]interface{}:
			for k, v := range a {
				flds = append(flds, zap.Any(k, v))
			}
		case core.Person:
			flds = append(flds, zap.String("person_id", a.ID))
		default:
			flds = append(flds, zap.Any("arg", a))
		}
	}
	return flds
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	if l.remote {
		rollbar.Debug(l.prepare(msg, args)...)
	}
	l.zl.Debug(msg, l.fields(args)...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	if l.remote {
		rollbar.Info(l.prepare(msg, args)...)
	}
	l.zl.Info(msg, l.fields(args)...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	if l.remote {
		rollbar.Warning(l.prepare(msg, args)...)
	}
	l.zl.Warn(msg, l.fields(args)...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	if l.remote {
		rollbar.Error(l.prepare(msg, args)...)
	}
	l.zl.Error(msg, l.fields(args)...)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	if l.remote {
		rollbar.Critical(l.prepare(msg, args)...)
		rollbar.Wait()
	}
	l.zl.Fatal(msg, l.fields(args)...)
}

// Sync flushes the local sink.
func (l *RollbarLogger) Sync() error {
	return l.zl.Sync()
}
