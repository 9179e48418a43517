package log

import (
	"go.uber.org/zap"
)

var L *zap.Logger = zap.NewNop()

// Init builds the process-wide logger. prod selects the JSON production
// encoder; otherwise the development console encoder is used.
func Init(prod bool) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if prod {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	L = l
	return l, nil
}

func Sync() {
	_ = L.Sync()
}
