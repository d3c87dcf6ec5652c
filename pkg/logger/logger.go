package logger

import (
	"go.uber.org/zap"
)

// NewLogger builds the production logger shared by all binaries.
func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}
