package prune

import (
	"github.com/google/wire"
)

var (
	// ServiceInjector is the injector for the retention module
	ServiceInjector = wire.NewSet(NewService)
)
