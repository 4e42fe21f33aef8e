package log

import (
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

var filterFunc zapfilter.FilterFunc

// SetFilter installs zapfilter rules for loggers created afterwards.
// Example (with log level debug): "info+:* debug+:physics*" keeps debug
// output for the physics namespace only.
// An empty rule removes the filter.
func SetFilter(rules string) error {
	if rules == "" {
		filterFunc = nil
		return nil
	}
	f, err := zapfilter.ParseRules(rules)
	if err != nil {
		return err
	}
	filterFunc = f
	return nil
}

func wrapFilter(core zapcore.Core) zapcore.Core {
	if filterFunc == nil {
		return core
	}
	return zapfilter.NewFilteringCore(core, filterFunc)
}
