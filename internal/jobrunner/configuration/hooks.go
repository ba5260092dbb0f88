package configuration

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/G-Research/jobrunner/internal/jobrunner/jobdb"
)

// ModeDecodeHook normalises workload modes read from config so that " CPU" and "cpu" are the same mode.
func ModeDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		// check that src and target types are valid
		if f.Kind() != reflect.String || t != reflect.TypeOf(jobdb.Mode("")) {
			return data, nil
		}
		return jobdb.Mode(strings.ToLower(strings.TrimSpace(data.(string)))), nil
	}
}

// Hooks are the decode hooks used when loading a JobRunnerConfiguration.
func Hooks() []mapstructure.DecodeHookFunc {
	return []mapstructure.DecodeHookFunc{ModeDecodeHook()}
}
