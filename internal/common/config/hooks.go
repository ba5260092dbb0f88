package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DecoderOption returns the viper decoder option used for all configuration.
// Viper only keeps the last DecodeHook option it is given, so the defaults viper would otherwise
// install (durations and comma separated slices) are composed together with any custom hooks.
func DecoderOption(hooks ...mapstructure.DecodeHookFunc) viper.DecoderConfigOption {
	all := []mapstructure.DecodeHookFunc{
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	}
	all = append(all, hooks...)
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(all...))
}
