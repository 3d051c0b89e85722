package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SOA"

// initConfiguration layers the optional config file and SOA_* environment variables under the
// command line flags. Explicit flags always win.
func initConfiguration(cmd *cobra.Command, configFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if len(configFile) > 0 {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	if err := bindFlags(cmd, v); err != nil {
		return nil, err
	}
	return v, nil
}

// bindFlags copies viper values into unset flags and records set flags in viper.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var firstErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key := f.Name
		if strings.Contains(f.Name, "-") {
			// env vars can't carry dashes
			envVar := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			_ = v.BindEnv(f.Name, envVar)
			key = strings.ReplaceAll(f.Name, "-", "_")
			if !v.IsSet(key) && v.IsSet(f.Name) {
				key = f.Name
			}
		}

		switch {
		case !f.Changed && v.IsSet(key):
			val := fmt.Sprintf("%v", v.Get(key))
			if f.Value.Type() == "stringSlice" {
				val = strings.Join(v.GetStringSlice(key), ",")
			}
			if err := cmd.Flags().Set(f.Name, val); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("flag --%s: %w", f.Name, err)
			}
		case f.Changed && !v.IsSet(key):
			v.Set(key, f.Value.String())
		}
	})
	return firstErr
}
