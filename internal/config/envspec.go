package config

import "reflect"

// EnvVar documents one environment variable the config struct binds,
// derived from its struct tags so envspec.go never drifts from Config
// itself.
type EnvVar struct {
	Name        string // short name under the SWAPD_ prefix (e.g., "DATADIR")
	FullName    string // e.g., "SWAPD_DATADIR"
	Type        string // Go type of the backing field
	Default     string // default value as a string ("" if none)
	Description string // one-liner for docs
}

// EnvSpecs walks the Config struct's mapstructure/envDefault/envInfo tags
// and returns one EnvVar per bound field, in declaration order.
func EnvSpecs() []EnvVar {
	const prefix = "SWAPD_"

	t := reflect.TypeOf(Config{})
	specs := make([]EnvVar, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("mapstructure")
		if name == "" {
			continue
		}
		specs = append(specs, EnvVar{
			Name:        name,
			FullName:    prefix + name,
			Type:        f.Type.String(),
			Default:     f.Tag.Get("envDefault"),
			Description: f.Tag.Get("envInfo"),
		})
	}
	return specs
}

//go:generate go run ../../tools/gen-env-doc/main.go
