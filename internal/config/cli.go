package config

import "github.com/spf13/pflag"

// CLIOverrides holds the flag values parsed by the root cobra command;
// the zero value of each field means "flag not set, don't override".
type CLIOverrides struct {
	BindTo      string
	LogFile     string
	PrintConfig bool
}

// RegisterFlags attaches the --bind-to/--log-file/--print-config flags
// spec.md's CLI section names, alongside --config which the caller reads
// separately to locate the TOML file.
func RegisterFlags(flags *pflag.FlagSet, out *CLIOverrides) {
	flags.StringVar(&out.BindTo, "bind-to", "", "override net.bind_to")
	flags.StringVar(&out.LogFile, "log-file", "", "override logging.file")
	flags.BoolVar(&out.PrintConfig, "print-config", false, "print the resolved configuration and exit")
}

func (o CLIOverrides) apply(cfg *Config) {
	if o.BindTo != "" {
		cfg.Net.BindTo = o.BindTo
	}
	if o.LogFile != "" {
		cfg.Logging.File = o.LogFile
	}
}
