package main

import (
	"strings"

	"github.com/spf13/pflag"
)

// normalizeFlagName accepts underscores in long flags, so --dry_run and
// --env_file match their dashed forms.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}
