// Package bundle provides convenience functions that combine contrib formats
// with the built-in config and secrets suites into ready-to-use option sets
// for clikit.RootCommand.
//
// Usage:
//
//	root := clikit.RootCommand("deployctl", append(bundle.RootOptions("deployctl"),
//	    clikit.WithCommand(deploy),
//	)...)
package bundle

import (
	"strings"

	"github.com/drewfead/clikit"
	"github.com/drewfead/clikit/clisecrets"
	"github.com/drewfead/clikit/contrib/formats"
)

// Formats returns a SharedOption that registers the contrib output formats.
// Works at both command and root level.
func Formats() clikit.SharedOption {
	return clikit.WithOutputFormats(formats.Table())
}

// EnvPrefix derives the settings environment prefix from an application name:
// "deploy-ctl" becomes "DEPLOY_CTL".
func EnvPrefix(appName string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(appName))
}

// RootOptions returns the recommended root configuration: contrib formats,
// an environment prefix derived from appName, and the config and secrets
// command suites.
func RootOptions(appName string, secrets ...clisecrets.Option) []clikit.RootOption {
	return []clikit.RootOption{
		Formats(),
		clikit.WithEnvPrefix(EnvPrefix(appName)),
		clikit.WithConfigCommands(),
		clikit.WithSecretsCommands(secrets...),
	}
}
