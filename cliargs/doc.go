// Package cliargs turns raw command-line arguments into typed, validated values.
//
// Parsing happens in two stages. Tokenize is purely lexical: it splits the
// input into long options, short options (expanding -abc into -a -b -c) and
// positionals, honouring the "--" terminator. A Parser then binds those tokens
// to declared ArgumentDefinitions and OptionDefinitions:
//
//	parser := cliargs.NewParser(
//	    []cliargs.ArgumentDefinition{{Name: "environment", Required: true}},
//	    []cliargs.OptionDefinition{
//	        {Name: "dry-run", Type: cliargs.TypeBoolean},
//	        {Name: "replicas", Type: cliargs.TypeInteger, Min: cliargs.Bound(1), EnvVar: "REPLICAS"},
//	    },
//	    cliargs.Config{ExpectCommand: true, Strict: true},
//	)
//	result := parser.Parse([]string{"deploy", "prod", "--dry-run"})
//	if !result.Validation.Success {
//	    // result.Validation.Errors holds every problem found
//	}
//
// # Resolution order
//
// Each field takes the first value found in: the command line, its EnvVar,
// its SecretKey (via Config.Secrets), Config.Presets, and finally Default.
// A required field with no value produces exactly one "required" error.
//
// # Errors
//
// Parse never fails. Field problems are collected as ValidationError values
// with a path ("options.output"), a code, and the expected and received
// values; secret fields never echo what was received.
package cliargs
