// Package docs renders reference documentation for a clikit application.
package docs

import (
	"fmt"
	"strings"

	"github.com/drewfead/clikit"
	"github.com/drewfead/clikit/cliargs"
	"github.com/urfave/cli/v3"
)

type markdownConfig struct {
	title string
}

// MarkdownOption configures markdown generation.
type MarkdownOption func(*markdownConfig)

// WithTitle overrides the default title (command name) in the generated markdown.
func WithTitle(title string) MarkdownOption {
	return func(c *markdownConfig) {
		c.title = title
	}
}

// Markdown generates reference documentation in markdown format from a fully-constructed
// *cli.Command tree, typically the result of clikit.RootCommand. Commands registered
// with clikit are documented from their argument and option definitions; plain urfave
// commands (config, secrets) from their flags.
func Markdown(cmd *cli.Command, opts ...MarkdownOption) string {
	cfg := &markdownConfig{
		title: cmd.Name,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", cfg.title)

	if cmd.Usage != "" {
		fmt.Fprintf(&b, "%s\n\n", cmd.Usage)
	}
	if cmd.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", cmd.Description)
	}

	if flags := visibleFlags(cmd.Flags); len(flags) > 0 {
		b.WriteString("## Global Flags\n\n")
		b.WriteString("Global flags must precede the command name.\n\n")
		writeFlagTable(&b, flags)
		b.WriteString("\n")
	}

	if cmds := visibleCommands(cmd.Commands); len(cmds) > 0 {
		b.WriteString("## Commands\n\n")
		for _, sub := range cmds {
			writeCommand(&b, cmd.Name, sub, 3)
		}
	}

	return b.String()
}

func writeCommand(b *strings.Builder, parent string, cmd *cli.Command, depth int) {
	if depth > 6 {
		depth = 6
	}
	path := parent + " " + cmd.Name

	fmt.Fprintf(b, "%s %s\n\n", strings.Repeat("#", depth), cmd.Name)

	if len(cmd.Aliases) > 0 {
		fmt.Fprintf(b, "Aliases: `%s`\n\n", strings.Join(cmd.Aliases, "`, `"))
	}

	if command, ok := clikit.CommandOf(cmd); ok {
		writeDefinedCommand(b, path, command)
		return
	}

	if cmd.UsageText != "" {
		fmt.Fprintf(b, "```\n%s\n```\n\n", cmd.UsageText)
	}
	if cmd.Usage != "" {
		fmt.Fprintf(b, "%s\n\n", cmd.Usage)
	}
	if cmd.Description != "" {
		fmt.Fprintf(b, "%s\n\n", cmd.Description)
	}

	if flags := visibleFlags(cmd.Flags); len(flags) > 0 {
		b.WriteString("**Flags:**\n\n")
		writeFlagTable(b, flags)
		b.WriteString("\n")
	}

	for _, sub := range visibleCommands(cmd.Commands) {
		writeCommand(b, path, sub, depth+1)
	}
}

func writeDefinedCommand(b *strings.Builder, path string, cmd clikit.Command) {
	var arguments []cliargs.ArgumentDefinition
	var options []cliargs.OptionDefinition
	if d, ok := cmd.(clikit.Definer); ok {
		arguments, options = d.Arguments(), d.Options()
	}

	usage := cliargs.Usage(path, arguments, options)
	synopsis, _, _ := strings.Cut(usage, "\n")
	fmt.Fprintf(b, "```\n%s\n```\n\n", strings.TrimPrefix(synopsis, "Usage: "))

	if d, ok := cmd.(clikit.Describer); ok && d.Description() != "" {
		fmt.Fprintf(b, "%s\n\n", d.Description())
	}

	if len(arguments) > 0 {
		b.WriteString("**Arguments:**\n\n")
		b.WriteString("| Argument | Type | Description | Default | Required |\n")
		b.WriteString("| --- | --- | --- | --- | --- |\n")
		for _, a := range arguments {
			name := a.Name
			if a.Multiple {
				name += "..."
			}
			fmt.Fprintf(b, "| `%s` | %s | %s | %s | %s |\n",
				name, typeOf(a.Type), describe(a.Description, a.Choices, a.EnvVar), defaultOf(a.Default), yes(a.Required))
		}
		b.WriteString("\n")
	}

	var visible []cliargs.OptionDefinition
	for _, o := range options {
		if !o.Hidden {
			visible = append(visible, o)
		}
	}
	if len(visible) > 0 {
		b.WriteString("**Options:**\n\n")
		b.WriteString("| Option | Aliases | Type | Description | Default | Required |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- |\n")
		for _, o := range visible {
			var aliases []string
			if o.Short != "" {
				aliases = append(aliases, "-"+o.Short)
			}
			for _, a := range o.Aliases {
				aliases = append(aliases, "--"+a)
			}
			fmt.Fprintf(b, "| `--%s` | %s | %s | %s | %s | %s |\n",
				o.Name, strings.Join(aliases, ", "), typeOf(o.Type), describe(o.Description, o.Choices, o.EnvVar),
				defaultOf(o.Default), yes(o.Required))
		}
		b.WriteString("\n")
	}
}

func typeOf(t cliargs.FieldType) string {
	if t == "" {
		return string(cliargs.TypeString)
	}
	return string(t)
}

func describe(desc string, choices []string, envVar string) string {
	parts := []string{escPipe(desc)}
	if len(choices) > 0 {
		parts = append(parts, fmt.Sprintf("One of: `%s`.", strings.Join(choices, "`, `")))
	}
	if envVar != "" {
		parts = append(parts, fmt.Sprintf("Env: `$%s`.", envVar))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func defaultOf(v any) string {
	if v == nil {
		return ""
	}
	return escPipe(fmt.Sprint(v))
}

func yes(b bool) string {
	if b {
		return "Yes"
	}
	return ""
}

func writeFlagTable(b *strings.Builder, flags []cli.Flag) {
	b.WriteString("| Flag | Aliases | Usage | Default | Required |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")

	for _, f := range flags {
		names := f.Names()
		if len(names) == 0 {
			continue
		}

		var aliases []string
		for _, a := range names[1:] {
			if len(a) == 1 {
				aliases = append(aliases, "-"+a)
			} else {
				aliases = append(aliases, "--"+a)
			}
		}

		var usage, defaultText string
		if dgf, ok := f.(cli.DocGenerationFlag); ok {
			usage = escPipe(dgf.GetUsage())
			defaultText = escPipe(dgf.GetDefaultText())
		}

		required := false
		if rf, ok := f.(cli.RequiredFlag); ok {
			required = rf.IsRequired()
		}

		fmt.Fprintf(b, "| `--%s` | %s | %s | %s | %s |\n",
			names[0], strings.Join(aliases, ", "), usage, defaultText, yes(required))
	}
}

func visibleFlags(flags []cli.Flag) []cli.Flag {
	var result []cli.Flag
	for _, f := range flags {
		if vf, ok := f.(cli.VisibleFlag); ok && !vf.IsVisible() {
			continue
		}
		result = append(result, f)
	}
	return result
}

func visibleCommands(cmds []*cli.Command) []*cli.Command {
	var result []*cli.Command
	for _, c := range cmds {
		if c.Hidden {
			continue
		}
		result = append(result, c)
	}
	return result
}

// escPipe escapes pipe characters for markdown table safety.
func escPipe(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
