package cliargs

import (
	"fmt"
	"strings"
)

// Usage renders a compact usage summary for a command's definitions.
func Usage(command string, arguments []ArgumentDefinition, options []OptionDefinition) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Usage: %s", command)
	if len(options) > 0 {
		b.WriteString(" [options]")
	}
	for _, a := range arguments {
		name := a.Name
		if a.Multiple {
			name += "..."
		}
		if a.Required {
			fmt.Fprintf(&b, " <%s>", name)
		} else {
			fmt.Fprintf(&b, " [%s]", name)
		}
	}
	b.WriteString("\n")

	if len(arguments) > 0 {
		b.WriteString("\nArguments:\n")
		for _, a := range arguments {
			fmt.Fprintf(&b, "  %-20s %s\n", a.Name, describeField(a.Description, a.Default, a.EnvVar, a.Choices))
		}
	}

	visible := make([]OptionDefinition, 0, len(options))
	for _, o := range options {
		if !o.Hidden {
			visible = append(visible, o)
		}
	}
	if len(visible) > 0 {
		b.WriteString("\nOptions:\n")
		for _, o := range visible {
			flag := "--" + o.Name
			if o.Short != "" {
				flag = "-" + o.Short + ", " + flag
			}
			if typeOrDefault(o.Type) != TypeBoolean {
				flag += " <" + string(typeOrDefault(o.Type)) + ">"
			}
			fmt.Fprintf(&b, "  %-28s %s\n", flag, describeField(o.Description, o.Default, o.EnvVar, o.Choices))
		}
	}

	return b.String()
}

func describeField(desc string, def any, envVar string, choices []string) string {
	parts := []string{desc}
	if len(choices) > 0 {
		parts = append(parts, fmt.Sprintf("(one of: %s)", strings.Join(choices, ", ")))
	}
	if def != nil {
		parts = append(parts, fmt.Sprintf("(default: %v)", def))
	}
	if envVar != "" {
		parts = append(parts, fmt.Sprintf("[$%s]", envVar))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
