package muzzle

import (
	"fmt"
	"io"
	"strings"
)

// PrintReferences writes a human readable dump of refs to w.
func PrintReferences(w io.Writer, refs []*Reference) error {
	for _, ref := range refs {
		if _, err := io.WriteString(w, FormatReference(ref)); err != nil {
			return err
		}
	}
	return nil
}

// FormatReference renders one reference the way PrintReferences does.
func FormatReference(ref *Reference) string {
	var sb strings.Builder
	sb.WriteString(flagPrefix(ref.Flags))
	sb.WriteString(ref.ClassName)
	sb.WriteString("\n")
	if ref.SuperName != "" {
		fmt.Fprintf(&sb, "  extends %s\n", ref.SuperName)
	}
	for _, iface := range ref.Interfaces {
		fmt.Fprintf(&sb, "  implements %s\n", iface)
	}
	if len(ref.Sources) > 0 {
		sb.WriteString("  Sources:\n")
		for _, src := range ref.Sources {
			fmt.Fprintf(&sb, "    at: %s\n", src)
		}
	}
	for _, f := range ref.Fields {
		fmt.Fprintf(&sb, "  Field: %s%s %s", flagPrefix(f.Flags), f.Name, f.Type)
		if f.Declared {
			sb.WriteString(" (declared)")
		}
		sb.WriteString("\n")
	}
	for _, m := range ref.Methods {
		fmt.Fprintf(&sb, "  Method: %s%s%s\n", flagPrefix(m.Flags), m.Name, m.Descriptor)
	}
	return sb.String()
}

func flagPrefix(flags []Flag) string {
	var sb strings.Builder
	for _, f := range flags {
		sb.WriteString(f.String())
		sb.WriteString(" ")
	}
	return sb.String()
}
