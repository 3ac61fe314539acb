package diff

import (
	"fmt"
	"strings"

	"github.com/keshon/sbvc/internal/sb3"
)

// Render formats a report for terminals, one change per line.
func Render(r *Report) string {
	if r.Empty() {
		return "no changes\n"
	}
	var sb strings.Builder
	line := func(indent int, format string, args ...any) {
		sb.WriteString(strings.Repeat("  ", indent))
		fmt.Fprintf(&sb, format, args...)
		sb.WriteByte('\n')
	}

	for _, n := range r.Targets.Added {
		line(0, "target added: %s", n)
	}
	for _, n := range r.Targets.Removed {
		line(0, "target removed: %s", n)
	}
	for _, t := range r.Targets.Modified {
		line(0, "%s:", t.Name)
		for _, c := range t.Properties {
			line(1, "%s", valueLine("property", c))
		}
		for _, b := range t.Blocks.Added {
			line(1, "%s added (%s)", b.ID, b.Opcode)
		}
		for _, b := range t.Blocks.Removed {
			line(1, "%s removed (%s)", b.ID, b.Opcode)
		}
		for _, b := range t.Blocks.Modified {
			for _, d := range b.Deltas {
				key := d.Kind
				if d.Key != "" {
					key += " " + d.Key
				}
				line(1, "%s %s: %s → %s", b.ID, key, orNone(d.Old), orNone(d.New))
			}
		}
		for _, s := range t.Scripts {
			line(1, "script %s (%s) %s: +%d -%d ~%d", s.Root, s.Opcode, s.Status, s.Added, s.Removed, s.Modified)
		}
		for _, c := range t.Variables {
			line(1, "%s", valueLine("variable", c))
		}
		for _, c := range t.Lists {
			line(1, "%s", valueLine("list", c))
		}
		for _, c := range t.Broadcasts {
			line(1, "%s", valueLine("broadcast", c))
		}
		for _, c := range t.Costumes {
			line(1, "%s", valueLine("costume", c))
		}
		for _, c := range t.Sounds {
			line(1, "%s", valueLine("sound", c))
		}
	}
	for _, c := range r.Monitors {
		line(0, "%s", valueLine("monitor", c))
	}
	for _, e := range r.Extensions.Added {
		line(0, "extension added: %s", e)
	}
	for _, e := range r.Extensions.Removed {
		line(0, "extension removed: %s", e)
	}
	for _, a := range r.Assets.Added {
		line(0, "asset added: %s", assetLine(a))
	}
	for _, a := range r.Assets.Removed {
		line(0, "asset removed: %s", assetLine(a))
	}
	for _, t := range r.Text {
		line(0, "text %s:", t.Path)
		sb.WriteString(t.Patch)
		if !strings.HasSuffix(t.Patch, "\n") {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func orNone(s *string) string {
	if s == nil {
		return "(none)"
	}
	return *s
}

func valueLine(what string, c ValueChange) string {
	label := c.ID
	if c.Name != "" && c.Name != c.ID {
		label = fmt.Sprintf("%s (%s)", c.Name, c.ID)
	}
	if label == "" {
		label = what + "s"
	} else {
		label = what + " " + label
	}
	switch c.Change {
	case Added:
		if c.New == nil {
			return label + " added"
		}
		return fmt.Sprintf("%s added: %s", label, sb3.Text(c.New))
	case Removed:
		if c.Old == nil {
			return label + " removed"
		}
		return fmt.Sprintf("%s removed: %s", label, sb3.Text(c.Old))
	}
	return fmt.Sprintf("%s %s: %s → %s", label, c.Change, sb3.Text(c.Old), sb3.Text(c.New))
}

func assetLine(a AssetChange) string {
	parts := []string{a.ID, a.Type}
	parts = append(parts, a.Files...)
	parts = append(parts, a.Uses...)
	return strings.Join(parts, " ")
}
