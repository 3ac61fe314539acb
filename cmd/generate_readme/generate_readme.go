package main

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/keshon/sbvc/internal/command"
	_ "github.com/keshon/sbvc/internal/command/all"
)

const defaultTemplate = `# sbvc

Version control for Scratch 3 projects: unpack .sb3 bundles into a
canonical working tree, keep their history in git, and compare revisions
block by block.

## Configuration

Every setting is read from an SBVC_* environment variable, for example
SBVC_PROJECTS_ROOT, SBVC_HASH, SBVC_LOCK_TIMEOUT, SBVC_RELAY_ADDR and
SBVC_HTTP_ADDR.

## Commands

{{.CommandSections}}`

func main() {
	text := defaultTemplate
	if tplBytes, err := os.ReadFile("README.md.tmpl"); err == nil {
		text = string(tplBytes)
	} else if !os.IsNotExist(err) {
		fmt.Printf("Failed to read template: %v\n", err)
		os.Exit(1)
	}

	tpl, err := template.New("readme").Parse(text)
	if err != nil {
		fmt.Printf("Failed to parse template: %v\n", err)
		os.Exit(1)
	}

	var sections strings.Builder
	for _, cmd := range command.AllCommands() {
		fmt.Fprintf(&sections,
			"### %s\n```\nsbvc %s\n\n%s\n```\n\n",
			cmd.Name(),
			cmd.Usage(),
			cmd.Help(),
		)
	}

	data := map[string]string{
		"CommandSections": sections.String(),
	}

	outFile, err := os.Create("README.md")
	if err != nil {
		fmt.Printf("Failed to create README.md: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	if err := tpl.Execute(outFile, data); err != nil {
		fmt.Printf("Failed to render template: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("README.md generated successfully")
}
