// Command roc-plot renders each element of a ROC table as joint angle (degrees)
// against progress, one PNG per element.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/banshee-data/limbcontrol/internal/monitoring"
	"github.com/banshee-data/limbcontrol/internal/roc"
)

var (
	rocFile   = flag.String("roc", "", "Path to the ROC table XML file")
	outputDir = flag.String("out", "roc-plots", "Directory for the PNG files")
	steps     = flag.Int("steps", 100, "Progress samples per curve")
	only      = flag.String("element", "", "Render only the named element")
)

func main() {
	flag.Parse()
	if *rocFile == "" {
		log.Fatal("-roc is required")
	}

	table, err := roc.Load(*rocFile)
	if err != nil {
		log.Fatalf("Failed to load ROC table: %v", err)
	}
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	names := table.Names()
	if *only != "" {
		names = []string{*only}
	}
	for _, name := range names {
		e, ok := table.Lookup(name)
		if !ok {
			log.Fatalf("No ROC element named %q", name)
		}
		path, err := renderElement(e, *steps, *outputDir)
		if err != nil {
			log.Fatalf("Failed to render %q: %v", name, err)
		}
		monitoring.Logf("Wrote %s", path)
	}
}
