// Command ghcat builds or loads the repository-activity catalogue and
// answers a batch of queries against it (§6 CLI surface: no arguments
// launches the interactive viewer, which lives outside this program's
// scope; one argument names a file of queries to run, one per line).
package main

import (
	"bufio"
	"fmt"
	"os"

	"ghcatalog/internal/catalog"
	"ghcatalog/internal/config"
)

func main() {
	args := os.Args[1:]

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "ghcat: no query-batch file given; the interactive viewer is a separate program")
		os.Exit(1)
	}
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "ghcat: usage: ghcat <query-batch-file>")
		os.Exit(1)
	}

	if err := run(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "ghcat: %v\n", err)
		os.Exit(1)
	}
}

func run(batchPath string) error {
	layout := config.Resolve(".")
	cat, err := catalog.Open(layout, catalog.DefaultTunings())
	if err != nil {
		return err
	}
	defer cat.Close()

	f, err := os.Open(batchPath)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}

		out, ok := catalog.RunQuery(cat, line)
		if !ok {
			catalog.Warn("skipping invalid query on line %d: %q", lineNo, line)
			continue
		}
		outPath := layout.OutputPath(lineNo)
		if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
			return err
		}
		catalog.Status("line %d: wrote %s", lineNo, outPath)
	}
	return sc.Err()
}
