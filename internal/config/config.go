// Package config resolves the on-disk layout the core reads and writes:
// the entrada/ (inputs) and saida/ (outputs, persisted catalogue)
// directories of spec §6, overridable by environment variable the same
// way the teacher's cache.go resolves its archive base path from
// EDIRECT_PUBMED_MASTER.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Layout names the directories the core and the CLI driver agree on.
type Layout struct {
	// Root is the working directory the layout is resolved relative to.
	Root string

	// Entrada holds the three delimited text inputs (accounts,
	// repositories, commits).
	Entrada string

	// Saida holds query output files and the persisted catalogue
	// (compressed record files, index files, header).
	Saida string
}

const (
	envEntrada = "GHCAT_ENTRADA"
	envSaida   = "GHCAT_SAIDA"

	defaultEntradaDir = "entrada"
	defaultSaidaDir   = "saida"
)

// Resolve builds a Layout rooted at root, honoring GHCAT_ENTRADA and
// GHCAT_SAIDA overrides when set.
func Resolve(root string) Layout {
	entrada := os.Getenv(envEntrada)
	if entrada == "" {
		entrada = filepath.Join(root, defaultEntradaDir)
	}

	saida := os.Getenv(envSaida)
	if saida == "" {
		saida = filepath.Join(root, defaultSaidaDir)
	}

	return Layout{Root: root, Entrada: entrada, Saida: saida}
}

// EnsureSaida creates the saida/ directory if it does not already exist.
func (l Layout) EnsureSaida() error {
	return os.MkdirAll(l.Saida, 0o755)
}

// AccountsPath, RepositoriesPath, CommitsPath are the three delimited
// text inputs named in spec §6.
func (l Layout) AccountsPath() string     { return filepath.Join(l.Entrada, "users.csv") }
func (l Layout) RepositoriesPath() string { return filepath.Join(l.Entrada, "repositories.csv") }
func (l Layout) CommitsPath() string      { return filepath.Join(l.Entrada, "commits.csv") }

// OutputPath names the Nth (1-indexed) batch query output file.
func (l Layout) OutputPath(n int) string {
	return filepath.Join(l.Saida, outputName(n))
}

func outputName(n int) string {
	return "command" + strconv.Itoa(n) + "_output.txt"
}
