// Staticlint is the multichecker used on this codebase. It bundles a set of
// always-on analyzers (toolchain passes, ineffassign, nilerr, the local
// noosexit check) with the staticcheck classes enabled in config.json, which
// is read from the directory next to the binary.
//
// Usage: build the binary, place config.json beside it and run it over the
// packages to check, e.g. `staticlint ./...`.
package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/gostaticanalysis/nilerr"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"
	"honnef.co/go/tools/staticcheck"

	"github.com/undefined7887/shortlink/cmd/staticlint/noosexit"
)

// Config names the JSON file listing the enabled staticcheck analyzers.
const Config = `config.json`

// ConfigData mirrors the config.json layout. Staticcheck holds analyzer
// names such as "SA1000".
type ConfigData struct {
	Staticcheck []string
}

func main() {
	appfile, err := os.Executable()
	if err != nil {
		panic(err)
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(appfile), Config))
	if err != nil {
		panic(err)
	}
	var cfg ConfigData
	if err = json.Unmarshal(data, &cfg); err != nil {
		panic(err)
	}

	checks := []*analysis.Analyzer{
		copylock.Analyzer,
		loopclosure.Analyzer,
		lostcancel.Analyzer,
		printf.Analyzer,
		structtag.Analyzer,
		unmarshal.Analyzer,
		unreachable.Analyzer,

		ineffassign.Analyzer,
		nilerr.Analyzer,

		noosexit.Analyzer,
	}

	enabled := make(map[string]bool)
	for _, name := range cfg.Staticcheck {
		enabled[name] = true
	}

	for _, check := range staticcheck.Analyzers {
		if enabled[check.Analyzer.Name] {
			checks = append(checks, check.Analyzer)
		}
	}

	multichecker.Main(checks...)
}
