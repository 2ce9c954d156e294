// MODUL: tsgen
// ZWECK: Erzeugt TypeScript-Interfaces der API-Nachrichten fuer das Web-Frontend
// INPUT: optional Zielpfad als erstes Argument
// OUTPUT: TypeScript-Datei (Standard: ui/src/api.gen.ts)
// NEBENEFFEKTE: Dateisystem-Schreibzugriff
// ABHAENGIGKEITEN: api Package, typescriptify
// HINWEISE: Aufruf: go run ./tools/tsgen [ZIEL]

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tkrajina/typescriptify-golang-structs/typescriptify"

	"github.com/neivs/llmsandbox/api"
)

const defaultTarget = "ui/src/api.gen.ts"

// messages sind alle Typen, die ueber die HTTP-Schnittstelle gehen
var messages = []any{
	api.StatusError{},
	api.Hyperparameters{},
	api.ForwardRequest{},
	api.Artifacts{},
	api.TokenInfo{},
	api.Candidate{},
	api.AttentionStats{},
	api.FLOPs{},
	api.ForwardResponse{},
	api.ViewRequest{},
	api.ViewResponse{},
	api.DistributionRequest{},
	api.DistributionResponse{},
	api.ProjectRequest{},
	api.ProjectResponse{},
	api.SessionRequest{},
	api.SessionResponse{},
	api.VersionResponse{},
	api.ExportRequest{},
	api.ExportDocument{},
	api.RunSummary{},
	api.ListRunsResponse{},
}

func main() {
	target := defaultTarget
	if len(os.Args) > 1 {
		target = os.Args[1]
	}

	if err := generate(target); err != nil {
		fmt.Fprintf(os.Stderr, "tsgen: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", target)
}

// generate schreibt die Interfaces nach target
func generate(target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	converter := typescriptify.New()
	converter.CreateInterface = true
	converter.BackupDir = ""

	// Zeitangaben und Dauern kommen als Strings im JSON an
	converter.ManageType(time.Time{}, typescriptify.TypeOptions{TSType: "string"})
	converter.ManageType(api.Duration{}, typescriptify.TypeOptions{TSType: "string | number"})

	for _, m := range messages {
		converter.Add(m)
	}

	return converter.ConvertToFile(target)
}
