package main

import (
	"os"

	"github.com/WilhelmDev/faduweb/internal/cli"
)

// Переменные для версии и даты сборки, устанавливаются через ldflags.
//
//nolint:gochecknoglobals // Устанавливается через ldflags при сборке
var (
	version    = "dev"
	buildDate  = "unknown"
	commitHash = "N/A"
)

func main() {
	os.Exit(cli.Execute(cli.BuildInfo{
		Version:    version,
		BuildDate:  buildDate,
		CommitHash: commitHash,
	}))
}
