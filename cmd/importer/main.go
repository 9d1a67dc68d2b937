// Command importer loads issuer and security spreadsheets from the command
// line into the same store the server uses.
//
//	importer columns -type securities holdings.xlsx
//	importer issuers -user alice -map issuer_name="Issuer Name" issuers.csv
//	importer securities -user alice -dry-run securities.csv
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/issuerdesk/internal/logging"
	"github.com/JonMunkholm/issuerdesk/internal/schema"
)

var (
	logLevel  = flag.String("log-level", "warn", "log level: debug, info, warn, error")
	logFormat = flag.String("log-format", "text", "log format: text or json")
)

func main() {
	// A missing .env is fine; store settings then come from the environment.
	_ = godotenv.Load()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&columnsCmd{}, "")
	commander.Register(&importCmd{recordType: schema.Issuer}, "import")
	commander.Register(&importCmd{recordType: schema.Security}, "import")

	flag.Parse()
	slog.SetDefault(logging.New(os.Stderr, *logLevel, *logFormat))
	os.Exit(int(commander.Execute(context.Background())))
}
