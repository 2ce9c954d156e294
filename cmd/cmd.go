// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/neivs/llmsandbox/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "sandbox",
		Short:         "Transformer forward-pass sandbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	serveCmd := newServeCmd()
	runCmd := newRunCmd()
	historyCmd := newHistoryCmd()
	showCmd := newShowCmd()
	deleteCmd := newDeleteCmd()
	versionCmd := newVersionCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["SANDBOX_HOST"]}

	for _, cmd := range []*cobra.Command{
		serveCmd,
		runCmd,
		historyCmd,
		showCmd,
		deleteCmd,
	} {
		switch cmd {
		case runCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["SANDBOX_HOST"],
				envVars["SANDBOX_WEIGHT_CACHE"],
				envVars["SANDBOX_HISTORY"],
			})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["SANDBOX_DEBUG"],
				envVars["SANDBOX_HOST"],
				envVars["SANDBOX_ORIGINS"],
				envVars["SANDBOX_KEEP_ALIVE"],
				envVars["SANDBOX_MAX_SESSIONS"],
				envVars["SANDBOX_WEIGHT_CACHE"],
				envVars["SANDBOX_HISTORY"],
				envVars["SANDBOX_NOHISTORY"],
			})
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		runCmd,
		historyCmd,
		showCmd,
		deleteCmd,
		versionCmd,
	)

	return rootCmd
}
