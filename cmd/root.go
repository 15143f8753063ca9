// Package cmd provides the tsccm CLI commands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/limberduck/tsccm/internal/config"
	"github.com/limberduck/tsccm/internal/credential"
	"github.com/limberduck/tsccm/internal/exit"
	"github.com/limberduck/tsccm/internal/logging"
)

var (
	configPath string
	addresses  []string
	port       int
	username   string
	password   string
	insecure   bool
	outputFmt  string
	verbose    int
	sortBy     []string
	groupBy    []string
	noColor    bool

	cfg *config.Config
	rt  *config.Runtime
	log = logging.Discard()

	// Tests may override these.
	newStore    = func() credential.Store { return credential.KeyringStore{} }
	newPrompter = func(cmd *cobra.Command) credential.Prompter {
		return credential.NewTerminalPrompter(os.Stdin, cmd.ErrOrStderr())
	}
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:           "tsccm",
	Short:         "Tenable.sc CLI Manager",
	Long:          "Lists users, groups, scans and other resources of one or more Tenable.sc servers.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return exit.Usage(fmt.Errorf("load config: %w", err))
		}
		applyFlags(cmd, cfg)
		rt, err = cfg.Runtime()
		if err != nil {
			return exit.Usage(err)
		}
		log, err = logging.New(cmd.ErrOrStderr(), verbose, cfg.Log)
		if err != nil {
			return exit.Usage(err)
		}
		log.Infof("tsccm v.%s", version)
		return nil
	},
}

// applyFlags overrides file and env values with flags given on the command line.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("address") {
		var list []string
		for _, a := range addresses {
			list = append(list, config.SplitList(a)...)
		}
		c.Addresses = list
	}
	if f.Changed("port") {
		c.Port = port
	}
	if f.Changed("username") {
		c.Username = username
	}
	if f.Changed("insecure") {
		c.Insecure = insecure
	}
	if f.Changed("format") {
		c.Format = outputFmt
	}
}

// Execute runs the root command.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return exit.CodeOf(err)
	}
	return exit.CodeSuccess
}

// colorEnabled reports whether w is a terminal that should receive styled output.
func colorEnabled(w io.Writer) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newResolver(cmd *cobra.Command) *credential.Resolver {
	r := &credential.Resolver{
		Prompter: newPrompter(cmd),
		Out:      cmd.ErrOrStderr(),
		GOOS:     rt.GOOS,
		Log:      log,
	}
	if rt.SecretStore {
		r.Store = newStore()
	}
	return r
}

func init() {
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return exit.Usage(err)
	})
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ~/.config/tsccm/config.yaml)")
	pf.StringArrayVarP(&addresses, "address", "a", nil, "Tenable.sc host, repeatable (default 127.0.0.1)")
	pf.IntVar(&port, "port", config.DefaultPort, "Tenable.sc port")
	pf.StringVarP(&username, "username", "u", "", "login name (default: current OS user)")
	pf.StringVarP(&password, "password", "p", "", "login password (default: OS credential store or prompt)")
	pf.BoolVarP(&insecure, "insecure", "k", false, "skip TLS certificate verification")
	pf.StringVarP(&outputFmt, "format", "f", config.DefaultFormat, "output format: table | json | csv | raw")
	pf.CountVarP(&verbose, "verbose", "v", "verbose output, repeat for more")
	pf.StringSliceVar(&sortBy, "sort-by", nil, "sort rows by these columns")
	pf.StringSliceVar(&groupBy, "group-by", nil, "group rows by these columns and count them")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
}
