// Package cli implements bingoctl, a terminal client for the live bingo
// server.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "BINGO"

// Options holds the flags shared by every command.
type Options struct {
	Server string
	Token  string
}

func (o *Options) client() *Client {
	return NewClient(o.Server, o.Token)
}

// NewRootCmd builds the bingoctl command tree. Persistent flags can also be
// set through BINGO_* environment variables.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "bingoctl",
		Short: "Create, join and watch live bingo sessions from the terminal.",
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&opts.Server, "server", "s", "http://localhost:8080", "bingo server base url (env: BINGO_SERVER)")
	fs.StringVarP(&opts.Token, "token", "t", "", "identity bearer token from `bingoctl identity` (env: BINGO_TOKEN)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(
		newLayoutCmd(),
		newCreateCmd(opts),
		newRecentCmd(opts),
		newJoinCmd(opts),
		newToggleCmd(opts),
		newRenameCmd(opts),
		newIdentityCmd(opts),
		newWatchCmd(opts),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
