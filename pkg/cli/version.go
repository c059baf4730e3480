package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func versionCmd(st *state) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print version, commit, and build information.`,
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Fprintln(st.out, version)
				return
			}

			fmt.Fprintln(st.out)
			fmt.Fprintf(st.out, "  %s\n", st.app.Name)
			fmt.Fprintf(st.out, "  Version:    %s\n", version)
			fmt.Fprintf(st.out, "  Commit:     %s\n", commit)
			fmt.Fprintf(st.out, "  Built:      %s\n", date)
			fmt.Fprintf(st.out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(st.out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintln(st.out)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
