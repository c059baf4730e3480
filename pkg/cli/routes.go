package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pagerender/pkg/router"
)

// routeInfo is a route as printed by the routes command.
type routeInfo struct {
	PageID    string `json:"pageId"`
	Type      string `json:"type"`
	Route     string `json:"route,omitempty"`
	DefinedAt string `json:"definedAt,omitempty"`
}

func routesCmd(st *state) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the page routes",
		Long: `List the route of every page, in the order they are matched
against URLs of equal precedence.

Examples:
  pagerender routes
  pagerender routes --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := st.loadConfig()
			if err != nil {
				return err
			}
			engine, err := st.newEngine(cfg, false)
			if err != nil {
				return err
			}
			routes, err := engine.Routes(cmd.Context())
			if err != nil {
				return err
			}

			infos := make([]routeInfo, 0, len(routes.Routes))
			for _, r := range routes.Routes {
				infos = append(infos, newRouteInfo(r))
			}
			if asJSON {
				enc := json.NewEncoder(st.out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			tw := tabwriter.NewWriter(st.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PAGE\tTYPE\tROUTE\tDEFINED AT")
			for _, info := range infos {
				route := info.Route
				if route == "" {
					route = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.PageID, info.Type, route, info.DefinedAt)
			}
			if routes.OnBeforeRouteFile != "" {
				fmt.Fprintf(tw, "\nonBeforeRoute()\t\t\t%s\n", routes.OnBeforeRouteFile)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the routes as JSON")

	return cmd
}

func newRouteInfo(r router.PageRoute) routeInfo {
	return routeInfo{
		PageID:    r.PageID,
		Type:      r.Type.String(),
		Route:     r.RouteString,
		DefinedAt: r.DefinedAt,
	}
}
