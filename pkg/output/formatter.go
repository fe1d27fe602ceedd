package output

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/wormholehq/wormhole/internal/server"
)

func PrintSuccess(msg string) {
	color.Green(msg)
}

func PrintError(msg string) error {
	color.Red("❌ " + msg)
	return fmt.Errorf("%s", msg)
}

func PrintInfo(msg string) {
	color.Cyan(msg)
}

// PrintStatus renders the /status response as a table.
func PrintStatus(st *server.StatusResponse) {
	PrintInfo(fmt.Sprintf("Server %s, %d active tunnel(s)", st.Status, st.ActiveTunnels))
	if len(st.Tunnels) == 0 {
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Subdomain", "Tunnel ID", "Created", "Requests"})
	for _, t := range st.Tunnels {
		table.Append([]string{
			t.Subdomain,
			t.TunnelID,
			t.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(t.RequestCount, 10),
		})
	}
	table.Render()
}
