// Package render prints query results as indented JSON or as text tables.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/woozymasta/srcquery/pkg/a2s"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatTable = "table"
)

// Info writes an A2S_INFO answer.
func Info(w io.Writer, format string, info *a2s.Info) error {
	if format != FormatTable {
		return writeJSON(w, info)
	}

	tw := newTable(w, "Field", "Value")
	tw.Append([]string{"Name", info.Name})
	tw.Append([]string{"Map", info.Map})
	tw.Append([]string{"Folder", info.Folder})
	tw.Append([]string{"Game", info.Game})
	tw.Append([]string{"App ID", strconv.Itoa(int(info.AppID))})
	tw.Append([]string{"Players", fmt.Sprintf("%d/%d (%d bots)", info.Players, info.MaxPlayers, info.Bots)})
	tw.Append([]string{"Server type", info.ServerType.String()})
	tw.Append([]string{"Environment", info.Environment.String()})
	tw.Append([]string{"Password", yesNo(info.Password)})
	tw.Append([]string{"VAC", yesNo(info.VAC)})
	tw.Append([]string{"Version", info.Version})
	tw.Append([]string{"Protocol", strconv.Itoa(int(info.Protocol))})

	if info.Port != nil {
		tw.Append([]string{"Game port", strconv.Itoa(int(*info.Port))})
	}
	if info.SteamID != nil {
		tw.Append([]string{"Steam ID", strconv.FormatUint(*info.SteamID, 10)})
	}
	if info.SourceTV != nil {
		tw.Append([]string{"SourceTV", fmt.Sprintf("%s (port %d)", info.SourceTV.Name, info.SourceTV.Port)})
	}
	if info.Keywords != nil {
		tw.Append([]string{"Keywords", *info.Keywords})
	}
	if info.GameID != nil {
		tw.Append([]string{"Game ID", strconv.FormatUint(*info.GameID, 10)})
	}
	if ship := info.TheShip; ship != nil {
		tw.Append([]string{"Mode", ship.Mode.String()})
		tw.Append([]string{"Witnesses", strconv.Itoa(int(ship.Witnesses))})
		tw.Append([]string{"Arrest delay", (time.Duration(ship.Duration) * time.Second).String()})
	}

	tw.Render()
	return nil
}

// Players writes an A2S_PLAYER answer. The Ship columns appear when any player carries them.
func Players(w io.Writer, format string, players []a2s.Player) error {
	if format != FormatTable {
		if players == nil {
			players = []a2s.Player{}
		}
		return writeJSON(w, players)
	}

	theShip := false
	for _, p := range players {
		if p.TheShip != nil {
			theShip = true
			break
		}
	}

	header := []string{"#", "Name", "Score", "Connected"}
	if theShip {
		header = append(header, "Deaths", "Money")
	}

	tw := newTable(w, header...)
	for _, p := range players {
		row := []string{
			strconv.Itoa(int(p.Index)),
			p.Name,
			strconv.Itoa(int(p.Score)),
			p.Connected().Truncate(time.Second).String(),
		}
		if theShip {
			if p.TheShip != nil {
				row = append(row, strconv.FormatUint(uint64(p.TheShip.Deaths), 10), strconv.FormatUint(uint64(p.TheShip.Money), 10))
			} else {
				row = append(row, "-", "-")
			}
		}
		tw.Append(row)
	}

	tw.Render()
	return nil
}

// Rules writes an A2S_RULES answer. JSON output is an object keyed by rule
// name where a repeated name keeps its last value.
func Rules(w io.Writer, format string, rules []a2s.Rule) error {
	if format != FormatTable {
		m := make(map[string]string, len(rules))
		for _, r := range rules {
			m[r.Name] = r.Value
		}
		return writeJSON(w, m)
	}

	tw := newTable(w, "Name", "Value")
	for _, r := range rules {
		tw.Append([]string{r.Name, r.Value})
	}

	tw.Render()
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
