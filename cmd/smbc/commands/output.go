package commands

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/cloudsoda/smbc"
)

// printTable writes rows under headers in a borderless, left-aligned table.
func printTable(w io.Writer, headers []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(rows)
	table.Render()
}

// printPairs writes a two column key/value table without headers.
func printPairs(w io.Writer, pairs [][2]string) {
	table := tablewriter.NewWriter(w)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, p := range pairs {
		table.Append([]string{p[0] + ":", p[1]})
	}
	table.Render()
}

const timeFormat = "2006-01-02 15:04:05"

func entryRow(e smbc.DirEntry) []string {
	return []string{e.Name, e.Kind.String(), strconv.FormatInt(e.Size, 10), e.ModTime.Local().Format(timeFormat)}
}

func statPairs(name string, fi os.FileInfo) [][2]string {
	kind := smbc.KindFile
	if fi.IsDir() {
		kind = smbc.KindDir
	}

	pairs := [][2]string{
		{"Name", name},
		{"Type", kind.String()},
		{"Size", strconv.FormatInt(fi.Size(), 10)},
		{"Mode", fi.Mode().String()},
		{"Modified", fi.ModTime().Local().Format(time.RFC3339)},
	}

	if st, ok := fi.Sys().(*smbc.FileStat); ok {
		pairs = append(pairs,
			[2]string{"Created", st.CreationTime.Local().Format(time.RFC3339)},
			[2]string{"Attributes", "0x" + strconv.FormatUint(uint64(st.FileAttributes), 16)},
		)
	}
	return pairs
}

// printMetrics summarizes the counters collected during the run.
func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}

	var rows [][]string
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			var labels string
			for _, lp := range m.GetLabel() {
				if labels != "" {
					labels += ","
				}
				labels += lp.GetName() + "=" + lp.GetValue()
			}
			rows = append(rows, []string{mf.GetName(), labels, strconv.FormatFloat(m.GetCounter().GetValue(), 'f', -1, 64)})
		}
	}

	printTable(w, []string{"Metric", "Labels", "Value"}, rows)
	return nil
}
