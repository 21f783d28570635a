package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/analytics"
	"github.com/therealutkarshpriyadarshi/logscope/internal/analyzer"
	"github.com/therealutkarshpriyadarshi/logscope/internal/history"
)

const barWidth = 40

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printReport(w io.Writer, r *analyzer.Report) error {
	if jsonOut {
		return printJSON(w, r)
	}

	tw := newTable(w)
	fmt.Fprintf(tw, "Source:\t%s (%s)\n", r.Source, r.SourceType)
	fmt.Fprintf(tw, "Run:\t%s\n", r.ID)
	fmt.Fprintf(tw, "Lines:\t%d (%d valid, %d malformed: %d format, %d parsing)\n",
		r.Lines, r.Valid, r.Malformed, r.FormatErrors, r.ParsingErrors)
	fmt.Fprintf(tw, "Bytes read:\t%s\n", formatBytes(r.Bytes))
	fmt.Fprintf(tw, "Duration:\t%s\n", r.Duration.Round(time.Millisecond))
	if r.Matched != r.Valid {
		fmt.Fprintf(tw, "Matched filter:\t%d\n", r.Matched)
	}
	if r.Exported {
		fmt.Fprintf(tw, "Exported:\tyes\n")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := r.Summary
	fmt.Fprintf(w, "\nTraffic: %d requests, %s served, %d unique IPs\n", s.TotalRequests, formatBytes(s.TotalBytes), s.UniqueIPs)

	section(w, "Status classes")
	tw = newTable(w)
	for _, class := range analytics.StatusClasses {
		fmt.Fprintf(tw, "  %s\t%d\n", class, s.StatusClasses[class])
	}
	tw.Flush()

	printCounts(w, "Methods", s.Methods)

	section(w, "Top IPs")
	tw = newTable(w)
	for _, ip := range s.TopIPs {
		fmt.Fprintf(tw, "  %s\t%d\n", ip.IP, ip.Count)
	}
	tw.Flush()

	printCounts(w, "Browsers", s.Browsers)
	printCounts(w, "Operating systems", s.OS)
	printHourly(w, s.Hourly)

	section(w, "Security")
	fmt.Fprintf(w, "  Suspicious requests: %d\n", len(s.Security.Findings))
	fmt.Fprintf(w, "  Auth failures: %d\n", s.Security.AuthFailures)
	fmt.Fprintf(w, "  Scanner user agents: %d\n", s.Security.Scanners)
	byType := make(map[string]int, len(s.Security.ByType))
	for t, n := range s.Security.ByType {
		byType[string(t)] = n
	}
	writeCounts(w, byType)

	section(w, "Flood detection")
	if r.DDoS.Detected {
		fmt.Fprintf(w, "  Possible DDoS: peak %d requests/min, %d minutes from %s\n",
			r.DDoS.PeakRate, r.DDoS.Duration, r.DDoS.AttackStart.Format(time.RFC3339))
		tw = newTable(w)
		for _, a := range r.DDoS.TopAttackers {
			fmt.Fprintf(tw, "  %s\t%d\t%s\n", a.IP, a.Requests, a.Pattern)
		}
		tw.Flush()
	} else {
		fmt.Fprintf(w, "  No flood detected (peak %d requests/min)\n", r.DDoS.PeakRate)
	}

	if len(r.Countries) > 0 || r.GeoError != "" {
		section(w, "Countries")
		if r.GeoError != "" {
			fmt.Fprintf(w, "  %s\n", r.GeoError)
		}
		tw = newTable(w)
		for _, c := range r.Countries {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\n", c.Code, c.Name, c.Continent.Name, c.Count)
		}
		tw.Flush()
	}

	if len(r.MalformedSample) > 0 {
		section(w, fmt.Sprintf("Malformed lines (first %d)", len(r.MalformedSample)))
		for _, m := range r.MalformedSample {
			fmt.Fprintf(w, "  line %d [%s] %s: %s\n", m.LineNumber, m.Type, m.Error, truncate(m.Content, 80))
		}
	}
	return nil
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", title)
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	section(w, title)
	writeCounts(w, counts)
}

// writeCounts prints counts highest first, ties by name
func writeCounts(w io.Writer, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	tw := newTable(w)
	for _, k := range keys {
		fmt.Fprintf(tw, "  %s\t%d\n", k, counts[k])
	}
	tw.Flush()
}

func printHourly(w io.Writer, hourly [24]int) {
	section(w, "Requests by hour")
	peak := 0
	for _, n := range hourly {
		if n > peak {
			peak = n
		}
	}
	for hour, n := range hourly {
		width := 0
		if peak > 0 {
			width = n * barWidth / peak
		}
		fmt.Fprintf(w, "  %02d:00 %-*s %d\n", hour, barWidth, strings.Repeat("#", width), n)
	}
}

func printRuns(w io.Writer, runs []history.Run) error {
	if jsonOut {
		return printJSON(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSTARTED\tSOURCE\tVALID\tMALFORMED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Source, r.Valid, r.Malformed, r.Duration.Round(time.Millisecond))
	}
	return tw.Flush()
}

func printRun(w io.Writer, r history.Run) error {
	if jsonOut {
		return printJSON(w, r)
	}

	tw := newTable(w)
	fmt.Fprintf(tw, "ID:\t%s\n", r.ID)
	fmt.Fprintf(tw, "Source:\t%s\n", r.Source)
	fmt.Fprintf(tw, "Started:\t%s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Duration:\t%s\n", r.Duration)
	fmt.Fprintf(tw, "Bytes:\t%s\n", formatBytes(r.Bytes))
	fmt.Fprintf(tw, "Lines:\t%d\n", r.Lines)
	fmt.Fprintf(tw, "Valid:\t%d\n", r.Valid)
	fmt.Fprintf(tw, "Malformed:\t%d (%d format, %d parsing)\n", r.Malformed, r.FormatErrors, r.ParsingErrors)
	return tw.Flush()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
