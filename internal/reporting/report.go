// Package reporting renders a completed scan campaign's results as a
// standalone HTML report, the same single-file-per-session convention
// superapple8x-GoNetWatch's session reporting used for traffic captures.
package reporting

import (
	"fmt"
	"os"
	"sort"
	"time"

	"netrecon/scanstatus"
)

// GenerateScanReport writes an HTML report of results to a timestamped
// file and returns its path. Only the "html" format is supported.
func GenerateScanReport(results *scanstatus.ScanResults, format string) (string, error) {
	if format != "html" {
		return "", fmt.Errorf("unsupported format: %s", format)
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("scan_report_%s.html", timestamp)

	file, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hosts := make([]string, 0, len(results.Results))
	for ip := range results.Results {
		hosts = append(hosts, ip)
	}
	sort.Strings(hosts)

	html := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>netrecon Scan Report - %s</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .open { color: #2e7d32; font-weight: bold; }
        .closed { color: #999; }
        .filtered { color: #d9534f; }
    </style>
</head>
<body>
    <h1>netrecon Scan Report</h1>
    <div class="summary">
        <p><strong>Date:</strong> %s</p>
        <p><strong>Hosts scanned:</strong> %d</p>
    </div>
`, timestamp, time.Now().Format(time.RFC1123), len(hosts))

	for _, ip := range hosts {
		ps := results.Results[ip]
		html += fmt.Sprintf("    <h2>%s</h2>\n", ip)
		if ps.RTT != nil {
			html += fmt.Sprintf("    <p>RTT: %s</p>\n", ps.RTT)
		}
		html += "    <table>\n        <thead><tr><th>Port</th><th>Status</th></tr></thead>\n        <tbody>\n"

		ports := make([]int, 0, len(ps.Status))
		for p := range ps.Status {
			ports = append(ports, int(p))
		}
		sort.Ints(ports)
		for _, p := range ports {
			status := ps.Status[uint16(p)]
			html += fmt.Sprintf("            <tr><td>%d</td><td class=\"%s\">%s</td></tr>\n", p, statusClass(status), status)
		}
		html += "        </tbody>\n    </table>\n"
	}

	html += "</body>\n</html>"

	if _, err := file.WriteString(html); err != nil {
		return "", err
	}
	return filename, nil
}

func statusClass(s scanstatus.TargetScanStatus) string {
	switch s {
	case scanstatus.Open:
		return "open"
	case scanstatus.Closed:
		return "closed"
	default:
		return "filtered"
	}
}
