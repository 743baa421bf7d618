// Command netrecon is a thin demonstration CLI over the netrecon library:
// it runs one scan campaign against a set of targets and renders its
// progress live, following superapple8x-GoNetWatch's main.go flag/flow
// conventions adapted from MITM setup to scan dispatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"netrecon"
	"netrecon/config"
	"netrecon/internal/reporting"
	"netrecon/internal/tui"
	"netrecon/scanstatus"
)

func main() {
	interfaceName := flag.String("i", "", "Network interface to send/capture on (e.g., eth0, wlan0)")
	targets := flag.String("targets", "", "Comma-separated target IPs or CIDR-free host list")
	ports := flag.String("ports", "22,80,443", "Comma-separated TCP/UDP ports to probe")
	method := flag.String("method", "syn", "Scan method: connect, syn, fin, ack, null, xmas, window, maimon, udp, arp")
	timeout := flag.Duration("timeout", 3*time.Second, "Per-probe response timeout")
	threads := flag.Int("threads", 0, "Concurrent probe workers (0 autodetects)")
	oui := flag.String("oui-db", "", "Path to an nmap-format MAC-prefix vendor database (ARP scans only)")
	report := flag.String("report", "", "Write an HTML report (scan_report_<timestamp>.html in the working directory) when non-empty")
	flag.Parse()

	if *interfaceName == "" {
		fmt.Println("Please provide an interface name with -i")
		fmt.Println("Example: ./netrecon -i eth0 -targets 192.168.1.1,192.168.1.2 -method syn")
		os.Exit(1)
	}

	log := logrus.StandardLogger()

	session, err := netrecon.Open(netrecon.OpenOptions{
		Interface: *interfaceName,
		Promisc:   true,
		OUIDBPath: *oui,
		Log:       log,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open session")
	}
	defer session.Close()

	opts := config.Options{Timeout: *timeout, Threads: *threads}

	if strings.EqualFold(*method, "arp") {
		runARP(session, opts, log)
		return
	}

	hosts, err := parseHosts(*targets)
	if err != nil {
		log.WithError(err).Fatal("invalid -targets")
	}
	if len(hosts) == 0 {
		fmt.Println("Please provide at least one target with -targets")
		os.Exit(1)
	}

	portList, err := parsePorts(*ports)
	if err != nil {
		log.WithError(err).Fatal("invalid -ports")
	}

	progress := &tui.Progress{}
	total := len(hosts) * len(portList)
	model := tui.NewProgressModel(progress, total, *interfaceName, *method)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan scanOutcome, 1)
	go func() {
		results, err := runScan(ctx, session, strings.ToLower(*method), hosts, portList, opts, progress)
		resultCh <- scanOutcome{results: results, err: err}
	}()

	if _, err := tea.NewProgram(model).Run(); err != nil {
		log.WithError(err).Error("tui exited with an error")
	}

	outcome := <-resultCh
	if outcome.err != nil {
		log.WithError(outcome.err).Fatal("scan failed")
	}

	if *report != "" {
		path, err := reporting.GenerateScanReport(outcome.results, "html")
		if err != nil {
			log.WithError(err).Error("failed to write report")
		} else {
			fmt.Printf("report written to %s\n", path)
		}
	}
}

type scanOutcome struct {
	results *scanstatus.ScanResults
	err     error
}

func runScan(ctx context.Context, s *netrecon.Session, method string, hosts []net.IP, ports []uint16, opts config.Options, progress *tui.Progress) (*scanstatus.ScanResults, error) {
	var (
		results *scanstatus.ScanResults
		err     error
	)
	switch method {
	case "connect":
		results, err = s.TCPConnectScan(ctx, hosts, ports, opts)
	case "syn":
		results, err = s.TCPSynScan(ctx, hosts, ports, opts)
	case "fin":
		results, err = s.TCPFinScan(ctx, hosts, ports, opts)
	case "ack":
		results, err = s.TCPAckScan(ctx, hosts, ports, opts)
	case "null":
		results, err = s.TCPNullScan(ctx, hosts, ports, opts)
	case "xmas":
		results, err = s.TCPXmasScan(ctx, hosts, ports, opts)
	case "window":
		results, err = s.TCPWindowScan(ctx, hosts, ports, opts)
	case "maimon":
		results, err = s.TCPMaimonScan(ctx, hosts, ports, opts)
	case "udp":
		results, err = s.UDPScan(ctx, hosts, ports, opts)
	default:
		return nil, fmt.Errorf("unknown scan method %q", method)
	}
	if results != nil {
		tallyProgress(results, progress)
	}
	return results, err
}

func tallyProgress(results *scanstatus.ScanResults, progress *tui.Progress) {
	for _, ps := range results.Results {
		for _, status := range ps.Status {
			switch status {
			case scanstatus.Open:
				progress.RecordOpen()
			case scanstatus.Closed:
				progress.RecordClosed()
			default:
				progress.RecordFiltered()
			}
		}
	}
}

func runARP(session *netrecon.Session, opts config.Options, log logrus.FieldLogger) {
	ctx := context.Background()
	results, err := session.ArpScan(ctx, opts)
	if err != nil {
		log.WithError(err).Fatal("arp scan failed")
	}
	for ip, host := range results.AliveHosts {
		fmt.Printf("%-16s %-17s %s\n", ip, host.MAC, host.OUIs)
	}
}

func parseHosts(s string) ([]net.IP, error) {
	var hosts []net.IP
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		ip := net.ParseIP(field)
		if ip == nil {
			return nil, fmt.Errorf("not an IP address: %s", field)
		}
		hosts = append(hosts, ip)
	}
	return hosts, nil
}

func parsePorts(s string) ([]uint16, error) {
	var out []uint16
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("not a valid port: %s", field)
		}
		out = append(out, uint16(n))
	}
	return out, nil
}
