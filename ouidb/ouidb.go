// Package ouidb loads and queries the nmap-style MAC vendor prefix table.
//
// The table format is fixed (one "PREFIX VENDOR..." pair per line, comment
// lines containing '#' skipped) — this package only owns the parser and the
// lookup, not the database's contents.
package ouidb

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
)

// Entry is one parsed line of the prefix table.
type Entry struct {
	Prefix string // 6 uppercase hex digits, no separators
	Vendor string
}

// Table is a loaded, queryable OUI prefix table.
type Table struct {
	entries []Entry
}

// Load parses an OUI prefix table from r.
func Load(r io.Reader) (*Table, error) {
	t := &Table{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "#") {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		t.entries = append(t.entries, Entry{
			Prefix: strings.ToUpper(fields[0]),
			Vendor: strings.Join(fields[1:], " "),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ouidb: reading table: %w", err)
	}
	return t, nil
}

// LoadFile opens path and parses it as an OUI prefix table.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ouidb: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// prefixKey formats the first three octets of mac as 6 uppercase hex
// digits with no separators, zero-padding each octet independently so a
// leading-zero octet is never dropped.
func prefixKey(mac net.HardwareAddr) string {
	if len(mac) < 3 {
		return ""
	}
	return fmt.Sprintf("%02X%02X%02X", mac[0], mac[1], mac[2])
}

// Lookup returns the vendor string for mac's OUI prefix, or "" if the
// prefix isn't present in the table. Matching is a linear scan over the
// loaded entries, same as the table's natural order.
func (t *Table) Lookup(mac net.HardwareAddr) string {
	key := prefixKey(mac)
	if key == "" {
		return ""
	}
	for _, e := range t.entries {
		if e.Prefix == key {
			return e.Vendor
		}
	}
	return ""
}

// Len reports how many entries the table holds.
func (t *Table) Len() int { return len(t.entries) }
