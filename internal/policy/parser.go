package policy

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/jroosing/hydrarpz/internal/rpz"
)

// Format is the layout of a trigger source.
type Format int

const (
	// FormatAuto detects the format from the first meaningful line.
	FormatAuto Format = iota
	// FormatZone is an RPZ master file. Every owner name except the apex
	// SOA and NS records is a trigger.
	FormatZone
	// FormatList holds one trigger owner name per line. Relative names are
	// completed with the zone origin.
	FormatList
)

// ParseFormat maps "zone", "list" and "auto" (or "") to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "zone":
		return FormatZone, nil
	case "list":
		return FormatList, nil
	}
	return FormatAuto, fmt.Errorf("unknown source format %q", s)
}

func (f Format) String() string {
	switch f {
	case FormatZone:
		return "zone"
	case FormatList:
		return "list"
	default:
		return "auto"
	}
}

// Parser reads trigger owner names from files, URLs and readers.
type Parser struct {
	// Timeout is the HTTP request timeout in milliseconds. Default is 60000 (60s).
	Timeout int
}

// NewParser creates a parser with default settings.
func NewParser() *Parser {
	return &Parser{Timeout: 60000}
}

// Open reads triggers from src, which is a file path or an http(s) URL.
func (p *Parser) Open(src string, format Format, origin string) ([]string, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return p.ParseURL(src, format, origin)
	}
	return p.ParseFile(src, format, origin)
}

// ParseFile reads triggers from a local file.
func (p *Parser) ParseFile(path string, format Format, origin string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(file, format, origin, path)
}

// ParseURL fetches and parses a trigger source over HTTP.
func (p *Parser) ParseURL(url string, format Format, origin string) ([]string, error) {
	timeout := time.Duration(p.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	return p.Parse(resp.Body, format, origin, url)
}

// Parse reads trigger owner names from r. Names are canonical, absolute
// and unique, in source order.
func (p *Parser) Parse(r io.Reader, format Format, origin, filename string) ([]string, error) {
	origin = rpz.CanonicalName(origin)
	br := bufio.NewReaderSize(r, 64*1024)
	if format == FormatAuto {
		format = detectFormat(br)
	}

	if format == FormatZone {
		return parseZone(br, origin, filename)
	}
	return parseList(br, origin)
}

// detectFormat peeks at the source: directives, SOA records and lines with
// more than one field mean a master file.
func detectFormat(br *bufio.Reader) Format {
	peek, _ := br.Peek(br.Size())
	for _, line := range strings.Split(string(peek), "\n") {
		line = strings.TrimSpace(stripComment(line))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "$") || len(strings.Fields(line)) > 1 {
			return FormatZone
		}
		return FormatList
	}
	return FormatList
}

func parseZone(r io.Reader, origin, filename string) ([]string, error) {
	zp := dns.NewZoneParser(r, origin, filename)
	zp.SetDefaultTTL(3600)

	var owners []string
	seen := make(map[string]bool)
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		hdr := rr.Header()
		name := rpz.CanonicalName(hdr.Name)
		if name == origin && (hdr.Rrtype == dns.TypeSOA || hdr.Rrtype == dns.TypeNS) {
			continue
		}
		if !seen[name] {
			seen[name] = true
			owners = append(owners, name)
		}
	}
	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("error parsing zone: %w", err)
	}
	return owners, nil
}

func parseList(r io.Reader, origin string) ([]string, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var owners []string
	seen := make(map[string]bool)
	for scanner.Scan() {
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}
		name := line
		if !dns.IsFqdn(name) {
			name = dns.Fqdn(name) + strings.TrimPrefix(origin, ".")
		}
		name = rpz.CanonicalName(name)
		if !seen[name] {
			seen[name] = true
			owners = append(owners, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	return owners, nil
}

func stripComment(line string) string {
	if idx := strings.IndexAny(line, "#;"); idx >= 0 {
		return line[:idx]
	}
	return line
}
