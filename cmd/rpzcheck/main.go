// Command rpzcheck loads response policy zones from files and reports which
// trigger, if any, applies to an address or a name.
//
//	rpzcheck -zone rpz.example.=rpz.zone -zone local.=blocked.txt -type qname ads.example.com
//	rpzcheck -zone rpz.example.=rpz.zone -type ip 192.0.2.1
//	rpzcheck -zone rpz.example.=rpz.zone -dump
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"sort"
	"strings"

	"github.com/jroosing/hydrarpz/internal/logging"
	"github.com/jroosing/hydrarpz/internal/policy"
	"github.com/jroosing/hydrarpz/internal/rpz"
)

type zoneFlags []string

func (z *zoneFlags) String() string { return strings.Join(*z, ",") }

func (z *zoneFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return errors.New("want origin=path")
	}
	*z = append(*z, v)
	return nil
}

func main() {
	var zones zoneFlags
	flag.Var(&zones, "zone", "Policy zone as origin=path; repeat in precedence order")
	var (
		typ      = flag.String("type", "qname", "Trigger type: client-ip, qname, ip, nsdname or nsip")
		format   = flag.String("format", "auto", "Source format: zone, list or auto")
		maxNodes = flag.Int("max-nodes", 0, "Cap each trie at this many nodes (0 is unlimited)")
		dump     = flag.Bool("dump", false, "Print every trigger of every zone")
		verbose  = flag.Bool("v", false, "Log rejected triggers")
	)
	flag.Parse()

	if len(zones) == 0 || (!*dump && flag.NArg() != 1) {
		fmt.Fprintf(os.Stderr, "Usage: rpzcheck -zone origin=path [-zone ...] [-type TYPE] ADDRESS|NAME\n")
		fmt.Fprintf(os.Stderr, "       rpzcheck -zone origin=path [-zone ...] -dump\n")
		os.Exit(2)
	}

	level := "ERROR"
	if *verbose {
		level = "WARN"
	}
	logger := logging.New(logging.Config{Level: level})

	srcFormat, err := policy.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	t, err := rpz.ParseType(*typ)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	engine := policy.NewEngine(policy.Config{
		Logger:  logger,
		Options: rpz.Options{MaxNodes: *maxNodes},
	})
	defer engine.Close()

	if len(zones) > rpz.MaxZones {
		fmt.Fprintf(os.Stderr, "at most %d zones\n", rpz.MaxZones)
		os.Exit(2)
	}
	for i, z := range zones {
		origin, path, _ := strings.Cut(z, "=")
		_, err := engine.AddZone(policy.ZoneSource{
			Spec:   rpz.ZoneSpec{ID: rpz.ZoneID(i), Origin: origin},
			File:   path,
			Format: srcFormat,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to add zone: %v\n", err)
			os.Exit(1)
		}
	}
	if err := engine.LoadAll(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load zones: %v\n", err)
		os.Exit(1)
	}

	for _, info := range engine.Zones() {
		fmt.Printf("ZONE %d %s: %d triggers, %d rejected\n", info.ID, info.Name, info.Counts.Total(), info.Rejected)
	}
	fmt.Printf("SKIP_RECURSE: %s\n", engine.SkipRecurse())

	if *dump {
		for _, info := range engine.Zones() {
			triggers, _ := engine.Triggers(info.Name)
			sort.Strings(triggers)
			fmt.Printf("TRIGGERS %s:\n", info.Name)
			for _, tr := range triggers {
				fmt.Printf("  %s\n", tr)
			}
		}
		if flag.NArg() == 0 {
			return
		}
	}

	query := flag.Arg(0)
	if t.IsAddress() {
		addr, err := netip.ParseAddr(query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid address: %v\n", err)
			os.Exit(2)
		}
		m, ok := engine.LookupAddress(t, addr)
		if !ok {
			fmt.Printf("%s %s: no match\n", t, addr)
			os.Exit(3)
		}
		fmt.Printf("%s %s: zone %s prefix %s trigger %s\n", t, addr, m.Zone.Name, m.Prefix, m.Trigger)
		return
	}

	found := engine.LookupName(t, query)
	if len(found) == 0 {
		fmt.Printf("%s %s: no match\n", t, rpz.CanonicalName(query))
		os.Exit(3)
	}
	names := make([]string, 0, len(found))
	for _, info := range found {
		names = append(names, info.Name)
	}
	fmt.Printf("%s %s: zones %s\n", t, rpz.CanonicalName(query), strings.Join(names, " "))
}
