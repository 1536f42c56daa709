// Command hid-dump prints a report file written by hidhost's cbor sink.
//
// Usage:
//
//	go run ./cmd/hid-dump [--kind INPUT|FEATURE|BATTERY] reports.cbor
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/chaz8081/hidhost/internal/report"
)

func main() {
	kind := flag.String("kind", "", "only print records of this kind")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Println("usage: hid-dump [--kind KIND] FILE")
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	entries, err := report.ReadEntries(f)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	for _, e := range entries {
		if *kind != "" && e.Kind != *kind {
			continue
		}
		fmt.Printf("%s %s %-8s %s map=%d id=%d %s\n",
			e.Time.Format("15:04:05.000"), e.Address, e.Kind, e.Usage, e.MapIndex, e.ReportID, hex.EncodeToString(e.Data))
	}
	fmt.Printf("\n%d records\n", len(entries))
}
