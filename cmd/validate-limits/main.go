package main

import (
	"fmt"
	"os"

	"github.com/frontdeskhq/resilience/ratelimit"
)

// Validates a limits.yaml before deploy: every class present, windows
// parseable, and no degraded limit more permissive than its normal one.
func main() {
	path := "limits.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	tables, err := ratelimit.LoadTables(path)
	if err != nil {
		fmt.Printf("invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s is valid\n", path)
	for _, class := range ratelimit.Classes {
		normal := tables.Normal(class)
		degraded := tables.Degraded(class)
		fmt.Printf("  %-18s normal %4d/%-8s degraded %4d/%-8s fail_closed=%v\n",
			class, normal.Max, normal.Window, degraded.Max, degraded.Window, tables.FailClosed(class))
	}
}
