/*
main.go - pacing command line

PURPOSE:
  Runs the yield pacing engine from a terminal: period generation, MS
  window resolution, cumulative distribution, funnel rates and the full
  dashboard load against the goal and KPI backends.

COMMANDS:
  periods      print the periods of a rule
  window       resolve an MS window for a period and metric
  distribute   spread an MS total over its window (--save writes it)
  rates        funnel rates from counts
  load         LoadAll and render (--watch refreshes on a schedule)
  prefetch     warm target caches for every period
  ms-settings  get|set metric windows for a month
  mode         show|set rate and calc modes

GLOBAL FLAGS:
  --config   config file (default: search for pacing.yaml)
  --verbose  debug logging

SEE ALSO:
  - config/config.go: settings and environment variables
  - dashboard/controller.go: LoadAll
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
