// Command gokvm-arm64 is the VMM's entry point: parse the command line,
// run the matched subcommand.
package main

import (
	"log"

	"github.com/bobuhiro11/gokvm-arm64/flag"
)

func main() {
	if err := flag.Parse(); err != nil {
		log.Fatal(err)
	}
}
