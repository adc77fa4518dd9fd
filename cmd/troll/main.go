// Command troll is a command-line interface for the TROLL tropical forest
// growth simulator.
package main

import (
	"fmt"
	"os"

	"github.com/ecotroll/troll/trollutil"
)

func main() {
	if err := trollutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
