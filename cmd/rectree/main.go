// Command rectree inspects, checks, repairs and mirrors saved tree files.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
