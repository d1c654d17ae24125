// Command sqlrag is the operator CLI for the SQL-RAG engine: a thin
// client over the same internal packages cmd/sqlragd serves over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/sqlrag/engine/cmd/sqlrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
