// Command gridquery runs grid query descriptors against a document collection.
package main

import (
	"os"

	"github.com/gabisonia/go-gridquery/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
