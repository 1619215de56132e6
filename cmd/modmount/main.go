// Command modmount composes enabled on-device modules into the live
// filesystem, preferring OverlayFS per partition and falling back to a
// magic-mount bind-mount tree where OverlayFS cannot apply.
package main

import (
	"os"

	"github.com/modmount/modmount/internal/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
