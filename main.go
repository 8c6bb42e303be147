// manifest-proxy serves playback manifests and media redirects for videos,
// rewriting every media host to the configured proxy host.
package main

import (
	"fmt"
	"os"

	"github.com/Skyluker4/invidious-stripped-down/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
