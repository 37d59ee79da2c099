// Command healthprobe checks a running taskdeck server, for use as a
// container health check. It exits 0 when both /healthz and /readyz
// answer 200.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	base := flag.String("url", "http://127.0.0.1:8080", "server base URL")
	timeout := flag.Duration("timeout", 3*time.Second, "per-request timeout")
	flag.Parse()

	client := &fasthttp.Client{
		ReadTimeout:  *timeout,
		WriteTimeout: *timeout,
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		status, body, err := client.GetTimeout(nil, *base+path, *timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "probe %s: %v\n", path, err)
			os.Exit(1)
		}
		if status != fasthttp.StatusOK {
			fmt.Fprintf(os.Stderr, "probe %s: status %d: %s\n", path, status, body)
			os.Exit(1)
		}
	}
	fmt.Println("ok")
}
