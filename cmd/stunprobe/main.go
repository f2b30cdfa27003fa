// Command stunprobe prints the local host's server-reflexive transport
// address as observed by a STUN server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/opd-ai/natbeacon/stun"
)

func main() {
	serverAddr := flag.String("server", "", "STUN server to query (host:port); defaults to public servers")
	timeout := flag.Duration("timeout", 5*time.Second, "per-server query timeout")
	flag.Parse()

	client := stun.NewClient()
	client.SetTimeout(*timeout)
	if *serverAddr != "" {
		client.SetServers([]string{*serverAddr})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	addr, err := client.Discover(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stunprobe: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(addr.String())
}
