// Package main writes a self-signed server certificate and key for running
// the accounts server with -tls-cert/-tls-key during development.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/atinyakov/safeplay/internal/certgen"
)

func main() {
	dir := flag.String("dir", "certs", "output directory")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma-separated DNS names and IPs")
	days := flag.Int("days", 365, "validity in days")
	flag.Parse()

	var list []string
	for _, h := range strings.Split(*hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			list = append(list, h)
		}
	}

	certPath, keyPath, err := certgen.WriteServerCertificate(*dir, list, time.Duration(*days)*24*time.Hour)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Certificate: %s\nKey: %s\n", certPath, keyPath)
}
