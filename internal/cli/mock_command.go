package cli

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"crawldash/internal/mockserver"
)

func runMockServer(args []string) error {
	fs := flag.NewFlagSet("mock", flag.ContinueOnError)
	addr := fs.String("addr", ":8000", "listen address")
	delay := fs.Duration("analyze-delay", 2*time.Second, "simulated analysis duration")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv := mockserver.New()
	srv.AnalyzeDelay = *delay

	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", srv.Handler()))

	fmt.Printf("mock backend listening on %s (api base http://localhost%s/api)\n", *addr, *addr)
	return http.ListenAndServe(*addr, mux)
}
