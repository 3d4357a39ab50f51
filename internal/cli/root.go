package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		return runDashboard(nil)
	}

	switch args[0] {
	case "dash":
		return runDashboard(args[1:])
	case "add":
		return runAddURL(args[1:])
	case "list":
		return runListURLs(args[1:])
	case "analyze":
		return runAnalyzeURL(args[1:])
	case "remove":
		return runRemoveURL(args[1:])
	case "show":
		return runShowAnalysis(args[1:])
	case "mock":
		return runMockServer(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("crawldash: terminal dashboard for a website-crawler backend")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  crawldash mock            # local mock backend on :8000")
	fmt.Println("  crawldash add --url https://example.com")
	fmt.Println("  crawldash                 # interactive dashboard")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  dash      interactive dashboard (default when run without a command)")
	fmt.Println("  add       submit a URL for tracking")
	fmt.Println("  list      list tracked URLs (paginated)")
	fmt.Println("  analyze   request analysis for one URL by id")
	fmt.Println("  remove    delete one URL by id")
	fmt.Println("  show      print the full analysis for a completed URL")
	fmt.Println("  mock      run an in-memory mock backend for development")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Backend location and token come from --api/--token, the")
	fmt.Println("    CRAWLDASH_API_URL / CRAWLDASH_TOKEN environment, or a .env file")
	fmt.Println("  - Use --json on commands for machine-readable output")
}
