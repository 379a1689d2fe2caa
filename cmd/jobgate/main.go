package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/jobgate/jobgate/internal/config"
	"github.com/jobgate/jobgate/internal/doctor"
	"github.com/jobgate/jobgate/internal/modules"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	case "start":
		return runStart(args)
	case "config":
		return runConfigNoun(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigHelp()
		return 1
	}
	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "help":
		printConfigHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config command: %s\n\n", args[0])
		printConfigHelp()
		return 1
	}
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "./jobgate.yaml", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output validation result as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	result := doctor.New(cfg, modules.Names(), pluginNames()).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	info := versionInfo{Version: version, Commit: gitCommit, BuildTime: buildDate}
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	fmt.Printf("jobgate %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildTime)
	return 0
}

func printUsage() {
	fmt.Print(`jobgate - queue-mediated RPC gateway

Usage:
  jobgate start [--config path]     Start the gateway and/or worker roles
  jobgate config check [--config path] [--json]
                                    Validate configuration and exit
  jobgate version [--json]          Print version information
  jobgate help                      Show this help

Environment:
  JOBGATE_ROLE                      Restrict this process to one role
                                    (worker), used by forked worker copies.
  JOBGATE_*                         Override configuration fields; see the
                                    envconfig tags in internal/config.
`)
}

func printConfigHelp() {
	fmt.Print(`Usage:
  jobgate config check [--config path] [--json]
`)
}
