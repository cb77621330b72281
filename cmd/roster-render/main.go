package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/zenibako/roster-render/config"
	"github.com/zenibako/roster-render/render"
)

const appName = "roster-render"

type options struct {
	configPath string
	host       string
	port       int
	passcode   string
	start      int
	end        int
	out        string
	plan       bool
	reportPath string
	debug      bool
	noPrompt   bool
}

func main() {
	opts := options{}
	flag.StringVar(&opts.configPath, "config", config.DefaultFile, "path to the YAML config file")
	flag.StringVar(&opts.host, "host", "", "render bridge host (overrides config)")
	flag.IntVar(&opts.port, "port", 0, "render bridge port (overrides config)")
	flag.StringVar(&opts.passcode, "passcode", "", "render bridge passcode (overrides config)")
	flag.IntVar(&opts.start, "start", 0, "first roster index to render")
	flag.IntVar(&opts.end, "end", 0, "last roster index to render")
	flag.StringVar(&opts.out, "out", "", "root output folder")
	flag.BoolVar(&opts.plan, "plan", false, "validate and list the jobs without rendering")
	flag.StringVar(&opts.reportPath, "report", "", "write a JSON run report to this path")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.BoolVar(&opts.noPrompt, "no-prompt", false, "never prompt; fail if start, end or out are missing")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\n", appName)
		flag.PrintDefaults()
	}
	flag.Parse()

	if opts.debug {
		log.SetLevel(log.DebugLevel)
	}

	os.Exit(run(opts))
}

func run(opts options) int {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		log.Error("Failed to load config", "path", opts.configPath, "error", err)
		return 2
	}
	applyOverrides(cfg, opts)
	settings := cfg.Settings()

	input := render.RunInput{
		Range:       render.Range{Start: opts.start, End: opts.end},
		Destination: opts.out,
	}
	if render.NeedsPrompt(input) {
		if opts.noPrompt {
			log.Error("Missing run input", "start", input.Range.Start, "end", input.Range.End, "out", input.Destination)
			return 2
		}
		input, err = render.PromptRunInput(input, settings.RosterSize)
		if err != nil {
			return report(nil, err, opts.reportPath)
		}
	}

	project := render.NewProject(cfg.Engine.Host, cfg.Engine.Port)
	project.SetReplyPort(cfg.ReplyPort())
	project.SetListenHost(cfg.ListenHost())
	project.SetTimeout(cfg.Engine.TimeoutSeconds)
	project.SetMaxRetries(cfg.Engine.MaxRetries)
	project.OnDisconnect(func() {
		log.Warn("Render bridge stopped answering", "host", cfg.Engine.Host, "port", cfg.Engine.Port)
	})
	defer project.Close()

	if err := project.Init(cfg.Engine.Passcode); err != nil {
		log.Error("Failed to connect to render bridge", "error", err)
		return 1
	}

	orchestrator := render.NewOrchestrator(project, settings)
	if opts.plan {
		result, err := orchestrator.Plan(input)
		if err == nil {
			for _, job := range result.Jobs {
				fmt.Printf("%3d  %-30s  %s\n", job.Index, job.Source.Name, job.Destination)
			}
		}
		return report(result, err, opts.reportPath)
	}

	result, err := orchestrator.Run(input)
	return report(result, err, opts.reportPath)
}

func applyOverrides(cfg *config.Config, opts options) {
	if opts.host != "" {
		cfg.Engine.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Engine.Port = opts.port
	}
	if opts.passcode != "" {
		cfg.Engine.Passcode = opts.passcode
	}
}

// report prints the outcome, writes the run report if requested and
// returns the exit code
func report(result *render.RunReport, err error, path string) int {
	if result != nil && path != "" {
		if werr := result.WriteFile(path); werr != nil {
			log.Error("Failed to write run report", "error", werr)
		} else {
			log.Info("Run report written", "path", path)
		}
	}

	if err != nil {
		if kind, ok := render.KindOf(err); ok {
			fmt.Fprintf(os.Stderr, "%s failed (%s): %v\n", appName, kind, err)
		} else {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", appName, err)
		}
		if errors.Is(err, render.ErrPrecondition) {
			return 2
		}
		return 1
	}

	if result.Planned {
		fmt.Printf("Plan OK: %d jobs across %d indexes\n", len(result.Jobs), result.Batches)
	} else {
		fmt.Printf("Rendering completed: %d jobs across %d batches\n", len(result.Jobs), result.Batches)
	}
	return 0
}
