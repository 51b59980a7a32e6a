// Command research-agent answers a single question by running the agent
// loop against the research tool server.
//
// It discovers tools from the configured MCP endpoints, runs the
// reasoning engine until a final answer is produced and prints the tool
// trace of the conversation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/agent"
	"github.com/effective-security/reagent/callbacks"
	"github.com/effective-security/reagent/chatmodel"
	"github.com/effective-security/reagent/pkg/llmfactory"
	"github.com/effective-security/reagent/pkg/llms"
	"github.com/effective-security/reagent/pkg/prompts"
	"github.com/effective-security/reagent/registry"
	"github.com/effective-security/reagent/trace"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/reagent", "research-agent")

// systemPrompt steers small models towards using the tools. The loop never
// assumes the engine obeys it.
const systemPrompt = "You are a research assistant. Always call **exactly one** of the provided tools before answering, even if you think you know the answer."

// Config combines the registry endpoints and the engine providers.
type Config struct {
	Registry *registry.Config   `json:"registry" yaml:"registry"`
	LLM      *llmfactory.Config `json:"llm" yaml:"llm"`
}

func main() {
	// environment variables already set take precedence over .env values
	_ = godotenv.Load()

	var (
		configFile    = flag.String("config", "research-agent.yaml", "configuration file")
		question      = flag.String("question", "", "question to answer")
		model         = flag.String("model", "", "preferred model name, the configured default when empty")
		maxIterations = flag.Int("max-iterations", agent.DefaultMaxToolIterations, "bound on reasoning to tool-call cycles")
		verbose       = flag.Bool("verbose", false, "print run events")
	)
	flag.Parse()

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	xlog.SetGlobalLogLevel(xlog.ERROR)

	if err := run(*configFile, *question, *model, *maxIterations, *verbose); err != nil {
		logger.KV(xlog.ERROR, "reason", "run", "err", err.Error())
		os.Exit(1)
	}
}

func run(configFile, question, model string, maxIterations int, verbose bool) error {
	if question == "" {
		return errors.New("the -question flag is required")
	}

	cfg := new(Config)
	if err := configloader.UnmarshalAndExpand(configFile, cfg); err != nil {
		return err
	}
	if cfg.Registry == nil || cfg.LLM == nil {
		return errors.New("the configuration must provide registry and llm sections")
	}
	if err := cfg.Registry.Validate(); err != nil {
		return err
	}
	if err := cfg.LLM.Validate(); err != nil {
		return err
	}

	ctx := chatmodel.WithChatID(context.Background(), chatmodel.NewChatID())

	reg, err := registry.Open(ctx, cfg.Registry)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	factory := llmfactory.New(cfg.LLM)
	engine, err := engineModel(factory, model)
	if err != nil {
		return err
	}

	options := []agent.Option{
		agent.WithMaxToolIterations(maxIterations),
	}
	if verbose {
		options = append(options, agent.WithCallback(callbacks.NewPrinter(os.Stderr, callbacks.ModeVerbose)))
	}

	ag := agent.NewAgent(engine, prompts.NewSystemPrompt(systemPrompt, nil), options...).
		WithTools(reg.Tools()...)

	res, err := ag.Run(ctx, question)
	if err != nil {
		return err
	}

	sum, err := trace.Summarize(res.Conversation.Messages())
	if err != nil {
		return err
	}
	fmt.Print(sum.String())
	fmt.Printf("\nOutcome: %s, tool iterations: %d\n", res.Outcome, res.ToolIterations)
	return nil
}

func engineModel(factory llmfactory.Factory, model string) (llms.Model, error) {
	if model == "" {
		return factory.DefaultModel()
	}
	return factory.ModelByName(model)
}
