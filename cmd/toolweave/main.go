package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/toolweave/toolweave"
	"github.com/toolweave/toolweave/internal/adapters"
	"github.com/toolweave/toolweave/internal/cache"
	"github.com/toolweave/toolweave/internal/embedding"
	"github.com/toolweave/toolweave/internal/eventbus"
	"github.com/toolweave/toolweave/internal/executor"
	"github.com/toolweave/toolweave/internal/graph"
	"github.com/toolweave/toolweave/internal/history"
	"github.com/toolweave/toolweave/internal/planner"
	"github.com/toolweave/toolweave/internal/prompt"
	"github.com/toolweave/toolweave/internal/tools"
	"github.com/toolweave/toolweave/internal/translate"
)

const usage = `Usage: toolweave [-config FILE] COMMAND [ARGS]

Commands:
  discover REQUEST          plan a pipeline for the request without running it
  execute REQUEST [INPUT]   plan and run a pipeline (INPUT is a JSON object)
  graph                     print the current capability graph snapshot
`

func main() {
	configPath := flag.String("config", "toolweave.yaml", "path to the YAML configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := toolweave.LoadFileConfig(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx := context.Background()

	if os.Getenv("GEMINI_API_KEY") == "" {
		log.Fatal("GEMINI_API_KEY environment variable not set.")
	}

	g, err := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}),
		genkit.WithDefaultModel("googleai/gemini-2.0-flash"),
	)
	if err != nil {
		log.Fatalf("Genkit initialization failed: %v", err)
	}

	broker, cleanup, err := buildBroker(ctx, cfg, g)
	if err != nil {
		log.Fatalf("Broker initialization failed: %v", err)
	}
	defer cleanup()

	if err := registerServers(ctx, broker, cfg); err != nil {
		log.Fatalf("Server registration failed: %v", err)
	}

	if err := dispatch(ctx, broker, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}
}

// buildBroker wires the component stack: embedding index, capability graph,
// planner, translator, executor and history, all sharing one cache and one
// event bus.
func buildBroker(ctx context.Context, cfg *toolweave.FileConfig, g *genkit.Genkit) (*toolweave.Broker, func(), error) {
	embedder := adapters.NewGenkitEmbedderAdapter(
		googlegenai.GoogleAIEmbedder(g, "text-embedding-004"))

	capGraph := graph.New(embedding.NewIndex(embedder),
		graph.WithThreshold(cfg.Broker.SimilarityThreshold),
		graph.WithWorkers(cfg.Broker.ClassifyWorkers),
	)

	memCache := cache.NewInMemoryCache(cfg.Broker.CacheTTL)

	proposer := planner.NewFallbackProposer(
		adapters.NewGenkitProposerAdapter(prompt.DefineProposerFlow(g)),
		planner.NewKeywordProposer(),
	)
	pipelinePlanner := planner.New(proposer, planner.WithCache(memCache))

	translator := translate.New(translate.WithCache(memCache))

	var historyStore toolweave.HistoryStore
	var closeHistory func()
	if cfg.HistoryPath != "" {
		store, err := history.NewSQLiteStore(cfg.HistoryPath)
		if err != nil {
			return nil, nil, err
		}
		historyStore = store
		closeHistory = func() { store.Close() }
	} else {
		historyStore = history.NewMemoryStore()
		closeHistory = func() {}
	}

	var bus eventbus.EventBus
	if cfg.Broker.EnableEventBus {
		bus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(cfg.Broker.EventBusBufferSize),
			eventbus.WithWorkerCount(cfg.Broker.EventBusWorkerCount),
		)
	}

	registry := toolweave.NewInvokerRegistry()

	executorOptions := []executor.ExecutorOption{
		executor.WithMaxRetries(cfg.Broker.MaxRetries),
		executor.WithRetryDelay(cfg.Broker.RetryDelay),
		executor.WithStepTimeout(cfg.Broker.StepTimeout),
		executor.WithHistory(historyStore),
		executor.WithSnapshotSource(capGraph),
	}
	if bus != nil {
		executorOptions = append(executorOptions, executor.WithEventBus(bus))
	}
	runExecutor := executor.NewExecutor(registry, translator, executorOptions...)

	brokerOptions := []toolweave.Option{
		toolweave.WithConfig(cfg.Broker),
		toolweave.WithGraph(capGraph),
		toolweave.WithPlanner(pipelinePlanner),
		toolweave.WithExecutor(runExecutor),
		toolweave.WithHistory(historyStore),
		toolweave.WithCache(memCache),
		toolweave.WithInvokerRegistry(registry),
	}
	if bus != nil {
		brokerOptions = append(brokerOptions, toolweave.WithEventBus(bus))
	}

	broker, err := toolweave.New(brokerOptions...)
	if err != nil {
		closeHistory()
		return nil, nil, err
	}

	cleanup := func() {
		broker.Close()
		closeHistory()
	}
	return broker, cleanup, nil
}

// registerServers connects the built-in local tools plus every configured
// MCP server and registers their catalogs into the capability graph.
func registerServers(ctx context.Context, broker *toolweave.Broker, cfg *toolweave.FileConfig) error {
	local := tools.SetupLocalTools()
	count, err := broker.RegisterServer(ctx, local.Server(), local, local)
	if err != nil {
		return err
	}
	log.Printf("Registered server (name: %s, tools: %d)", local.Server(), count)

	for _, spec := range cfg.Servers {
		transport := adapters.NewMCPTransport(spec.Name, spec.Command, spec.Args,
			adapters.WithServerEnv(spec.Env))
		if err := transport.Connect(ctx); err != nil {
			return err
		}

		count, err := broker.RegisterServer(ctx, spec.Name, transport, transport)
		if err != nil {
			transport.Close()
			return err
		}
		log.Printf("Registered server (name: %s, tools: %d)", spec.Name, count)
	}
	return nil
}

func dispatch(ctx context.Context, broker *toolweave.Broker, args []string) error {
	switch args[0] {
	case "discover":
		if len(args) < 2 {
			return fmt.Errorf("discover requires a request argument")
		}
		plan, err := broker.Discover(ctx, args[1])
		if err != nil {
			return err
		}
		return printJSON(plan)

	case "execute":
		if len(args) < 2 {
			return fmt.Errorf("execute requires a request argument")
		}
		initialInput := map[string]interface{}{}
		if len(args) > 2 {
			if err := json.Unmarshal([]byte(args[2]), &initialInput); err != nil {
				return fmt.Errorf("invalid input JSON: %w", err)
			}
		}
		run, err := broker.Execute(ctx, args[1], initialInput)
		if err != nil {
			return err
		}
		if err := printJSON(run); err != nil {
			return err
		}
		if run != nil && !run.Success {
			os.Exit(1)
		}
		return nil

	case "graph":
		return printJSON(broker.GraphSnapshot())

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
