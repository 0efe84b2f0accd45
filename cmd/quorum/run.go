package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-quorum/infrastructure/llm"
	"github.com/ahrav/go-quorum/infrastructure/verifiers"
	"github.com/ahrav/go-quorum/internal/application"
	"github.com/ahrav/go-quorum/internal/ports"
)

var (
	flagConfig      string
	flagController  string
	flagProvider    string
	flagModel       string
	flagGroundTruth string
	flagConfidence  float64
	flagVerbose     bool
)

func init() {
	for _, cmd := range []*cobra.Command{searchCmd, decideCmd} {
		cmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to engine YAML config")
		cmd.Flags().StringVar(&flagProvider, "provider", "openai", "LLM provider (openai, anthropic, google)")
		cmd.Flags().StringVar(&flagModel, "model", "", "model name (provider default when empty)")
		cmd.Flags().StringVar(&flagGroundTruth, "ground-truth", "", "expected answer; enables deterministic verification")
		cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	}
	searchCmd.Flags().StringVar(&flagController, "controller", "", "search controller (diverse, beam, mcts)")
	decideCmd.Flags().Float64Var(&flagConfidence, "confidence", -1, "answer confidence in [0,1]; negative estimates it")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a verified search and print the consensus result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := buildEngine()
		if err != nil {
			return err
		}
		outcome, err := engine.RunSearch(cmd.Context(), args[0], flagController)
		if err != nil {
			return err
		}
		return printJSON(outcome)
	},
}

var decideCmd = &cobra.Command{
	Use:   "decide <query>",
	Short: "Run the full decide pipeline: search, calibration, and answer economics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := buildEngine()
		if err != nil {
			return err
		}
		outcome, err := engine.Decide(cmd.Context(), args[0], flagConfidence)
		if err != nil {
			return err
		}
		return printJSON(outcome)
	},
}

// buildEngine assembles the engine from flags and environment. The API
// key comes from OPENAI_API_KEY, ANTHROPIC_API_KEY, or GEMINI_API_KEY
// depending on the provider.
func buildEngine() (*application.Engine, error) {
	config := application.DefaultEngineConfig()
	if flagConfig != "" {
		var err error
		config, err = application.LoadEngineConfig(flagConfig)
		if err != nil {
			return nil, err
		}
	}

	logger, err := buildLogger()
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(flagProvider, llm.ClientConfig{
		APIKey: apiKeyFor(flagProvider),
		Model:  flagModel,
		Middleware: []llm.Middleware{
			llm.RateLimitMiddleware(rate.Limit(10), 20),
			llm.RetryMiddleware(3, 500*time.Millisecond, 10*time.Second),
			llm.TracingMiddleware("quorum"),
		},
	})
	if err != nil {
		return nil, err
	}

	generator, err := llm.NewGenerator(client, llm.GeneratorConfig{})
	if err != nil {
		return nil, err
	}
	verifier, err := buildVerifier(client)
	if err != nil {
		return nil, err
	}
	difficulty, err := llm.NewDifficultyEstimator(client)
	if err != nil {
		return nil, err
	}
	confidence, err := llm.NewConfidenceEstimator(client)
	if err != nil {
		return nil, err
	}

	return application.NewEngine(config, application.Dependencies{
		Generator:  generator,
		Verifier:   verifier,
		Difficulty: difficulty,
		Confidence: confidence,
		Logger:     logger,
	})
}

// buildVerifier picks deterministic matching when a ground truth is
// supplied, otherwise an LLM judge backed by the same client.
func buildVerifier(client ports.LLMClient) (ports.Verifier, error) {
	if flagGroundTruth != "" {
		exact, err := verifiers.NewDeterministicVerifier("exact", verifiers.DefaultDeterministicConfig(), "")
		if err != nil {
			return nil, err
		}
		return verifiers.WithGroundTruth(exact, flagGroundTruth), nil
	}
	return verifiers.NewLLMJudgeVerifier("judge", client, verifiers.DefaultLLMJudgeConfig())
}

func buildLogger() (*zap.Logger, error) {
	if flagVerbose {
		return zap.NewDevelopment()
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return config.Build()
}

func apiKeyFor(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "google":
		return os.Getenv("GEMINI_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
