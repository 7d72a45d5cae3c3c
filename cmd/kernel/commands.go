package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kernelretry/pkg/completion"
	"kernelretry/pkg/config"
	"kernelretry/pkg/retry"
	"kernelretry/pkg/transport"
)

func newCompleteCmd() *cobra.Command {
	var (
		prompt      string
		system      string
		backends    []string
		apiKey      string
		model       string
		maxTokens   int
		countTokens bool
	)

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Send a prompt to one or more backends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, base := setup()
			log := base.WithComponent("kernel")

			policy, err := resolvePolicy(cfg)
			if err != nil {
				return err
			}

			exec, err := retry.NewExecutor(policy, base)
			if err != nil {
				return err
			}
			httpClient := transport.NewClient(exec, cfg.Client.Timeout)

			if len(backends) == 0 {
				backends = cfg.Client.BaseURLs
			}
			if apiKey == "" {
				apiKey = cfg.Client.APIKey
			}
			if model == "" {
				model = cfg.Client.Model
			}
			if system == "" {
				system = cfg.Client.System
			}

			var counter completion.TokenCounter
			if countTokens {
				tc, err := completion.NewTiktokenCounter()
				if err != nil {
					log.Warn("token estimation disabled", map[string]interface{}{
						"error": err.Error(),
					})
				} else {
					counter = tc
				}
			}

			clients := make([]*completion.Client, 0, len(backends))
			for _, url := range backends {
				clients = append(clients, completion.NewClient(completion.Config{
					Name:      url,
					BaseURL:   url,
					APIKey:    apiKey,
					Model:     model,
					MaxTokens: maxTokens,
				}, httpClient, base, counter))
			}

			log.Info("sending prompt", map[string]interface{}{
				"backends":     len(clients),
				"strategy":     policy.Strategy.String(),
				"max_attempts": policy.MaxAttempts,
				"status_codes": policy.RetryableStatusCodes,
			})

			results, err := completion.MultiComplete(cmd.Context(), clients, prompt, system)
			printResults(cmd, results)
			return err
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt to send.")
	cmd.Flags().StringVar(&system, "system", "", "Optional system message.")
	cmd.Flags().StringSliceVar(&backends, "backends", nil,
		"Comma separated base URLs of OpenAI compatible backends. Defaults to CLIENT_BASE_URLS.")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key. Defaults to CLIENT_API_KEY.")
	cmd.Flags().StringVar(&model, "model", "", "Model name. Defaults to CLIENT_MODEL.")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Upper bound on completion tokens, 0 for the backend default.")
	cmd.Flags().BoolVar(&countTokens, "count-tokens", false, "Estimate prompt tokens with the cl100k_base encoding.")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

func newPolicyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the effective retry policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _ := setup()

			policy, err := resolvePolicy(cfg)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(config.RetryConfig{
				MaxAttempts: policy.MaxAttempts,
				Strategy:    policy.Strategy.String(),
				BaseDelay:   policy.BaseDelay,
				MaxDelay:    policy.MaxDelay,
				StatusCodes: policy.RetryableStatusCodes,
			})
			if err != nil {
				return fmt.Errorf("failed to encode policy: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// resolvePolicy layers the policy file and the demo flag over the environment
func resolvePolicy(cfg *config.Config) (retry.Config, error) {
	rc := cfg.Retry
	if flagPolicyFile != "" {
		var err error
		if rc, err = config.LoadPolicyFile(flagPolicyFile, rc); err != nil {
			return retry.Config{}, err
		}
	}
	if flagDemo {
		rc.StatusCodes = append([]int(nil), retry.DemoStatusCodes...)
	}
	return rc.Policy()
}

func printResults(cmd *cobra.Command, results []*completion.Result) {
	out := cmd.OutOrStdout()
	for _, res := range results {
		if res == nil {
			continue
		}
		fmt.Fprintf(out, "[%s] %s\n", res.Backend, strings.TrimSpace(res.Text))
		fmt.Fprintf(out, "  model=%s prompt_tokens=%d completion_tokens=%d latency=%s",
			res.Model, res.PromptTokens, res.CompletionTokens, res.Latency.Round(time.Millisecond))
		if res.EstimatedPromptTokens > 0 {
			fmt.Fprintf(out, " estimated_prompt_tokens=%d", res.EstimatedPromptTokens)
		}
		fmt.Fprintln(out)
	}
}
