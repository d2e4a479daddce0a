package backend

import (
	"context"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/fablerag/fablerag/internal/extract"
	"github.com/fablerag/fablerag/internal/procutil"
	"github.com/fablerag/fablerag/internal/telemetry"
)

// CLI adapts one external command-line generator to the Generator
// contract. The process shape and answer field priority are data: a
// command template with the prompt substituted as an argv element
// (never interpolated into a shell string), optionally piped into a
// second filtering process, and an ordered candidate field list fed to
// the extractor.
type CLI struct {
	name    string
	fields  []string
	timeout time.Duration
	logger  *zap.Logger

	// build renders the command(s) for a prompt. A non-nil filter
	// means the piped two-process form.
	build func(prompt string) (cmd procutil.Command, filter *procutil.Command)
}

// NewClaudeCLI probes for the claude binary and returns its adapter.
//
// Invocation: claude -p <prompt> --output-format json
func NewClaudeCLI(logger *zap.Logger, timeout time.Duration) (*CLI, error) {
	if err := probe(ProviderClaudeCLI, "claude"); err != nil {
		return nil, err
	}
	return &CLI{
		name:    ProviderClaudeCLI,
		fields:  []string{"result", "text", "content"},
		timeout: timeout,
		logger:  logger,
		build: func(prompt string) (procutil.Command, *procutil.Command) {
			return procutil.Command{
				Name: "claude",
				Args: []string{"-p", prompt, "--output-format", "json"},
			}, nil
		},
	}, nil
}

// NewGeminiCLI probes for the gemini binary and returns its adapter.
// model selects the Gemini model tier ("pro" by default).
//
// Invocation: gemini -p <prompt> -o json --model <model>
func NewGeminiCLI(logger *zap.Logger, timeout time.Duration, model string) (*CLI, error) {
	if err := probe(ProviderGeminiCLI, "gemini"); err != nil {
		return nil, err
	}
	if model == "" {
		model = "pro"
	}
	return &CLI{
		name:    ProviderGeminiCLI,
		fields:  []string{"response", "text", "content"},
		timeout: timeout,
		logger:  logger,
		build: func(prompt string) (procutil.Command, *procutil.Command) {
			return procutil.Command{
				Name: "gemini",
				Args: []string{"-p", prompt, "-o", "json", "--model", model},
			}, nil
		},
	}, nil
}

// NewCodexCLI probes for the codex and jq binaries and returns the
// chained adapter. Codex emits a JSON event stream; jq filters it down
// to the single completed agent message, whose item carries the answer.
//
// Invocation: codex exec <prompt> --json | jq 'select(...)'
func NewCodexCLI(logger *zap.Logger, timeout time.Duration) (*CLI, error) {
	if err := probe(ProviderCodexCLI, "codex"); err != nil {
		return nil, err
	}
	if err := probe(ProviderCodexCLI, "jq"); err != nil {
		return nil, err
	}
	return &CLI{
		name:    ProviderCodexCLI,
		fields:  []string{"item.content[0].text", "item.text", "item"},
		timeout: timeout,
		logger:  logger,
		build: func(prompt string) (procutil.Command, *procutil.Command) {
			return procutil.Command{
					Name: "codex",
					Args: []string{"exec", prompt, "--json"},
				}, &procutil.Command{
					Name: "jq",
					Args: []string{`select(.type=="item.completed" and .item.type=="agent_message")`},
				}
		},
	}, nil
}

// probe checks that a required program is on PATH.
func probe(backend, program string) error {
	if _, err := exec.LookPath(program); err != nil {
		return &UnavailableError{Backend: backend, Program: program}
	}
	return nil
}

// Name returns the provider identifier.
func (c *CLI) Name() string {
	return c.name
}

// Label returns the provider identifier; CLI backends have no model
// selection to report.
func (c *CLI) Label() string {
	return c.name
}

// Generate runs the backend's command with the prompt and extracts the
// answer from its stdout. Timeouts and process failures are logged and
// returned as errors; malformed output is not an error at all, the
// extractor degrades to raw text.
func (c *CLI) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := telemetry.StartLLMSpan(ctx, "backend.generate", c.name)
	defer span.End()
	span.SetInput(prompt)

	start := time.Now()

	cmd, filter := c.build(prompt)
	var res *procutil.Result
	var err error
	if filter != nil {
		res, err = procutil.InvokePiped(ctx, c.timeout, cmd, *filter)
	} else {
		res, err = procutil.Invoke(ctx, c.timeout, cmd)
	}
	if err != nil {
		c.logger.Warn("cli generation failed",
			zap.String("backend", c.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		span.SetError(err)
		return "", err
	}

	answer := extract.Extract(res.Stdout, c.fields)
	span.SetOutput(answer)
	return answer, nil
}
