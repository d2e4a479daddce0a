package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fablerag/fablerag/internal/procutil"
)

func nopLogger() *zap.Logger {
	return zap.NewNop()
}

// fakeCLI builds an adapter whose command is a shell one-liner, so the
// full invoke-extract path runs without any real backend installed.
func fakeCLI(name string, fields []string, script string) *CLI {
	return &CLI{
		name:    name,
		fields:  fields,
		timeout: 5 * time.Second,
		logger:  nopLogger(),
		build: func(prompt string) (procutil.Command, *procutil.Command) {
			return procutil.Command{Name: "sh", Args: []string{"-c", script}}, nil
		},
	}
}

func TestCLIGenerateExtractsAnswer(t *testing.T) {
	c := fakeCLI(ProviderClaudeCLI, []string{"result", "text", "content"},
		`echo '{"type": "result", "result": "The moral is honesty.", "cost_usd": 0.01}'`)

	got, err := c.Generate(context.Background(), "What can we learn about honesty?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "The moral is honesty." {
		t.Errorf("Generate() = %q", got)
	}
}

func TestCLIGeneratePlainTextOutput(t *testing.T) {
	c := fakeCLI(ProviderGeminiCLI, []string{"response", "text", "content"},
		`echo 'Honesty builds trust over time.'`)

	got, err := c.Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Honesty builds trust over time." {
		t.Errorf("Generate() = %q", got)
	}
}

func TestCLIGenerateProcessFailure(t *testing.T) {
	c := fakeCLI(ProviderClaudeCLI, []string{"result"}, `echo 'auth expired' >&2; exit 1`)

	_, err := c.Generate(context.Background(), "q")
	var exitErr *procutil.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
}

func TestCLIGenerateTimeout(t *testing.T) {
	c := fakeCLI(ProviderClaudeCLI, []string{"result"}, `sleep 10`)
	c.timeout = 200 * time.Millisecond

	start := time.Now()
	_, err := c.Generate(context.Background(), "q")
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Generate took %s after timeout", elapsed)
	}

	var timeoutErr *procutil.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestCLIGeneratePiped(t *testing.T) {
	c := &CLI{
		name:    ProviderCodexCLI,
		fields:  []string{"item.content[0].text", "item.text", "item"},
		timeout: 5 * time.Second,
		logger:  nopLogger(),
		build: func(prompt string) (procutil.Command, *procutil.Command) {
			return procutil.Command{
					Name: "sh",
					Args: []string{"-c", `echo '{"type":"item.completed","item":{"type":"agent_message","content":[{"type":"text","text":"piped moral"}]}}'`},
				}, &procutil.Command{
					Name: "cat",
				}
		},
	}

	got, err := c.Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "piped moral" {
		t.Errorf("Generate() = %q", got)
	}
}

func TestCLIConstructorsProbeMissingBinaries(t *testing.T) {
	// None of the real CLIs are expected in the test environment; a
	// present binary just skips its case.
	constructors := map[string]func() (Generator, error){
		ProviderClaudeCLI: func() (Generator, error) { return NewClaudeCLI(nopLogger(), 0) },
		ProviderGeminiCLI: func() (Generator, error) { return NewGeminiCLI(nopLogger(), 0, "") },
		ProviderCodexCLI:  func() (Generator, error) { return NewCodexCLI(nopLogger(), 0) },
	}

	for name, construct := range constructors {
		g, err := construct()
		if err == nil {
			t.Logf("%s binary present, probe passed", name)
			if g.Name() != name {
				t.Errorf("Name() = %q, want %q", g.Name(), name)
			}
			continue
		}
		var unavailable *UnavailableError
		if !errors.As(err, &unavailable) {
			t.Errorf("%s: expected UnavailableError, got %v", name, err)
		}
	}
}

func TestCLIPromptTravelsAsArgv(t *testing.T) {
	var seen string
	c := &CLI{
		name:    ProviderClaudeCLI,
		fields:  []string{"result"},
		timeout: 5 * time.Second,
		logger:  nopLogger(),
		build: func(prompt string) (procutil.Command, *procutil.Command) {
			seen = prompt
			return procutil.Command{Name: "echo", Args: []string{prompt}}, nil
		},
	}

	prompt := `a "quoted" prompt; with | shell $chars`
	got, err := c.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if seen != prompt {
		t.Errorf("prompt altered before invocation: %q", seen)
	}
	if got != prompt {
		t.Errorf("Generate() = %q, want the echoed prompt verbatim", got)
	}
}
