package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chronicler/mediastore/common/config"
	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/mediapath"
	"github.com/chronicler/mediastore/common/rules"
)

// Transformer rewrites a buffered file in place and returns its path.
// Implementations must leave the original untouched on failure.
type Transformer interface {
	Transform(ctx context.Context, path string) (string, error)
}

// NopTransformer passes files through unchanged
type NopTransformer struct{}

// Transform returns the path as-is
func (NopTransformer) Transform(ctx context.Context, path string) (string, error) {
	return path, nil
}

// ExecTransformer shells out to a configured command, writing to a sibling
// temp file and swapping it over the original only when the command
// succeeds. A crashed or timed-out command costs the temp file, never the
// buffered content.
type ExecTransformer struct {
	argv []string
	cfg  config.PostProcessConfig
	log  *logger.Logger
}

// NewExecTransformer parses the argv template. The template must contain
// the {in} and {out} placeholders.
func NewExecTransformer(cfg config.PostProcessConfig, log *logger.Logger) (*ExecTransformer, error) {
	argv := strings.Fields(cfg.Command)
	if len(argv) == 0 {
		return nil, errors.New("post-process command is empty")
	}
	var hasIn, hasOut bool
	for _, a := range argv {
		if strings.Contains(a, "{in}") {
			hasIn = true
		}
		if strings.Contains(a, "{out}") {
			hasOut = true
		}
	}
	if !hasIn || !hasOut {
		return nil, fmt.Errorf("post-process command must reference {in} and {out}: %q", cfg.Command)
	}
	return &ExecTransformer{argv: argv, cfg: cfg, log: log}, nil
}

// Transform runs the command against path and returns the path, which now
// holds the transformed bytes on success
func (t *ExecTransformer) Transform(ctx context.Context, path string) (string, error) {
	outPath := path + ".pp"

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	argv := make([]string, len(t.argv))
	for i, a := range t.argv {
		a = strings.ReplaceAll(a, "{in}", path)
		a = strings.ReplaceAll(a, "{out}", outPath)
		argv[i] = a
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// a killed command can leave children holding the output pipe;
	// WaitDelay bounds how long that keeps the call open
	cmd.WaitDelay = 5 * time.Second
	output, err := cmd.CombinedOutput()
	if err != nil {
		if rmErr := os.Remove(outPath); rmErr != nil && !os.IsNotExist(rmErr) {
			t.log.Warn("failed to remove transform output", "path", outPath, "error", rmErr)
		}
		return "", fmt.Errorf("post-process command failed: %w: %s", err, truncateOutput(output))
	}

	if err := os.Rename(outPath, path); err != nil {
		return "", fmt.Errorf("failed to swap transformed file: %w", err)
	}
	return path, nil
}

func truncateOutput(out []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(out))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// PostProcessor gates buffered files through a transformer. The gate is a
// CEL expression over the blob's mime, ext, filename and size; blobs it
// rejects pass through untouched.
type PostProcessor struct {
	cfg       config.PostProcessConfig
	evaluator *rules.Evaluator
	transform Transformer
	log       *logger.Logger
}

// NewPostProcessor builds the processor from config. Disabled config
// yields a processor that never touches a file.
func NewPostProcessor(cfg config.PostProcessConfig, log *logger.Logger) (*PostProcessor, error) {
	p := &PostProcessor{
		cfg:       cfg,
		evaluator: rules.NewEvaluator(),
		transform: NopTransformer{},
		log:       log,
	}
	if cfg.Enabled {
		t, err := NewExecTransformer(cfg, log)
		if err != nil {
			return nil, err
		}
		p.transform = t
	}
	return p, nil
}

// Process runs the gate and, when it matches, the transformer, returning
// the blob's on-disk size afterwards. The content hash computed at spool
// time stays the record's identity; only the stored bytes change. Transform
// failures are logged and leave the original in place; archival never fails
// because a transcode did.
func (p *PostProcessor) Process(ctx context.Context, path, filename, mimeType string, size int64) int64 {
	if !p.cfg.Enabled {
		return size
	}

	matched, err := p.evaluator.Evaluate(p.cfg.Gate, rules.Input{
		Mime:      mimeType,
		Ext:       mediapath.Ext(filename),
		Filename:  filename,
		SizeBytes: size,
	})
	if err != nil {
		p.log.Warn("post-process gate failed", "gate", p.cfg.Gate, "error", err)
		return size
	}
	if !matched {
		return size
	}

	if _, err := p.transform.Transform(ctx, path); err != nil {
		p.log.Warn("post-process transform failed, keeping original", "path", path, "error", err)
		return size
	}

	info, err := os.Stat(path)
	if err != nil {
		p.log.Warn("failed to stat transformed file", "path", path, "error", err)
		return size
	}

	p.log.Info("post-processed blob", "path", path, "size_before", size, "size_after", info.Size())
	return info.Size()
}
