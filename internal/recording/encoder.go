package recording

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Encoder merges ordered chunk files into one playable output.
type Encoder interface {
	Concat(ctx context.Context, inputs []string, output string) error
}

type commandRunner func(ctx context.Context, name string, args ...string) error

// FFmpeg concatenates webm chunks with the concat demuxer and re-encodes the
// audio to Opus in a webm container.
type FFmpeg struct {
	bin string
	run commandRunner
}

func NewFFmpeg(bin string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{bin: bin, run: defaultCommandRunner}
}

// WithCommandRunner replaces process execution; used by tests.
func (f *FFmpeg) WithCommandRunner(r commandRunner) {
	if r != nil {
		f.run = r
	}
}

// CheckAvailable reports whether the encoder binary can be found.
func (f *FFmpeg) CheckAvailable() error {
	if _, err := exec.LookPath(f.bin); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", f.bin, err)
	}
	return nil
}

func (f *FFmpeg) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return errNoChunks
	}
	dir := filepath.Dir(output)
	listPath := filepath.Join(dir, "chunks.txt")
	if err := writeConcatList(listPath, inputs); err != nil {
		return err
	}
	defer os.Remove(listPath)

	tmpPath := filepath.Join(dir, "recording.tmp.webm")
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-vn",
		"-c:a", "libopus",
		"-b:a", "64k",
		"-f", "webm",
		tmpPath,
	}
	if err := f.run(ctx, f.bin, args...); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg concat: %w", err)
	}
	if err := os.Rename(tmpPath, output); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move merged output into place: %w", err)
	}
	return nil
}

func writeConcatList(path string, inputs []string) error {
	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return err
		}
		// concat demuxer quoting: ' becomes '\''
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
