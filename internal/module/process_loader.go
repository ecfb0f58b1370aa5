package module

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/dicom"
	"github.com/oriongate/dicomdispatch/internal/moduleproto"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

// ProcessLoader is the production Loader: it spawns the module's code
// file as a subprocess and speaks moduleproto over its stdin/stdout, per
// spec.md §9's Design Notes on out-of-process plugin isolation. Module
// stderr is streamed line-by-line into logger so a crashing module's
// traceback still reaches the operator.
type ProcessLoader struct {
	logger *slog.Logger
}

func NewProcessLoader(logger *slog.Logger) *ProcessLoader {
	return &ProcessLoader{logger: logger}
}

// Load starts codePath as a subprocess and performs the init handshake,
// sending cfg as the module's configuration. The process is killed and
// an error returned if it exits or fails to reply before the context
// from the Registry's crawl is done.
func (pl *ProcessLoader) Load(ctx context.Context, codePath string, cfg config.ModuleConfig) (Implementation, error) {
	cmd := exec.CommandContext(ctx, codePath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening module stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening module stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening module stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting module process %s: %w", codePath, err)
	}

	impl := &processImplementation{
		cmd:    cmd,
		stdin:  stdin,
		writer: moduleproto.NewWriter(stdin),
		reader: moduleproto.NewReader(stdout),
		logger: pl.logger,
	}
	go impl.drainStderr(stderr)

	params, err := json.Marshal(moduleproto.InitParams{Config: configToMap(cfg)})
	if err != nil {
		_ = impl.Close()
		return nil, fmt.Errorf("encoding init params: %w", err)
	}
	if err := impl.call(moduleproto.MethodInit, params, nil); err != nil {
		_ = impl.Close()
		return nil, fmt.Errorf("module init failed for %s: %w", codePath, err)
	}
	return impl, nil
}

// configToMap flattens a ModuleConfig into the generic map a module's
// init call receives, matching the original's plain dict constructor
// argument (oai_modules load_module passes the raw parsed JSON object).
func configToMap(cfg config.ModuleConfig) map[string]any {
	return map[string]any{
		"TriggerLevel":    string(cfg.TriggerLevel),
		"ClassName":       cfg.ClassName,
		"CallingAET":      cfg.CallingAET,
		"DestinationName": cfg.DestinationName,
		"Filters":         cfg.Filters,
		"NegativeFilters": cfg.NegativeFilters,
	}
}

// processImplementation is the running subprocess for one loaded module.
// Calls are serialized with a mutex: the dispatcher only ever issues one
// process call per module at a time, but the mutex keeps that an
// invariant of this type rather than an assumption about its caller.
type processImplementation struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *moduleproto.Writer
	reader *moduleproto.Reader
	logger *slog.Logger

	mu     sync.Mutex
	nextID int32
	closed bool
}

func (p *processImplementation) Process(ctx context.Context, files restree.Files, remoteAET string) ([]dicom.Object, error) {
	params, err := json.Marshal(moduleproto.ProcessParams{
		Files:     moduleproto.ToWire(files),
		RemoteAET: remoteAET,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding process params: %w", err)
	}

	var result moduleproto.ProcessResult
	if err := p.call(moduleproto.MethodProcess, params, &result); err != nil {
		return nil, err
	}
	return moduleproto.FromWireInstances(result.Instances), nil
}

func (p *processImplementation) call(method string, params json.RawMessage, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("module process already closed")
	}

	id := int(atomic.AddInt32(&p.nextID, 1))
	if err := p.writer.WriteRequest(moduleproto.Request{ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("writing %s request: %w", method, err)
	}

	resp, err := p.reader.ReadResponse()
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("module returned error: %s", resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

func (p *processImplementation) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		p.logger.Warn("module stderr", "line", scanner.Text())
	}
}

func (p *processImplementation) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return p.cmd.Wait()
}
