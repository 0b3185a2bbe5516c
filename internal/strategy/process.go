package strategy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrSignalTimeout is returned when the companion process does not answer in time.
var ErrSignalTimeout = errors.New("signal process timed out")

// ProcessSignaler talks to a companion process over stdin/stdout. The process
// prints READY once, then answers each JSON request line with either a bare
// BUY/SELL/HOLD token or a JSON object with signal/confidence/reason.
type ProcessSignaler struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan string
	timeout time.Duration
	logger  zerolog.Logger
}

type processRequest struct {
	Prices     []float64 `json:"prices"`
	StrategyID int       `json:"strategyId"`
	AssetID    string    `json:"assetId"`
}

// StartProcess launches argv and waits for its READY line.
func StartProcess(ctx context.Context, argv []string, timeout time.Duration) (*ProcessSignaler, error) {
	if len(argv) == 0 {
		return nil, errors.New("signal process command is empty")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start signal process: %w", err)
	}

	p := &ProcessSignaler{
		cmd:     cmd,
		stdin:   stdin,
		lines:   make(chan string, 16),
		timeout: timeout,
		logger:  log.With().Str("component", "signal-process").Logger(),
	}
	go p.readLoop(stdout)

	select {
	case line, ok := <-p.lines:
		if !ok || strings.TrimSpace(line) != "READY" {
			p.Close()
			return nil, fmt.Errorf("signal process did not report READY (got %q)", line)
		}
	case <-time.After(timeout):
		p.Close()
		return nil, ErrSignalTimeout
	}
	p.logger.Info().Strs("cmd", argv).Msg("signal process ready")
	return p, nil
}

func (p *ProcessSignaler) readLoop(r io.Reader) {
	defer close(p.lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.lines <- sc.Text()
	}
}

// Signal sends one request and waits for one reply line.
func (p *ProcessSignaler) Signal(ctx context.Context, strategyID int, assetID string, prices []float64) (SignalResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Drop replies that arrived after an earlier request timed out.
	for drained := false; !drained; {
		select {
		case _, ok := <-p.lines:
			if !ok {
				return SignalResult{}, errors.New("signal process exited")
			}
		default:
			drained = true
		}
	}

	req, err := json.Marshal(processRequest{Prices: prices, StrategyID: strategyID, AssetID: assetID})
	if err != nil {
		return SignalResult{}, err
	}
	if _, err := p.stdin.Write(append(req, '\n')); err != nil {
		return SignalResult{}, fmt.Errorf("write signal request: %w", err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case line, ok := <-p.lines:
		if !ok {
			return SignalResult{}, errors.New("signal process exited")
		}
		return parseProcessReply(line, strategyID)
	case <-timer.C:
		return SignalResult{}, ErrSignalTimeout
	case <-ctx.Done():
		return SignalResult{}, ctx.Err()
	}
}

func parseProcessReply(line string, strategyID int) (SignalResult, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "ERROR") {
		return SignalResult{}, fmt.Errorf("signal process: %s", line)
	}
	if strings.HasPrefix(line, "{") {
		var res SignalResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			return SignalResult{}, fmt.Errorf("malformed signal reply: %w", err)
		}
		sig, ok := ParseSignal(strings.ToUpper(string(res.Signal)))
		if !ok {
			return SignalResult{}, fmt.Errorf("malformed signal %q", res.Signal)
		}
		res.Signal = sig
		if res.StrategyID == 0 {
			res.StrategyID = strategyID
		}
		return res, nil
	}
	sig, ok := ParseSignal(strings.ToUpper(line))
	if !ok {
		return SignalResult{}, fmt.Errorf("malformed signal %q", line)
	}
	return SignalResult{Signal: sig, StrategyID: strategyID, Reason: "external signal process"}, nil
}

// Close stops the companion process.
func (p *ProcessSignaler) Close() error {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
