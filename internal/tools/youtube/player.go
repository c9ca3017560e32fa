package youtube

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
)

// ExecPlayer is a [Player] that runs an external command such as mplayer
// with the file appended to its arguments. Playback outlives the tool call
// that started it and ends when the command exits, on Stop or on Close.
type ExecPlayer struct {
	command []string

	op   sync.Mutex // serialises Play and Stop
	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewExecPlayer returns a player running command (default ["mplayer"]).
func NewExecPlayer(command []string) *ExecPlayer {
	if len(command) == 0 {
		command = []string{"mplayer"}
	}
	return &ExecPlayer{command: command}
}

// Play implements Player.
func (p *ExecPlayer) Play(path string) error {
	if path == "" {
		return errors.New("player: path is required")
	}
	p.op.Lock()
	defer p.op.Unlock()
	p.stop()

	args := append(append([]string(nil), p.command[1:]...), path)
	cmd := exec.Command(p.command[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("player: start %s: %w", p.command[0], err)
	}
	done := make(chan struct{})
	p.mu.Lock()
	p.cmd, p.done = cmd, done
	p.mu.Unlock()

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		if p.cmd == cmd {
			p.cmd, p.done = nil, nil
		}
		p.mu.Unlock()
		close(done)
		slog.Debug("player: exited", "path", path, "err", err)
	}()
	return nil
}

// Stop implements Player. It waits for the process to exit.
func (p *ExecPlayer) Stop() {
	p.op.Lock()
	defer p.op.Unlock()
	p.stop()
}

func (p *ExecPlayer) stop() {
	p.mu.Lock()
	cmd, done := p.cmd, p.done
	p.cmd, p.done = nil, nil
	p.mu.Unlock()
	if cmd == nil {
		return
	}
	_ = cmd.Process.Kill()
	<-done
}

// Playing implements Player.
func (p *ExecPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// Close stops playback.
func (p *ExecPlayer) Close() error {
	p.Stop()
	return nil
}

var _ Player = (*ExecPlayer)(nil)
