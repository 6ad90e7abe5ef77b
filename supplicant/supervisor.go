// Package supplicant owns the wpa_supplicant child process: writing its
// config file, cleaning its control directory, spawning and watching it,
// and reconnecting the wpa control-socket transport, retrying the connect
// until it succeeds or the session is torn down; respawns are bounded.
package supplicant

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/Arceliar/phony"
	"golang.org/x/sys/unix"

	"github.com/robertdigital/aethercast/wpa"
)

// Delegate receives the lifecycle signals a coordinator needs to react to.
type Delegate interface {
	// OnSupplicantReady is called once the control socket is connected
	// and the ATTACH, SET wifi_display and WFD_SUBELEM_SET requests have
	// been queued; it does not wait for their replies.
	OnSupplicantReady(queue *wpa.CommandQueue)
	// OnSupplicantLost is called when the process dies or the socket
	// hangs up; the supervisor has already torn everything down and may
	// be scheduling a respawn.
	OnSupplicantLost()
}

// Supervisor spawns, watches, and respawns wpa_supplicant, and owns the
// connect-retry loop that brings the wpa.Conn/wpa.CommandQueue pair up
// after each spawn. It is a phony.Inbox actor, so spawn, watch, connect,
// and respawn callbacks never race each other.
type Supervisor struct {
	phony.Inbox

	interfaceName string
	ctrlDir       string
	cfg           config
	logger        *slog.Logger
	delegate      Delegate

	cmd           *exec.Cmd
	conn          *wpa.Conn
	queue         *wpa.CommandQueue
	onEvent       func(wpa.Message)
	respawnBudget int
	respawnTimer  *time.Timer
	connectTimer  *time.Timer
}

// New creates a supervisor for interfaceName. onEvent receives unsolicited
// supplicant events once a session is up; it is forwarded verbatim to the
// session's wpa.CommandQueue.
func New(interfaceName string, delegate Delegate, onEvent func(wpa.Message), logger *slog.Logger, opts ...Option) *Supervisor {
	var cfg config
	configDefaults()(&cfg)
	for _, opt := range opts {
		opt(&cfg)
	}
	ctrlDir := cfg.ctrlDir
	if ctrlDir == "" {
		ctrlDir = fmt.Sprintf("/var/run/%s_supplicant", interfaceName)
	}
	return &Supervisor{
		interfaceName: interfaceName,
		ctrlDir:       ctrlDir,
		cfg:           cfg,
		logger:        logger,
		delegate:      delegate,
		onEvent:       onEvent,
		respawnBudget: cfg.respawnLimit,
	}
}

// Running reports whether a supplicant process is currently alive.
func (s *Supervisor) Running() bool {
	var running bool
	phony.Block(s, func() { running = s.cmd != nil })
	return running
}

// RespawnBudget returns the number of involuntary-death respawns still
// available. The coordinator reads it to tell a recoverable loss from an
// exhausted budget.
func (s *Supervisor) RespawnBudget() int {
	var budget int
	phony.Block(s, func() { budget = s.respawnBudget })
	return budget
}

// Start writes the config file, cleans the control directory, spawns the
// process, and schedules the first connect attempt. It returns an error
// only for failures that make spawning itself impossible.
func (s *Supervisor) Start() error {
	var startErr error
	phony.Block(s, func() { startErr = s._start() })
	return startErr
}

func (s *Supervisor) _start() error {
	confPath := fmt.Sprintf("/tmp/supplicant-%s.conf", s.interfaceName)
	if err := writeConfig(confPath, s.cfg.deviceName); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to create supplicant config file", slog.String("error", err.Error()))
		}
		return err
	}

	if err := os.RemoveAll(s.ctrlDir); err != nil && s.logger != nil {
		s.logger.Warn("failed to remove control directory, will cause problems", slog.String("dir", s.ctrlDir), slog.String("error", err.Error()))
	}

	args := []string{
		"-Dnl80211",
		"-i" + s.interfaceName,
		"-C" + s.ctrlDir,
		"-ddd",
		"-t",
		"-K",
		"-c" + confPath,
		"-W",
	}
	cmd := exec.Command(s.cfg.binaryPath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: unix.SIGKILL}
	if os.Getenv("MIRACAST_SUPPLICANT_DEBUG") != "" {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to spawn wpa_supplicant", slog.String("error", err.Error()))
		}
		return err
	}
	s.cmd = cmd

	go s.watch(cmd)
	s.scheduleConnect(s.cfg.connectRetryDelay)
	return nil
}

func (s *Supervisor) watch(cmd *exec.Cmd) {
	err := cmd.Wait()
	s.Act(nil, func() {
		if s.cmd != cmd {
			// A newer session has already replaced this one.
			return
		}
		exitCode := exitCodeOf(err)
		if s.logger != nil {
			s.logger.Warn("supplicant process exited", slog.Int("exit_code", exitCode))
		}
		if exitCode != 0 {
			s.handleFailure()
		}
	})
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func (s *Supervisor) scheduleConnect(delay time.Duration) {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
	}
	s.connectTimer = time.AfterFunc(delay, func() {
		s.Act(nil, func() { s.tryConnect() })
	})
}

func (s *Supervisor) tryConnect() {
	var conn *wpa.Conn
	conn, err := wpa.Dial(s.ctrlDir, s.interfaceName, s.handleMessage, func(error) {
		s.Act(nil, func() { s.handleTransportDown(conn) })
	}, s.logger)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to connect to supplicant control socket, retrying", slog.String("error", err.Error()))
		}
		s.scheduleConnect(s.cfg.connectRetryDelay)
		return
	}

	queue := wpa.NewCommandQueue(conn, s.onEvent)
	s.conn = conn
	s.queue = queue

	queue.Enqueue(wpa.NewRequest("ATTACH"), func(reply wpa.Message, err error) {
		if err != nil || reply.IsFail() {
			if s.logger != nil {
				s.logger.Warn("failed to attach to supplicant for unsolicited events")
			}
		}
	})
	queue.Enqueue(wpa.NewRequest("SET").Append("wifi_display").AppendInt(1), nil)
	for i, element := range s.cfg.wfdSubElements {
		queue.Enqueue(wpa.NewRequest("WFD_SUBELEM_SET").AppendInt(int64(i)).Append(element), nil)
	}

	s.respawnBudget = s.cfg.respawnLimit
	if s.delegate != nil {
		s.delegate.OnSupplicantReady(queue)
	}
}

func (s *Supervisor) handleMessage(m wpa.Message) {
	s.Act(nil, func() {
		if s.queue != nil {
			s.queue.Dispatch(m)
		}
	})
}

// handleTransportDown runs on the actor when conn reports itself closed.
// The Close in disconnect also reports here; by then conn is no longer the
// live session, so only a hangup of the live session counts as a failure.
func (s *Supervisor) handleTransportDown(conn *wpa.Conn) {
	if conn == nil || s.conn != conn {
		return
	}
	s.handleFailure()
}

// handleFailure schedules a respawn iff budget remains (only a scheduled
// respawn consumes budget, not every failure), tears down the dead
// session, and notifies the delegate so it can reset higher-level state.
func (s *Supervisor) handleFailure() {
	if s.respawnBudget > 0 {
		if s.respawnTimer != nil {
			s.respawnTimer.Stop()
		}
		s.respawnBudget--
		s.respawnTimer = time.AfterFunc(s.cfg.respawnDelay, func() {
			s.Act(nil, func() { s.onRespawnTimer() })
		})
	}

	s.disconnect()
	s.stopProcess()

	if s.delegate != nil {
		s.delegate.OnSupplicantLost()
	}
}

func (s *Supervisor) onRespawnTimer() {
	if err := s._start(); err != nil && s.respawnBudget > 0 {
		s.respawnBudget--
		s.respawnTimer = time.AfterFunc(s.cfg.respawnDelay, func() {
			s.Act(nil, func() { s.onRespawnTimer() })
		})
	}
}

func (s *Supervisor) disconnect() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.queue = nil
}

func (s *Supervisor) stopProcess() {
	if s.cmd == nil {
		return
	}
	_ = s.cmd.Process.Kill()
	s.cmd = nil
}

// Stop disconnects the transport and kills the supervised process, if
// any. Unlike handleFailure this does not schedule a respawn.
func (s *Supervisor) Stop() {
	phony.Block(s, func() {
		if s.respawnTimer != nil {
			s.respawnTimer.Stop()
			s.respawnTimer = nil
		}
		s.disconnect()
		s.stopProcess()
	})
}

// Enqueue forwards a request to the active session's command queue. If no
// session is currently connected the request is dropped and handler, when
// non-nil, is called with an error.
func (s *Supervisor) Enqueue(request wpa.Message, handler wpa.ReplyHandler) {
	phony.Block(s, func() {
		if s.queue != nil {
			s.queue.Enqueue(request, handler)
		} else if handler != nil {
			handler(wpa.Message{}, fmt.Errorf("supplicant: no active session"))
		}
	})
}

func writeConfig(path, deviceName string) error {
	contents := fmt.Sprintf(
		"# GENERATED - DO NOT EDIT!\nconfig_methods=pbc\nap_scan=1\ndevice_name=%s\n",
		deviceName,
	)
	return os.WriteFile(path, []byte(contents), 0o644)
}
