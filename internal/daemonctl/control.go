// Package daemonctl orchestrates the daemon process from the CLI: launching,
// stopping with a force-kill fallback, restarting, and assembling status
// snapshots with offline fallbacks when the daemon is unreachable.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"showrunner/internal/api"
	"showrunner/internal/config"
	"showrunner/internal/daemonrun"
	"showrunner/internal/ipc"
	"showrunner/internal/preflight"
	"showrunner/internal/session"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Launch starts a detached showrunner daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon process unless one is already serving the
// socket. The daemon begins processing on boot, so a reachable socket with a
// running status means there is nothing to do.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if client, err := ipc.Dial(socketPath); err == nil {
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && status != nil && status.Running {
			return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
		}
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	defer client.Close()

	result := StartResult{State: StartStateStarted, Launched: true}
	if status, statusErr := client.Status(); statusErr == nil && status != nil {
		result.PID = status.PID
	}
	return result, nil
}

// WaitForShutdown waits for daemon IPC to disappear or report not-running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(200 * time.Millisecond)
			continue
		}
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && !status.Running {
			return nil
		}
		if statusErr != nil {
			lastErr = statusErr
		} else {
			lastErr = fmt.Errorf("daemon still running")
		}
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	pid := 0
	if status != nil {
		pid = status.PID
	}
	return true, pid, nil
}

// DeriveLogDir determines the daemon log directory from status and config hints.
func DeriveLogDir(lockPath, sessionDBPath string, cfg *config.Config) string {
	if lockPath != "" {
		return filepath.Dir(lockPath)
	}
	if sessionDBPath != "" {
		return filepath.Dir(sessionDBPath)
	}
	if cfg != nil && strings.TrimSpace(cfg.Paths.LogDir) != "" {
		return cfg.Paths.LogDir
	}
	return ""
}

// ForceKillProcess sends SIGKILL to the daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	data, err := os.ReadFile(pidPath)
	if err == nil {
		pidStr := strings.TrimSpace(string(data))
		if pidStr != "" {
			if parsed, parseErr := strconv.Atoi(pidStr); parseErr == nil && parsed > 0 {
				pid = parsed
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StopAndTerminate requests daemon shutdown and force-kills the process if
// still alive after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	statusResp, statusErr := client.Status()
	var lockPath, sessionDBPath string
	pid := 0
	if statusErr == nil && statusResp != nil {
		lockPath = statusResp.LockPath
		sessionDBPath = statusResp.SessionDBPath
		pid = statusResp.PID
	}
	resp, err := client.StopDaemon()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if resp != nil {
		result.StopAcknowledged = resp.Stopped
	}

	_ = WaitForShutdown(socketPath, gracePeriod)
	alive, livePID, aliveErr := ProcessInfo(socketPath)
	if aliveErr != nil {
		alive = false
	}
	if !alive {
		return result, nil
	}

	currentPID := livePID
	if currentPID == 0 {
		currentPID = pid
	}
	logDir := DeriveLogDir(lockPath, sessionDBPath, cfg)
	if logDir == "" {
		return result, fmt.Errorf("unable to determine daemon log directory")
	}
	pidPath := filepath.Join(logDir, daemonrun.PIDFileName)
	lockFile := filepath.Join(logDir, "showrunnerd.lock")
	killedPID, killErr := ForceKillProcess(pidPath, lockFile, currentPID)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Restart stops the daemon if running, then launches a fresh process.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(socketPath, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// for session stats and dependencies when the daemon is unreachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*ipc.StatusResponse, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	statusResp := &ipc.StatusResponse{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			statusResp = resp
		}
	}

	if !statusResp.Running {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		store, openErr := session.Open(cfg)
		if openErr == nil {
			stats, statsErr := store.Stats(queryCtx)
			_ = store.Close()
			if statsErr == nil {
				statusResp.SessionStats = make(map[string]int, len(stats))
				for status, count := range stats {
					statusResp.SessionStats[string(status)] = count
				}
			}
		}
	}

	if len(statusResp.Dependencies) == 0 {
		statusResp.Dependencies = ResolveDependencies(ctx, cfg)
	}
	for i := range statusResp.Dependencies {
		if strings.TrimSpace(statusResp.Dependencies[i].Severity) != "" {
			continue
		}
		statusResp.Dependencies[i].Severity = dependencySeverity(statusResp.Dependencies[i].Available, statusResp.Dependencies[i].Optional)
	}

	statusResp.SystemChecks = BuildSystemChecks(cfg, statusResp.Running)
	statusResp.Summary = BuildDependencySummary(statusResp.Dependencies)
	return statusResp, nil
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

func dependencySeverity(available, optional bool) string {
	if available {
		return "ok"
	}
	if optional {
		return "warn"
	}
	return "error"
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(ctx context.Context, cfg *config.Config) []api.DependencyStatus {
	if cfg == nil {
		return nil
	}

	checks := preflight.CheckSystemDeps(ctx, cfg)
	statuses := make([]api.DependencyStatus, 0, len(checks)+1)
	for _, check := range checks {
		statuses = append(statuses, api.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
			Severity:    dependencySeverity(check.Available, check.Optional),
		})
	}
	statuses = append(statuses, llmDependencyStatus(ctx, cfg))
	return statuses
}

func llmDependencyStatus(ctx context.Context, cfg *config.Config) api.DependencyStatus {
	status := api.DependencyStatus{
		Name:        "Narrative LLM",
		Description: "LLM endpoint for content analysis and narrative generation",
		Severity:    "error",
	}
	llmCfg := cfg.GetLLM()
	if llmCfg.APIKey == "" {
		status.Detail = "API key missing (set llm.api_key)"
		return status
	}
	result := preflight.CheckLLM(ctx, "Narrative LLM", llmCfg)
	status.Available = result.Passed
	status.Detail = result.Detail
	if status.Available {
		status.Severity = "ok"
	}
	return status
}

// BuildSystemChecks resolves status lines combining runtime state and config checks.
func BuildSystemChecks(cfg *config.Config, daemonRunning bool) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 4)
	if daemonRunning {
		lines = append(lines, api.StatusLine{Label: "Showrunner", Severity: "ok", Detail: "Running"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Showrunner", Severity: "warn", Detail: "Not running (run `showrunner start`)"})
	}

	workspace := preflight.CheckDirectoryAccess("Workspace", cfg.Paths.WorkspaceDir)
	lines = append(lines, statusLineFromResult("Workspace", workspace.Passed, workspace.Detail))

	if strings.TrimSpace(cfg.Paths.LibraryDir) != "" {
		library := preflight.CheckDirectoryAccess("Library", cfg.Paths.LibraryDir)
		lines = append(lines, statusLineFromResult("Library", library.Passed, library.Detail))
	}

	voice := preflight.CheckVoiceModel(cfg.TTS.VoicePath)
	lines = append(lines, statusLineFromResult("TTS voice", voice.Passed, voice.Detail))

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: "info", Detail: "Not configured"})
	}

	return lines
}

func statusLineFromResult(label string, passed bool, detail string) api.StatusLine {
	severity := "error"
	if passed {
		severity = "ok"
	}
	return api.StatusLine{Label: label, Severity: severity, Detail: detail}
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []api.DependencyStatus) api.DependencySummary {
	if len(deps) == 0 {
		return api.DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return api.DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
