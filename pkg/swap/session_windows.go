//go:build windows
// +build windows

package swap

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"unsafe"

	"github.com/lxn/win"
	ps "github.com/mitchellh/go-ps"
	wca "github.com/moutend/go-wca"
	"go.uber.org/zap"
)

var errNoSuchProcess = errors.New("no such process")
var errNoSessionWindow = errors.New("no top-level window for session process")

var (
	sessionUser32   = syscall.NewLazyDLL("user32.dll")
	procEnumWindows = sessionUser32.NewProc("EnumWindows")
)

const (
	// WM_APPCOMMAND and the transport commands we send through it;
	// the command rides in the high word of lParam
	wmAppCommand         = 0x0319
	appCommandMediaPlay  = 46
	appCommandMediaPause = 47

	gwOwner = 4
)

type wcaMediaSession struct {
	baseSession

	pid         uint32
	processName string

	control *wca.IAudioSessionControl2
}

func newWCAMediaSession(
	logger *zap.SugaredLogger,
	control *wca.IAudioSessionControl2,
	pid uint32,
) (*wcaMediaSession, error) {

	s := &wcaMediaSession{
		control: control,
		pid:     pid,
	}

	// find our session's process name
	process, err := ps.FindProcess(int(pid))
	if err != nil {
		logger.Warnw("Failed to find process name by ID", "pid", pid, "error", err)
		defer s.Release()

		return nil, fmt.Errorf("find process name by pid: %w", err)
	}

	// this PID may be invalid - this means the process has already been
	// closed and we shouldn't create a session for it.
	if process == nil {
		logger.Debugw("Process already exited, not creating media session", "pid", pid)
		return nil, errNoSuchProcess
	}

	s.processName = process.Executable()
	s.name = s.processName
	s.humanReadableDesc = fmt.Sprintf("%s (pid %d)", s.processName, s.pid)

	// use a self-identifying session name e.g. swap.sessions.chrome
	s.logger = logger.Named(strings.TrimSuffix(s.Identity(), ".exe"))
	s.logger.Debugw(sessionCreationLogMessage, "session", s)

	return s, nil
}

// Status maps the core audio session state onto playback status: a
// session actively rendering audio is playing, one that exists but is
// silent is paused. Coarser than a real transport status, but the
// policy only needs playing / not-playing / unknown.
func (s *wcaMediaSession) Status() (PlaybackStatus, error) {
	var state uint32
	if err := s.control.GetState(&state); err != nil {
		return StatusClosed, fmt.Errorf("get session state: %w", err)
	}

	switch state {
	case wca.AudioSessionStateActive:
		return StatusPlaying, nil
	case wca.AudioSessionStateInactive:
		return StatusPaused, nil
	case wca.AudioSessionStateExpired:
		return StatusStopped, nil
	default:
		return StatusClosed, fmt.Errorf("unexpected session state %d", state)
	}
}

func (s *wcaMediaSession) TryPause() error {
	return s.sendMediaCommand(appCommandMediaPause)
}

func (s *wcaMediaSession) TryPlay() error {
	return s.sendMediaCommand(appCommandMediaPlay)
}

// sendMediaCommand posts a WM_APPCOMMAND transport command to the
// session process's main window. Most players (Spotify included)
// honor these even without focus.
func (s *wcaMediaSession) sendMediaCommand(command uintptr) error {
	hwnd := findMainWindow(s.pid)
	if hwnd == 0 {
		return errNoSessionWindow
	}

	win.SendMessage(hwnd, wmAppCommand, uintptr(hwnd), command<<16)

	s.logger.Debugw("Sent media command to session window", "command", command, "hwnd", hwnd)

	return nil
}

func (s *wcaMediaSession) Release() {
	s.logger.Debug("Releasing media session")

	s.control.Release()
}

type enumWindowsQuery struct {
	pid  uint32
	hwnd win.HWND
}

var enumWindowsCallback = syscall.NewCallback(func(hwnd uintptr, lparam uintptr) uintptr {
	query := (*enumWindowsQuery)(unsafe.Pointer(lparam))

	var windowPid uint32
	win.GetWindowThreadProcessId(win.HWND(hwnd), &windowPid)

	if windowPid != query.pid || !win.IsWindowVisible(win.HWND(hwnd)) {
		return 1 // keep enumerating
	}

	// owned windows (dialogs etc.) don't receive appcommands reliably
	if win.GetWindow(win.HWND(hwnd), gwOwner) != 0 {
		return 1
	}

	query.hwnd = win.HWND(hwnd)
	return 0
})

// findMainWindow returns the first visible unowned top-level window
// belonging to the given process, or 0 when there is none.
func findMainWindow(pid uint32) win.HWND {
	query := enumWindowsQuery{pid: pid}
	procEnumWindows.Call(enumWindowsCallback, uintptr(unsafe.Pointer(&query)))

	return query.hwnd
}
