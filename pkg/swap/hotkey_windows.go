//go:build windows
// +build windows

package swap

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"syscall"

	"github.com/lxn/win"
	"go.uber.org/zap"
)

var (
	hotkeyUser32   = syscall.NewLazyDLL("user32.dll")
	hotkeyKernel32 = syscall.NewLazyDLL("kernel32.dll")

	procRegisterHotKey     = hotkeyUser32.NewProc("RegisterHotKey")
	procUnregisterHotKey   = hotkeyUser32.NewProc("UnregisterHotKey")
	procPostThreadMessage  = hotkeyUser32.NewProc("PostThreadMessageW")
	procGetCurrentThreadId = hotkeyKernel32.NewProc("GetCurrentThreadId")
)

const (
	MOD_ALT      = 0x0001
	MOD_CONTROL  = 0x0002
	MOD_NOREPEAT = 0x4000

	VK_X = 0x58

	stopHotkeyID = 1
)

// stopHotkey registers a global ctrl+alt+x hotkey that triggers the
// stop callback from anywhere, console focus or not. RegisterHotKey
// and the message pump have to live on the same OS thread, so the
// whole lifetime runs on one locked goroutine.
type stopHotkey struct {
	logger    *zap.SugaredLogger
	onTrigger func()

	registered int32  // atomic
	threadID   uint32 // message pump thread, valid while registered
}

func newStopHotkey(logger *zap.SugaredLogger, onTrigger func()) *stopHotkey {
	return &stopHotkey{
		logger:    logger.Named("hotkey"),
		onTrigger: onTrigger,
	}
}

func (hk *stopHotkey) register() error {
	if !atomic.CompareAndSwapInt32(&hk.registered, 0, 1) {
		return nil
	}

	registerResult := make(chan error)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		threadID, _, _ := procGetCurrentThreadId.Call()
		hk.threadID = uint32(threadID)

		ret, _, lastErr := procRegisterHotKey.Call(
			0, // no window, deliver to this thread's queue
			stopHotkeyID,
			MOD_CONTROL|MOD_ALT|MOD_NOREPEAT,
			VK_X,
		)
		if ret == 0 {
			atomic.StoreInt32(&hk.registered, 0)
			registerResult <- fmt.Errorf("register hotkey: %w", lastErr)
			return
		}

		registerResult <- nil
		hk.logger.Infow("Global stop hotkey registered", "hotkey", "ctrl+alt+x")

		defer procUnregisterHotKey.Call(0, stopHotkeyID)

		var msg win.MSG
		for {
			if win.GetMessage(&msg, 0, 0, 0) <= 0 {
				// WM_QUIT or pump failure, either way we're done
				hk.logger.Debug("Hotkey message pump exiting")
				return
			}

			if msg.Message == win.WM_HOTKEY && msg.WParam == stopHotkeyID {
				hk.logger.Info("Stop hotkey pressed")
				hk.onTrigger()
			}
		}
	}()

	return <-registerResult
}

func (hk *stopHotkey) unregister() {
	if !atomic.CompareAndSwapInt32(&hk.registered, 1, 0) {
		return
	}

	// WM_QUIT makes GetMessage return 0, unwinding the pump goroutine
	procPostThreadMessage.Call(uintptr(hk.threadID), win.WM_QUIT, 0, 0)
	hk.logger.Debug("Global stop hotkey unregistered")
}
