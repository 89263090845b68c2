//go:build windows
// +build windows

package swap

import (
	"errors"
	"fmt"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"github.com/lxn/win"
	wca "github.com/moutend/go-wca"
	"go.uber.org/zap"
)

type wcaSessionFinder struct {
	logger        *zap.SugaredLogger
	sessionLogger *zap.SugaredLogger
}

func newSessionFinder(logger *zap.SugaredLogger) (SessionFinder, error) {
	sf := &wcaSessionFinder{
		logger:        logger.Named("session_finder"),
		sessionLogger: logger.Named("sessions"),
	}

	// make sure the core audio stack is actually reachable before the
	// loop is allowed to start; if this fails there's nothing to watch
	if err := sf.probeSessionManager(); err != nil {
		sf.logger.Warnw("Failed to acquire core audio session manager", "error", err)
		return nil, fmt.Errorf("acquire core audio session manager: %w", err)
	}

	sf.logger.Debug("Created WCA session finder instance")

	return sf, nil
}

func (sf *wcaSessionFinder) probeSessionManager() error {
	if err := sf.coInitialize(); err != nil {
		return err
	}
	defer ole.CoUninitialize()

	mmDeviceEnumerator, err := sf.getDeviceEnumerator()
	if err != nil {
		return err
	}
	defer mmDeviceEnumerator.Release()

	return nil
}

func (sf *wcaSessionFinder) GetAllSessions() ([]MediaSession, error) {
	sessions := []MediaSession{}

	// the loop goroutine isn't an STA thread, initialize COM per call
	// and tear it down when the snapshot is complete
	if err := sf.coInitialize(); err != nil {
		return nil, err
	}
	defer ole.CoUninitialize()

	mmDeviceEnumerator, err := sf.getDeviceEnumerator()
	if err != nil {
		return nil, err
	}
	defer mmDeviceEnumerator.Release()

	var defaultOutputEndpoint *wca.IMMDevice
	if err := mmDeviceEnumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &defaultOutputEndpoint); err != nil {
		sf.logger.Warnw("Failed to get default audio endpoint", "error", err)
		return nil, fmt.Errorf("get default audio endpoint: %w", err)
	}
	defer defaultOutputEndpoint.Release()

	var audioSessionManager2 *wca.IAudioSessionManager2
	if err := defaultOutputEndpoint.Activate(
		wca.IID_IAudioSessionManager2,
		wca.CLSCTX_ALL,
		nil,
		&audioSessionManager2,
	); err != nil {
		sf.logger.Warnw("Failed to activate audio session manager", "error", err)
		return nil, fmt.Errorf("activate audio session manager: %w", err)
	}
	defer audioSessionManager2.Release()

	var sessionEnumerator *wca.IAudioSessionEnumerator
	if err := audioSessionManager2.GetSessionEnumerator(&sessionEnumerator); err != nil {
		sf.logger.Warnw("Failed to get audio session enumerator", "error", err)
		return nil, fmt.Errorf("get audio session enumerator: %w", err)
	}
	defer sessionEnumerator.Release()

	var sessionCount int
	if err := sessionEnumerator.GetCount(&sessionCount); err != nil {
		sf.logger.Warnw("Failed to get audio session count", "error", err)
		return nil, fmt.Errorf("get audio session count: %w", err)
	}

	for sessionIdx := 0; sessionIdx < sessionCount; sessionIdx++ {

		var audioSessionControl *wca.IAudioSessionControl
		if err := sessionEnumerator.GetSession(sessionIdx, &audioSessionControl); err != nil {
			sf.logger.Warnw("Failed to get audio session control", "index", sessionIdx, "error", err)
			continue
		}

		dispatch, err := audioSessionControl.QueryInterface(wca.IID_IAudioSessionControl2)
		audioSessionControl.Release()
		if err != nil {
			sf.logger.Warnw("Failed to query session control 2 interface", "index", sessionIdx, "error", err)
			continue
		}

		audioSessionControl2 := (*wca.IAudioSessionControl2)(unsafe.Pointer(dispatch))

		var pid uint32
		if err := audioSessionControl2.GetProcessId(&pid); err != nil {
			// the system sounds session reports a pseudo-error here;
			// either way it can't be a browser or the player
			audioSessionControl2.Release()
			continue
		}

		if pid == 0 {
			audioSessionControl2.Release()
			continue
		}

		session, err := newWCAMediaSession(sf.sessionLogger, audioSessionControl2, pid)
		if err != nil {
			if !errors.Is(err, errNoSuchProcess) {
				sf.logger.Warnw("Failed to create media session", "pid", pid, "error", err)
			}
			continue
		}

		sessions = append(sessions, session)
	}

	return sessions, nil
}

func (sf *wcaSessionFinder) Release() error {
	sf.logger.Debug("Released WCA session finder instance")
	return nil
}

func (sf *wcaSessionFinder) coInitialize() error {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleError *ole.OleError
		// S_FALSE means COM is already initialized on this thread
		if errors.As(err, &oleError) && oleError.Code() == uintptr(win.S_FALSE) {
			return nil
		}

		sf.logger.Warnw("Failed to initialize COM", "error", err)
		return fmt.Errorf("initialize COM: %w", err)
	}

	return nil
}

func (sf *wcaSessionFinder) getDeviceEnumerator() (*wca.IMMDeviceEnumerator, error) {
	var mmDeviceEnumerator *wca.IMMDeviceEnumerator

	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator,
		0,
		wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator,
		&mmDeviceEnumerator,
	); err != nil {
		sf.logger.Warnw("Failed to create device enumerator", "error", err)
		return nil, fmt.Errorf("create device enumerator: %w", err)
	}

	return mmDeviceEnumerator, nil
}
