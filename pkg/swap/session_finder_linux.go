//go:build linux
// +build linux

package swap

import (
	"fmt"
	"net"

	"github.com/godbus/dbus/v5"
	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

type paSessionFinder struct {
	logger        *zap.SugaredLogger
	sessionLogger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn

	// session bus for MPRIS transport commands; nil when unavailable,
	// in which case sessions still enumerate but commands fail softly
	bus *dbus.Conn
}

func newSessionFinder(logger *zap.SugaredLogger) (SessionFinder, error) {
	client, conn, err := proto.Connect("")
	if err != nil {
		logger.Warnw("Failed to establish PulseAudio connection", "error", err)
		return nil, fmt.Errorf("establish PulseAudio connection: %w", err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("yt-spotify-swap"),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		return nil, err
	}

	sf := &paSessionFinder{
		logger:        logger.Named("session_finder"),
		sessionLogger: logger.Named("sessions"),
		client:        client,
		conn:          conn,
	}

	if bus, err := dbus.SessionBus(); err == nil {
		sf.bus = bus
	} else {
		sf.logger.Warnw("Failed to connect to the session bus, playback control will be unavailable", "error", err)
	}

	sf.logger.Debug("Created PA session finder instance")

	return sf, nil
}

func (sf *paSessionFinder) GetAllSessions() ([]MediaSession, error) {
	sessions := []MediaSession{}

	request := proto.GetSinkInputInfoList{}
	reply := proto.GetSinkInputInfoListReply{}

	if err := sf.client.Request(&request, &reply); err != nil {
		sf.logger.Warnw("Failed to get sink input list", "error", err)
		return nil, fmt.Errorf("get sink input list: %w", err)
	}

	for _, info := range reply {
		if info == nil {
			continue
		}

		name, ok := info.Properties["application.process.binary"]
		if !ok {
			name, ok = info.Properties["application.name"]
		}
		if !ok {
			sf.logger.Debugw("Skipping sink input without an application identity",
				"sinkInputIndex", info.SinkInputIndex)
			continue
		}

		mediaRole := ""
		if roleProp, ok := info.Properties["media.role"]; ok {
			mediaRole = roleProp.String()
		}

		session := newPAMediaSession(sf.sessionLogger, sf.bus, name.String(), info.Corked, mediaRole)

		sessions = append(sessions, session)
	}

	return sessions, nil
}

func (sf *paSessionFinder) Release() error {
	if sf.bus != nil {
		if err := sf.bus.Close(); err != nil {
			sf.logger.Warnw("Failed to close session bus connection", "error", err)
		}
	}

	if err := sf.conn.Close(); err != nil {
		sf.logger.Warnw("Failed to close PulseAudio connection", "error", err)
		return fmt.Errorf("close PulseAudio connection: %w", err)
	}

	sf.logger.Debug("Released PA session finder instance")

	return nil
}
