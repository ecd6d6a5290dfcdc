//go:build !headless

package audiodev

import (
	"time"

	"entrevistas-live-client/internal/service/capture"
	"entrevistas-live-client/internal/service/capture/device"
	"entrevistas-live-client/internal/service/playback"
	"entrevistas-live-client/internal/service/playback/speaker"
)

func inputDevice(format capture.Format, period time.Duration) (capture.Microphone, func()) {
	mic := device.NewMalgoMicrophone(format, period)
	return mic, mic.Close
}

func outputDevice() (playback.Sink, func()) {
	sink := speaker.NewSink()
	return sink, sink.Close
}
