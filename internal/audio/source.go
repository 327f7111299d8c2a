package audio

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
)

const frameDuration = 20 * time.Millisecond

// ToneSource is the headless client's stand-in for platform media capture:
// a continuous sine tone encoded as an Opus track.
type ToneSource struct {
	logger *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

func NewToneSource(logger *zap.Logger) *ToneSource {
	return &ToneSource{
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Track builds the local audio track and starts feeding it tone frames.
func (t *ToneSource) Track() (webrtc.TrackLocal, error) {
	enc, err := NewEncoder()
	if err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: opusSampleRate,
			Channels:  2,
		},
		"audio",
		"rtm-tone",
	)
	if err != nil {
		return nil, err
	}

	go t.loop(enc, track)
	return track, nil
}

func (t *ToneSource) loop(enc *Encoder, track *webrtc.TrackLocalStaticSample) {
	frame := GenerateSineWave(frameDuration.Seconds(), ToneFrequency)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			data, err := enc.Encode(frame)
			if err != nil {
				t.logger.Warn("tone encode failed", zap.Error(err))
				continue
			}
			if err := track.WriteSample(media.Sample{Data: data, Duration: frameDuration}); err != nil {
				t.logger.Warn("tone write failed", zap.Error(err))
			}
		}
	}
}

func (t *ToneSource) Close() error {
	t.stopOnce.Do(func() { close(t.stop) })
	return nil
}
