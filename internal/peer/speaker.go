package peer

import "go.uber.org/zap"

// Speaker renders translated text as spoken output. The platform
// text-to-speech engine lives behind this interface.
type Speaker interface {
	Speak(text, lang string)
}

// LogSpeaker writes spoken lines to the log. Useful for headless runs.
type LogSpeaker struct {
	Logger *zap.Logger
}

func (l *LogSpeaker) Speak(text, lang string) {
	l.Logger.Info("speak", zap.String("lang", lang), zap.String("text", text))
}
