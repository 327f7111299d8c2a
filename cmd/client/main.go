// Command client is a headless rtm peer: it joins a room, negotiates a call,
// forwards stdin lines as speech transcripts, and speaks translations it
// requests for incoming transcripts. Received text can be kept as notes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rtmlabs/rtm/internal/audio"
	"github.com/rtmlabs/rtm/internal/config"
	"github.com/rtmlabs/rtm/internal/notes"
	"github.com/rtmlabs/rtm/internal/peer"
	"github.com/rtmlabs/rtm/internal/signaling"
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg := config.Load()
	serverURL := flag.String("server", cfg.SignalURL, "signaling server websocket URL")
	roomName := flag.String("room", cfg.Room, "room to create or join")
	outputLang := flag.String("lang", cfg.OutputLang, "language to hear translations in")
	notesPath := flag.String("notes", cfg.NotesDB, "notes database path (empty disables notes)")
	listNotes := flag.Bool("list-notes", false, "print saved notes and exit")
	flag.Parse()

	if err := run(logger, cfg, *serverURL, *roomName, *outputLang, *notesPath, *listNotes); err != nil {
		logger.Error("client failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg *config.Config, serverURL, roomName, outputLang, notesPath string, listNotes bool) error {
	ctx := context.Background()

	var store *notes.Store
	if notesPath != "" {
		var err error
		if store, err = notes.Open(notesPath); err != nil {
			return err
		}
		defer store.Close()
	}

	if listNotes {
		if store == nil {
			return fmt.Errorf("notes are disabled")
		}
		saved, err := store.List(ctx)
		if err != nil {
			return err
		}
		if len(saved) == 0 {
			fmt.Println("No notes saved.")
			return nil
		}
		for _, n := range saved {
			fmt.Printf("%d\t%s\t%s\n", n.ID, n.CreatedAt.Format("2006-01-02 15:04:05"), n.Content)
		}
		return nil
	}

	client, err := signaling.Dial(serverURL, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	media := audio.NewToneSource(logger)
	speaker := &noteSpeaker{
		inner: &peer.LogSpeaker{Logger: logger},
		store: store,
		ctx:   ctx,
	}

	sess, err := peer.NewSession(peer.Config{
		OutputLang:  outputLang,
		STUNServers: cfg.STUNServers,
	}, client, media, speaker, logger)
	if err != nil {
		return err
	}

	if err := client.Send(&signaling.Message{Event: signaling.EventCreateOrJoin, Room: roomName}); err != nil {
		return err
	}
	if err := sess.Start(); err != nil {
		return err
	}

	// Stdin lines stand in for speech-recognition transcripts.
	lines := make(chan string)
	go func(out chan<- string) {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}(lines)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case msg, ok := <-client.Incoming():
			if !ok {
				logger.Info("server connection closed")
				sess.Close()
				return nil
			}
			sess.HandleMessage(msg)

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if line == "" {
				continue
			}
			if err := sess.SendTranscript(line); err != nil {
				logger.Warn("send transcript failed", zap.Error(err))
			}
			if store != nil {
				if _, err := store.Save(ctx, line); err != nil {
					logger.Warn("save note failed", zap.Error(err))
				}
			}

		case <-quit:
			logger.Info("shutting down")
			sess.Shutdown()
			client.Close()
			return nil
		}
	}
}

// noteSpeaker speaks translations and keeps them as notes.
type noteSpeaker struct {
	inner *peer.LogSpeaker
	store *notes.Store
	ctx   context.Context
}

func (n *noteSpeaker) Speak(text, lang string) {
	n.inner.Speak(text, lang)
	if n.store != nil {
		if _, err := n.store.Save(n.ctx, text); err != nil {
			n.inner.Logger.Warn("save translation note failed", zap.Error(err))
		}
	}
}
