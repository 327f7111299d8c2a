package peer

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/rtmlabs/rtm/internal/signaling"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []*signaling.Message
}

func (f *fakeSender) Send(msg *signaling.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

// controls returns structured call-control payloads sent so far.
func (f *fakeSender) controls() []controlMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []controlMessage
	for _, msg := range f.msgs {
		if msg.Event != signaling.EventMessage {
			continue
		}
		var ctrl controlMessage
		if err := json.Unmarshal(msg.Payload, &ctrl); err == nil && ctrl.Type != "" {
			out = append(out, ctrl)
		}
	}
	return out
}

// textControls returns plain-string call-control payloads sent so far.
func (f *fakeSender) textControls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, msg := range f.msgs {
		if msg.Event != signaling.EventMessage {
			continue
		}
		var text string
		if err := json.Unmarshal(msg.Payload, &text); err == nil {
			out = append(out, text)
		}
	}
	return out
}

func (f *fakeSender) eventsOf(event string) []*signaling.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*signaling.Message
	for _, msg := range f.msgs {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

type fakeMedia struct {
	err error
}

func (f *fakeMedia) Track() (webrtc.TrackLocal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "test",
	)
}

func (f *fakeMedia) Close() error { return nil }

type fakeSpeaker struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeSpeaker) Speak(text, lang string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, lang+":"+text)
}

func newTestSession(t *testing.T, media MediaSource) (*Session, *fakeSender, *fakeSpeaker) {
	t.Helper()
	sender := &fakeSender{}
	speaker := &fakeSpeaker{}
	sess, err := NewSession(Config{OutputLang: "es"}, sender, media, speaker, zap.NewNop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(sess.Close)
	return sess, sender, speaker
}

// makeOfferSDP produces a real audio offer from an independent peer connection.
func makeOfferSDP(t *testing.T) string {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("offer pc: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		t.Fatalf("add transceiver: %v", err)
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local: %v", err)
	}
	return offer.SDP
}

func controlPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal control: %v", err)
	}
	return b
}

func TestMediaDenialIsTerminal(t *testing.T) {
	sess, _, _ := newTestSession(t, &fakeMedia{err: errors.New("denied")})

	if err := sess.Start(); err == nil {
		t.Fatal("expected error when media is denied")
	}
	if sess.State() != StateClosed {
		t.Fatalf("expected closed, got %s", sess.State())
	}
}

func TestStartAnnouncesMediaReady(t *testing.T) {
	sess, sender, _ := newTestSession(t, &fakeMedia{})

	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.State() != StateWaiting {
		t.Fatalf("expected waiting, got %s", sess.State())
	}

	texts := sender.textControls()
	if len(texts) != 1 || texts[0] != mediaReadyText {
		t.Fatalf("expected media-ready announcement, got %v", texts)
	}
}

func TestHostOffersWhenRoomReady(t *testing.T) {
	sess, sender, _ := newTestSession(t, &fakeMedia{})

	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess.HandleMessage(&signaling.Message{Event: signaling.EventCreated, Room: "rtm"})
	if !sess.IsHost() {
		t.Fatal("created must mark the session as host")
	}
	if sess.State() != StateWaiting {
		t.Fatalf("host must wait for the room, got %s", sess.State())
	}

	sess.HandleMessage(&signaling.Message{Event: signaling.EventReady})
	if sess.State() != StateNegotiating {
		t.Fatalf("expected negotiating, got %s", sess.State())
	}

	var offers int
	for _, ctrl := range sender.controls() {
		if ctrl.Type == "offer" && ctrl.SDP != "" {
			offers++
		}
	}
	if offers != 1 {
		t.Fatalf("expected exactly one offer, got %d", offers)
	}

	// A repeat ready must not restart negotiation.
	sess.HandleMessage(&signaling.Message{Event: signaling.EventReady})
	var offersAfter int
	for _, ctrl := range sender.controls() {
		if ctrl.Type == "offer" {
			offersAfter++
		}
	}
	if offersAfter != 1 {
		t.Fatalf("duplicate ready produced another offer: %d", offersAfter)
	}
}

func TestGuestAnswersOffer(t *testing.T) {
	sess, sender, _ := newTestSession(t, &fakeMedia{})

	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess.HandleMessage(&signaling.Message{Event: signaling.EventJoined, Room: "rtm"})

	sdp := makeOfferSDP(t)
	sess.HandleMessage(&signaling.Message{
		Event:   signaling.EventMessage,
		Payload: controlPayload(t, controlMessage{Type: "offer", SDP: sdp}),
	})

	if sess.State() != StateNegotiating {
		t.Fatalf("expected negotiating, got %s", sess.State())
	}

	var answers int
	for _, ctrl := range sender.controls() {
		if ctrl.Type == "answer" && ctrl.SDP != "" {
			answers++
		}
	}
	if answers != 1 {
		t.Fatalf("expected exactly one answer, got %d", answers)
	}

	// Duplicate offer is dropped, not re-answered.
	sess.HandleMessage(&signaling.Message{
		Event:   signaling.EventMessage,
		Payload: controlPayload(t, controlMessage{Type: "offer", SDP: sdp}),
	})
	var answersAfter int
	for _, ctrl := range sender.controls() {
		if ctrl.Type == "answer" {
			answersAfter++
		}
	}
	if answersAfter != 1 {
		t.Fatalf("duplicate offer re-answered: %d answers", answersAfter)
	}
}

func TestHostIgnoresIncomingOffer(t *testing.T) {
	sess, sender, _ := newTestSession(t, &fakeMedia{})

	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess.HandleMessage(&signaling.Message{Event: signaling.EventCreated, Room: "rtm"})
	sess.HandleMessage(&signaling.Message{Event: signaling.EventReady})

	sess.HandleMessage(&signaling.Message{
		Event:   signaling.EventMessage,
		Payload: controlPayload(t, controlMessage{Type: "offer", SDP: makeOfferSDP(t)}),
	})

	for _, ctrl := range sender.controls() {
		if ctrl.Type == "answer" {
			t.Fatal("host must never answer an offer")
		}
	}
}

func TestStaleMessagesIgnoredBeforeCall(t *testing.T) {
	sess, _, _ := newTestSession(t, &fakeMedia{})

	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// No call is active: answers and candidates are silently dropped.
	sess.HandleMessage(&signaling.Message{
		Event:   signaling.EventMessage,
		Payload: controlPayload(t, controlMessage{Type: "answer", SDP: "v=0"}),
	})
	sess.HandleMessage(&signaling.Message{
		Event:   signaling.EventMessage,
		Payload: controlPayload(t, controlMessage{Type: "candidate", Candidate: "candidate:1"}),
	})

	if sess.State() != StateWaiting {
		t.Fatalf("stale messages corrupted state: %s", sess.State())
	}
}

func TestGoodbyeClosesActiveCallOnly(t *testing.T) {
	sess, _, _ := newTestSession(t, &fakeMedia{})

	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Goodbye with no active call is a no-op.
	sess.HandleMessage(&signaling.Message{
		Event:   signaling.EventMessage,
		Payload: controlPayload(t, goodbyeText),
	})
	if sess.State() != StateWaiting {
		t.Fatalf("goodbye before call changed state: %s", sess.State())
	}

	sess.HandleMessage(&signaling.Message{Event: signaling.EventCreated})
	sess.HandleMessage(&signaling.Message{Event: signaling.EventReady})
	if sess.State() != StateNegotiating {
		t.Fatalf("expected negotiating, got %s", sess.State())
	}

	sess.HandleMessage(&signaling.Message{
		Event:   signaling.EventMessage,
		Payload: controlPayload(t, goodbyeText),
	})
	if sess.State() != StateClosed {
		t.Fatalf("expected closed after goodbye, got %s", sess.State())
	}
	if sess.IsHost() {
		t.Fatal("close must reset the host flag")
	}
}

func TestRawDeliverRequestsOwnLanguage(t *testing.T) {
	sess, sender, _ := newTestSession(t, &fakeMedia{})

	sess.HandleMessage(&signaling.Message{
		Event:   signaling.EventRawDeliver,
		Payload: signaling.Text("hello from peer"),
	})

	reqs := sender.eventsOf(signaling.EventTranslate)
	if len(reqs) != 1 {
		t.Fatalf("expected one translate request, got %d", len(reqs))
	}
	var req signaling.TranslateRequest
	if err := json.Unmarshal(reqs[0].Payload, &req); err != nil {
		t.Fatalf("decode translate request: %v", err)
	}
	if req.Text != "hello from peer" || req.Lang != "es" {
		t.Fatalf("unexpected translate request: %+v", req)
	}
}

func TestTranslatedGoesToSpeaker(t *testing.T) {
	sess, _, speaker := newTestSession(t, &fakeMedia{})

	sess.HandleMessage(&signaling.Message{
		Event:   signaling.EventTranslated,
		Payload: signaling.Text("hola"),
	})

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	if len(speaker.lines) != 1 || speaker.lines[0] != "es:hola" {
		t.Fatalf("unexpected spoken lines: %v", speaker.lines)
	}
}

func TestShutdownAnnouncesGoodbye(t *testing.T) {
	sess, sender, _ := newTestSession(t, &fakeMedia{})

	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess.Shutdown()

	var sawGoodbye bool
	for _, text := range sender.textControls() {
		if text == goodbyeText {
			sawGoodbye = true
		}
	}
	if !sawGoodbye {
		t.Fatal("shutdown must announce goodbye to the peer")
	}
	if sess.State() != StateClosed {
		t.Fatalf("expected closed, got %s", sess.State())
	}
}

func TestSendTranscriptUsesRawForward(t *testing.T) {
	sess, sender, _ := newTestSession(t, &fakeMedia{})

	if err := sess.SendTranscript("good morning"); err != nil {
		t.Fatalf("send transcript: %v", err)
	}
	raws := sender.eventsOf(signaling.EventRawForward)
	if len(raws) != 1 {
		t.Fatalf("expected one raw-forward message, got %d", len(raws))
	}
	var text string
	if err := json.Unmarshal(raws[0].Payload, &text); err != nil || text != "good morning" {
		t.Fatalf("unexpected raw payload: %s", raws[0].Payload)
	}
}
