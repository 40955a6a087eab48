package mesh

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// channelLabel names the data channel carrying duel envelopes.
const channelLabel = "duel"

// WebRTCConnector links peers over a WebRTC data channel. The broker carries
// only the offer, the answer and trickled ICE candidates.
type WebRTCConnector struct {
	// ICEServers lists stun: and turn: URLs. Empty restricts the link to
	// host candidates.
	ICEServers []string
	// IncludeLoopback gathers loopback candidates, for peers on one host.
	IncludeLoopback bool
	Logger          *zap.Logger
}

type rtcSignal struct {
	Kind      string                     `json:"kind"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

type rtcLink struct {
	pc        *webrtc.PeerConnection
	initiator bool
	signal    func([]byte) error
	h         LinkHandlers
	logger    *zap.Logger

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	open      bool
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	closed    bool
	gone      sync.Once
}

// Negotiate implements Connector.
//
// Postcondition: the initiating side owns an ordered data channel labelled
// "duel"; the answering side adopts the one it is offered.
func (c *WebRTCConnector) Negotiate(initiator bool, signal func([]byte) error, h LinkHandlers) (Negotiation, error) {
	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(c.IncludeLoopback)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	cfg := webrtc.Configuration{}
	if len(c.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: c.ICEServers}}
	}
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &rtcLink{pc: pc, initiator: initiator, signal: signal, h: h, logger: logger.With(zap.Bool("initiator", initiator))}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		if err := l.send(rtcSignal{Kind: "candidate", Candidate: &init}); err != nil {
			l.logger.Debug("sending candidate", zap.Error(err))
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		l.logger.Debug("peer connection state", zap.String("state", s.String()))
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			l.remoteGone(fmt.Errorf("peer connection %s", s))
		}
	})

	if initiator {
		ordered := true
		dc, err := pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("creating data channel: %w", err)
		}
		l.attach(dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != channelLabel {
				l.logger.Warn("ignoring unexpected data channel", zap.String("label", dc.Label()))
				return
			}
			l.attach(dc)
		})
	}
	return l, nil
}

func (l *rtcLink) attach(dc *webrtc.DataChannel) {
	l.mu.Lock()
	l.dc = dc
	l.mu.Unlock()
	dc.OnOpen(func() {
		l.mu.Lock()
		l.open = true
		l.mu.Unlock()
		if l.h.OnOpen != nil {
			l.h.OnOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if l.h.OnMessage != nil {
			l.h.OnMessage(msg.Data)
		}
	})
	dc.OnClose(func() { l.remoteGone(ErrLinkClosed) })
}

func (l *rtcLink) Start() error {
	if !l.initiator {
		return nil
	}
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}
	return l.send(rtcSignal{Kind: "offer", SDP: &offer})
}

func (l *rtcLink) HandleSignal(payload []byte) error {
	var s rtcSignal
	if err := json.Unmarshal(payload, &s); err != nil {
		return fmt.Errorf("decoding webrtc signal: %w", err)
	}
	switch s.Kind {
	case "offer":
		if s.SDP == nil {
			return fmt.Errorf("offer without sdp")
		}
		if err := l.pc.SetRemoteDescription(*s.SDP); err != nil {
			return fmt.Errorf("applying offer: %w", err)
		}
		answer, err := l.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("creating answer: %w", err)
		}
		if err := l.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("setting local description: %w", err)
		}
		if err := l.send(rtcSignal{Kind: "answer", SDP: &answer}); err != nil {
			return err
		}
		return l.flushCandidates()
	case "answer":
		if s.SDP == nil {
			return fmt.Errorf("answer without sdp")
		}
		if err := l.pc.SetRemoteDescription(*s.SDP); err != nil {
			return fmt.Errorf("applying answer: %w", err)
		}
		return l.flushCandidates()
	case "candidate":
		if s.Candidate == nil {
			return nil
		}
		l.mu.Lock()
		if !l.remoteSet {
			l.pending = append(l.pending, *s.Candidate)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()
		return l.pc.AddICECandidate(*s.Candidate)
	default:
		return fmt.Errorf("unexpected webrtc signal %q", s.Kind)
	}
}

// flushCandidates applies candidates that arrived before the remote
// description.
func (l *rtcLink) flushCandidates() error {
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("adding candidate: %w", err)
		}
	}
	return nil
}

func (l *rtcLink) Send(data []byte) error {
	l.mu.Lock()
	dc, open, closed := l.dc, l.open, l.closed
	l.mu.Unlock()
	switch {
	case closed:
		return ErrLinkClosed
	case dc == nil || !open:
		return ErrLinkNotOpen
	}
	return dc.Send(data)
}

func (l *rtcLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	dc := l.dc
	l.mu.Unlock()
	if dc != nil {
		_ = dc.Close()
	}
	return l.pc.Close()
}

// remoteGone reports the end of the link once, unless Close ended it.
func (l *rtcLink) remoteGone(err error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	l.gone.Do(func() {
		if l.h.OnClose != nil {
			l.h.OnClose(err)
		}
	})
}

func (l *rtcLink) send(s rtcSignal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return l.signal(data)
}
