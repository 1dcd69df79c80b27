package relay

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the frame-level surface of one WebSocket end.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Side names one end of a pairing.
type Side string

const (
	SideInbound  Side = "inbound"
	SideUpstream Side = "upstream"
)

// Result describes how a pump ended.
type Result struct {
	// Ended is the side whose failure or close ended the pairing.
	Ended Side
	// Code is the close code sent to the surviving side.
	Code int
	// Frames counts frames forwarded in each direction, keyed by source side.
	Frames map[Side]int
	Err    error
}

const closeWriteWait = time.Second

type copyResult struct {
	srcSide Side
	ended   Side
	frames  int
	err     error
}

// Pump forwards frames between inbound and upstream until one side ends, then
// closes both. Each direction is served by one goroutine, so frames keep their
// order and message type. closing, when non-nil, runs once the first side has
// ended and before the survivor is closed.
func Pump(inbound, upstream Conn, closing func(Side, error)) Result {
	results := make(chan copyResult, 2)
	go func() { results <- copyFrames(SideInbound, inbound, SideUpstream, upstream) }()
	go func() { results <- copyFrames(SideUpstream, upstream, SideInbound, inbound) }()

	first := <-results
	if closing != nil {
		closing(first.ended, first.err)
	}

	survivor := upstream
	if first.ended == SideUpstream {
		survivor = inbound
	}
	code, text := closeMessageFor(first.ended, first.err)
	deadline := time.Now().Add(closeWriteWait)
	_ = survivor.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	_ = inbound.Close()
	_ = upstream.Close()

	second := <-results
	frames := map[Side]int{}
	for _, r := range []copyResult{first, second} {
		frames[r.srcSide] += r.frames
	}
	return Result{Ended: first.ended, Code: code, Frames: frames, Err: first.err}
}

func copyFrames(srcSide Side, src Conn, dstSide Side, dst Conn) copyResult {
	frames := 0
	for {
		messageType, payload, err := src.ReadMessage()
		if err != nil {
			return copyResult{ended: srcSide, srcSide: srcSide, frames: frames, err: err}
		}
		if err := dst.WriteMessage(messageType, payload); err != nil {
			return copyResult{ended: dstSide, srcSide: srcSide, frames: frames, err: err}
		}
		frames++
	}
}

// closeMessageFor picks the close frame sent to the side that survived.
// A clean close from one side is forwarded with its own code; anything else
// reports which side went away.
func closeMessageFor(ended Side, err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && sendableCloseCode(closeErr.Code) {
		return closeErr.Code, closeErr.Text
	}
	if ended == SideUpstream {
		return websocket.CloseInternalServerErr, "game server connection lost"
	}
	return websocket.CloseGoingAway, "client went away"
}

func sendableCloseCode(code int) bool {
	switch code {
	case websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
		return false
	}
	return code >= 1000 && code < 5000
}
