package copilot

import (
	"strings"
	"testing"
)

func TestScanSSESplitsFrames(t *testing.T) {
	input := "data: one\n\ndata: two\n\n"
	var got []string
	err := scanSSE(strings.NewReader(input), func(_, data string) error {
		got = append(got, data)
		return nil
	})
	if err != nil {
		t.Fatalf("scanSSE: %v", err)
	}
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("frames: want=[one two] got=%v", got)
	}
}

func TestScanSSEJoinsMultiLineData(t *testing.T) {
	input := "data: first\ndata: second\n\n"
	var got []string
	err := scanSSE(strings.NewReader(input), func(_, data string) error {
		got = append(got, data)
		return nil
	})
	if err != nil {
		t.Fatalf("scanSSE: %v", err)
	}
	if len(got) != 1 || got[0] != "first\nsecond" {
		t.Fatalf("frames: want one joined frame, got %v", got)
	}
}

func TestScanSSESkipsCommentsAndCapturesEventName(t *testing.T) {
	input := ": keepalive\nevent: status\ndata: payload\n\n"
	var gotEvent, gotData string
	err := scanSSE(strings.NewReader(input), func(event, data string) error {
		gotEvent, gotData = event, data
		return nil
	})
	if err != nil {
		t.Fatalf("scanSSE: %v", err)
	}
	if gotEvent != "status" || gotData != "payload" {
		t.Fatalf("frame: want event=status data=payload got event=%q data=%q", gotEvent, gotData)
	}
}

func TestScanSSEFlushesTrailingFrameAtEOF(t *testing.T) {
	// No trailing blank line before the stream ends.
	input := "data: last"
	var got []string
	err := scanSSE(strings.NewReader(input), func(_, data string) error {
		got = append(got, data)
		return nil
	})
	if err != nil {
		t.Fatalf("scanSSE: %v", err)
	}
	if len(got) != 1 || got[0] != "last" {
		t.Fatalf("frames: want=[last] got=%v", got)
	}
}

func TestScanSSEStopsEarly(t *testing.T) {
	input := "data: one\n\ndata: two\n\n"
	var got []string
	err := scanSSE(strings.NewReader(input), func(_, data string) error {
		got = append(got, data)
		return errStopStream
	})
	if err != errStopStream {
		t.Fatalf("error: want errStopStream got %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("frames before stop: want=1 got=%d", len(got))
	}
}

func TestScanSSEHandlesCRLF(t *testing.T) {
	input := "data: windows\r\n\r\n"
	var got []string
	err := scanSSE(strings.NewReader(input), func(_, data string) error {
		got = append(got, data)
		return nil
	})
	if err != nil {
		t.Fatalf("scanSSE: %v", err)
	}
	if len(got) != 1 || got[0] != "windows" {
		t.Fatalf("frames: want=[windows] got=%v", got)
	}
}
