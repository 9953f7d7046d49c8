//go:build cgo
// +build cgo

package sysmonit

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestIsFrameValid_DisabledAlwaysAccepts(t *testing.T) {
	black := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer black.Close()

	if !IsFrameValid(&black, false) {
		t.Error("validation disabled should always accept")
	}
}

func TestIsFrameValid_RejectsSolidBlack(t *testing.T) {
	black := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer black.Close()

	if IsFrameValid(&black, true) {
		t.Error("expected a solid black frame to be rejected")
	}
}

func TestIsFrameValid_RejectsSolidWhite(t *testing.T) {
	white := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer white.Close()
	white.SetTo(gocv.NewScalar(255, 255, 255, 0))

	if IsFrameValid(&white, true) {
		t.Error("expected a solid white frame to be rejected")
	}
}

func TestIsFrameValid_AcceptsMidToneFrame(t *testing.T) {
	gray := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer gray.Close()
	gray.SetTo(gocv.NewScalar(120, 120, 120, 0))

	if !IsFrameValid(&gray, true) {
		t.Error("expected a mid-gray frame to be accepted")
	}
}
