//go:build windows

package input

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"syscall"
	"unsafe"

	"github.com/lxn/win"
)

const (
	mouseeventfLeftDown = 0x0002
	mouseeventfLeftUp   = 0x0004
	mkLButton           = 0x0001
)

// lostAfter consecutive rejected clicks means the input desktop is gone.
const lostAfter = 10

var procMouseEvent = syscall.NewLazyDLL("user32.dll").NewProc("mouse_event")

type winInjector struct {
	method Method
	jitter Jitter
	rng    *rand.Rand
	// rejects counts consecutive ErrRejected clicks.
	rejects int
}

func openPlatform(opts Options) (Injector, error) {
	if opts.Method == MethodSimulate {
		if err := procMouseEvent.Find(); err != nil {
			return nil, fmt.Errorf("user32 mouse_event: %v: %w", err, ErrUnsupported)
		}
	}
	return &winInjector{method: opts.Method, jitter: opts.Jitter, rng: newRand()}, nil
}

func (w *winInjector) Click(ctx context.Context) error {
	err := w.click(ctx)
	switch {
	case err == nil:
		w.rejects = 0
	case errors.Is(err, ErrRejected):
		w.rejects++
		if w.rejects >= lostAfter {
			w.rejects = 0
			return fmt.Errorf("%d consecutive rejections (%v): %w", lostAfter, err, ErrResourceLost)
		}
	}
	return err
}

func (w *winInjector) click(ctx context.Context) error {
	t := w.jitter.Draw(w.rng)

	var origin win.POINT
	if !win.GetCursorPos(&origin) {
		return fmt.Errorf("GetCursorPos: %w", ErrRejected)
	}
	at := origin
	if t.DX != 0 || t.DY != 0 {
		at.X += int32(t.DX)
		at.Y += int32(t.DY)
		win.SetCursorPos(at.X, at.Y)
		defer win.SetCursorPos(origin.X, origin.Y)
	}

	switch w.method {
	case MethodHardware:
		return w.hardware(ctx, t)
	case MethodPost, MethodSend:
		return w.message(ctx, t, at)
	case MethodSimulate:
		return w.simulate(ctx, t)
	}
	return fmt.Errorf("method %s: %w", w.method, ErrUnsupported)
}

func (w *winInjector) hardware(ctx context.Context, t Timing) error {
	if err := sendMouse(mouseeventfLeftDown); err != nil {
		return err
	}
	// A press without a release would leave the button stuck.
	holdErr := pause(ctx, t.Hold)
	if err := sendMouse(mouseeventfLeftUp); err != nil {
		return err
	}
	if holdErr != nil {
		return holdErr
	}
	return pause(ctx, t.Release)
}

func sendMouse(flags uint32) error {
	in := win.MOUSE_INPUT{
		Type: win.INPUT_MOUSE,
		Mi:   win.MOUSEINPUT{DwFlags: flags},
	}
	if win.SendInput(1, unsafe.Pointer(&in), int32(unsafe.Sizeof(in))) != 1 {
		return fmt.Errorf("SendInput flags=%#x: %w", flags, ErrRejected)
	}
	return nil
}

func (w *winInjector) message(ctx context.Context, t Timing, at win.POINT) error {
	hwnd := win.GetForegroundWindow()
	if hwnd == 0 {
		return fmt.Errorf("no foreground window: %w", ErrRejected)
	}
	pt := at
	win.ScreenToClient(hwnd, &pt)
	lparam := uintptr(uint32(pt.Y)<<16 | uint32(pt.X)&0xFFFF)

	if w.method == MethodPost {
		if win.PostMessage(hwnd, win.WM_LBUTTONDOWN, mkLButton, lparam) == 0 {
			return fmt.Errorf("PostMessage down: %w", ErrRejected)
		}
		holdErr := pause(ctx, t.Hold)
		if win.PostMessage(hwnd, win.WM_LBUTTONUP, 0, lparam) == 0 {
			return fmt.Errorf("PostMessage up: %w", ErrRejected)
		}
		if holdErr != nil {
			return holdErr
		}
		return pause(ctx, t.Release)
	}

	win.SendMessage(hwnd, win.WM_LBUTTONDOWN, mkLButton, lparam)
	holdErr := pause(ctx, t.Hold)
	win.SendMessage(hwnd, win.WM_LBUTTONUP, 0, lparam)
	if holdErr != nil {
		return holdErr
	}
	return pause(ctx, t.Release)
}

func (w *winInjector) simulate(ctx context.Context, t Timing) error {
	procMouseEvent.Call(mouseeventfLeftDown, 0, 0, 0, 0)
	holdErr := pause(ctx, t.Hold)
	procMouseEvent.Call(mouseeventfLeftUp, 0, 0, 0, 0)
	if holdErr != nil {
		return holdErr
	}
	return pause(ctx, t.Release)
}

func (w *winInjector) Close() error { return nil }
