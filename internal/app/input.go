package app

import (
	"context"
	"sync"

	"github.com/eiannone/keyboard"
)

type inputKind int

const (
	inputQuit inputKind = iota
	inputChar
	inputBackspace
	inputEnter
	inputClearText
	inputVolumeUp
	inputVolumeDown
	inputIntensityUp
	inputIntensityDown
	inputToggleEffects
	inputOther
)

type inputEvent struct {
	kind inputKind
	ch   rune
}

// translateKey maps a key press to an input event. Every key counts as an
// interaction, so unmapped keys still produce inputOther.
func translateKey(char rune, key keyboard.Key) inputEvent {
	switch key {
	case keyboard.KeyEsc, keyboard.KeyCtrlC:
		return inputEvent{kind: inputQuit}
	case keyboard.KeyEnter:
		return inputEvent{kind: inputEnter}
	case keyboard.KeyBackspace, keyboard.KeyBackspace2:
		return inputEvent{kind: inputBackspace}
	case keyboard.KeyCtrlU:
		return inputEvent{kind: inputClearText}
	case keyboard.KeySpace:
		return inputEvent{kind: inputChar, ch: ' '}
	case keyboard.KeyArrowUp:
		return inputEvent{kind: inputVolumeUp}
	case keyboard.KeyArrowDown:
		return inputEvent{kind: inputVolumeDown}
	case keyboard.KeyArrowRight:
		return inputEvent{kind: inputIntensityUp}
	case keyboard.KeyArrowLeft:
		return inputEvent{kind: inputIntensityDown}
	case keyboard.KeyCtrlE:
		return inputEvent{kind: inputToggleEffects}
	}
	if char >= ' ' && char != 0x7f {
		return inputEvent{kind: inputChar, ch: char}
	}
	return inputEvent{kind: inputOther}
}

func (a *App) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		a.log.Printf("keyboard input disabled: %v", err)
		a.inputEvents = nil
		return
	}

	events := make(chan inputEvent, 16)
	a.inputEvents = events

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer close(events)
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			evt := translateKey(char, key)
			select {
			case <-ctx.Done():
				return
			case events <- evt:
			}
			if evt.kind == inputQuit {
				return
			}
		}
	}()
}
