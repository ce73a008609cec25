package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Command codes are two bytes written as four hex digits.
const (
	CodeInputBluetooth = "8101"
	CodeInputAux       = "8102"
	CodeInputUSB       = "8103"
	CodePairing        = "8200"
	CodeVolumeUp       = "8002"
	CodeVolumeDown     = "8003"
	CodeBassUp         = "8000"
	CodeBassDown       = "8001"
	CodePlayPause      = "8004"
	CodeFactoryReset   = "8300"

	// CodeHandshake is written once per session, after subscribing and before any command.
	CodeHandshake = "8405"
)

var (
	ErrInvalidSelection = errors.New("invalid selection")
	ErrInvalidCode      = errors.New("invalid command code")
)

// Command is one row of the menu table.
type Command struct {
	Selection    string // menu key, "0" through "9"
	Code         string
	Title        string // menu line
	Announce     string // printed before connecting; %d is the step count for repeatable commands
	Repeatable   bool
	DefaultSteps int
}

// Commands is the menu in display order.
var Commands = []Command{
	{Selection: "1", Code: CodeInputBluetooth, Title: "Bluetooth Input", Announce: "Switching to Bluetooth Input...", DefaultSteps: 1},
	{Selection: "2", Code: CodeInputAux, Title: "Aux (3.5mm Cable)", Announce: "Switching to Aux...", DefaultSteps: 1},
	{Selection: "3", Code: CodeInputUSB, Title: "USB (Micro USB Cable)", Announce: "Switching to USB...", DefaultSteps: 1},
	{Selection: "4", Code: CodePairing, Title: "Force Bluetooth Pairing Mode", Announce: "Activating Bluetooth Pairing Mode...", DefaultSteps: 1},
	{Selection: "5", Code: CodeVolumeUp, Title: "Volume Up (+)", Announce: "Increasing volume by %d steps...", Repeatable: true, DefaultSteps: 5},
	{Selection: "6", Code: CodeVolumeDown, Title: "Volume Down (-)", Announce: "Decreasing volume by %d steps...", Repeatable: true, DefaultSteps: 5},
	{Selection: "7", Code: CodeBassUp, Title: "Bass Up (+)", Announce: "Increasing Bass by %d steps...", Repeatable: true, DefaultSteps: 1},
	{Selection: "8", Code: CodeBassDown, Title: "Bass Down (-)", Announce: "Decreasing Bass by %d steps...", Repeatable: true, DefaultSteps: 1},
	{Selection: "9", Code: CodePlayPause, Title: "Play/Pause (Toggle Mute)", Announce: "Toggling Play/Pause/Mute...", DefaultSteps: 1},
	{Selection: "0", Code: CodeFactoryReset, Title: "Factory Reset", Announce: "WARNING: Factory Resetting Speakers...", DefaultSteps: 1},
}

// Lookup returns the command for a menu selection. Surrounding whitespace is ignored.
func Lookup(selection string) (Command, error) {
	selection = strings.TrimSpace(selection)
	for _, c := range Commands {
		if c.Selection == selection {
			return c, nil
		}
	}
	return Command{}, fmt.Errorf("%w: %q", ErrInvalidSelection, selection)
}

// ByCode returns the command that sends code.
func ByCode(code string) (Command, bool) {
	for _, c := range Commands {
		if strings.EqualFold(c.Code, code) {
			return c, true
		}
	}
	return Command{}, false
}

// Announcement renders the line printed before a command runs.
func (c Command) Announcement(steps int) string {
	if c.Repeatable {
		return fmt.Sprintf(c.Announce, steps)
	}
	return c.Announce
}

// Encode decodes a four-digit hex code into its two payload bytes.
func Encode(code string) ([]byte, error) {
	code = strings.TrimSpace(code)
	if len(code) != 4 {
		return nil, fmt.Errorf("%w: %q must be 4 hex digits", ErrInvalidCode, code)
	}
	b, err := hex.DecodeString(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCode, code, err)
	}
	return b, nil
}

// HandshakePayload returns the bytes 84 05.
func HandshakePayload() []byte {
	return []byte{0x84, 0x05}
}
