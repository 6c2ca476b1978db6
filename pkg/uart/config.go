package uart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// Config selects and configures the UART side channel. SerialPort and
// SocketPort are mutually exclusive.
type Config struct {
	// SerialPort is the path of the serial device, e.g. /dev/ttyACM0 or COM3.
	SerialPort string `json:"serialPort,omitempty"`
	// BaudRate defaults to 115200.
	BaudRate int `json:"baudRate,omitempty"`
	// CharacterSize is the number of data bits, 8 by default.
	CharacterSize int `json:"characterSize,omitempty"`
	// StopBits is 1, 1.5 or 2.
	StopBits float64 `json:"stopBits,omitempty"`
	// Parity is none, even, odd, mark or space.
	Parity string `json:"parity,omitempty"`
	// HandshakingMethod is none, RTS/CTS or XON/XOFF.
	HandshakingMethod string `json:"handshakingMethod,omitempty"`
	// EOLCharacter is the line terminator of the serial stream, LF or CRLF.
	EOLCharacter string `json:"eolCharacter,omitempty"`

	// SocketPort is a TCP port to connect to instead of a serial device.
	SocketPort Port `json:"socketPort,omitempty"`
}

// Port is a TCP port written either as a JSON string or number.
type Port string

// UnmarshalJSON accepts "1234" and 1234.
func (p *Port) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(b, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Port(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("socketPort must be a string or a number: %w", err)
	}
	*p = Port(n.String())
	return nil
}

const (
	defaultBaudRate      = 115200
	defaultCharacterSize = 8
)

var errNoPort = errors.New("uart configuration needs either serialPort or socketPort")

// Validate checks that a transport is selected and that the serial
// parameters are supported.
func (c *Config) Validate() error {
	if c.SerialPort == "" && c.SocketPort == "" {
		return errNoPort
	}
	if c.SerialPort != "" {
		if _, err := c.serialMode(); err != nil {
			return err
		}
		switch strings.ToUpper(c.EOLCharacter) {
		case "", "LF", "CRLF":
		default:
			return fmt.Errorf("unsupported eolCharacter %q", c.EOLCharacter)
		}
	}
	return nil
}

// terminator returns the line terminator of the serial stream.
func (c *Config) terminator() string {
	if strings.EqualFold(c.EOLCharacter, "CRLF") {
		return "\r\n"
	}
	return "\n"
}

func (c *Config) serialMode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.CharacterSize,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = defaultBaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = defaultCharacterSize
	}

	switch c.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 1.5:
		mode.StopBits = serial.OnePointFiveStopBits
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stopBits %v", c.StopBits)
	}

	switch strings.ToLower(c.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "even":
		mode.Parity = serial.EvenParity
	case "odd":
		mode.Parity = serial.OddParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", c.Parity)
	}

	switch strings.ToUpper(c.HandshakingMethod) {
	case "", "NONE", "XON/XOFF":
	case "RTS/CTS":
		mode.InitialStatusBits = &serial.ModemOutputBits{RTS: true, DTR: true}
	default:
		return nil, fmt.Errorf("unsupported handshakingMethod %q", c.HandshakingMethod)
	}
	return mode, nil
}
