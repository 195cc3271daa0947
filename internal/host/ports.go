package host

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// ErrPortNotFound is returned when no port matches a requested name.
var ErrPortNotFound = errors.New("port not found")

// Ports is an open input/output pair.
type Ports struct {
	driver *rtmididrv.Driver
	send   func(midi.Message) error
	In     drivers.In
	Out    drivers.Out
}

// OpenPorts opens the named ports. An empty name opens a virtual port called
// virtual instead. Names match case-insensitively on substrings.
func OpenPorts(inName, outName, virtual string) (*Ports, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MIDI driver: %w", err)
	}
	p := &Ports{driver: driver}

	if inName == "" {
		p.In, err = driver.OpenVirtualIn(virtual)
	} else {
		p.In, err = findIn(driver, inName)
	}
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("open input: %w", err)
	}

	if outName == "" {
		p.Out, err = driver.OpenVirtualOut(virtual)
	} else {
		p.Out, err = findOut(driver, outName)
	}
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("open output: %w", err)
	}

	p.send, err = midi.SendTo(p.Out)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("open output %s: %w", p.Out, err)
	}
	return p, nil
}

// Listen delivers every message arriving on the input port to h.
func (p *Ports) Listen(h *Host) (stop func(), err error) {
	return midi.ListenTo(p.In, func(msg midi.Message, _ int32) {
		h.Deliver(msg)
	}, midi.HandleError(func(err error) {
		h.log.Debug("host: input error", "err", err)
	}))
}

// Sink returns the output port as a Sink.
func (p *Ports) Sink() Sink {
	return SinkFunc(p.send)
}

// Close closes both ports and the driver.
func (p *Ports) Close() {
	if p.In != nil {
		p.In.Close()
	}
	if p.Out != nil {
		p.Out.Close()
	}
	if p.driver != nil {
		p.driver.Close()
	}
}

// PortNames lists the names of the available input and output ports.
func PortNames() (ins, outs []string, err error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize MIDI driver: %w", err)
	}
	defer driver.Close()

	inPorts, err := driver.Ins()
	if err != nil {
		return nil, nil, err
	}
	outPorts, err := driver.Outs()
	if err != nil {
		return nil, nil, err
	}
	for _, in := range inPorts {
		ins = append(ins, in.String())
	}
	for _, out := range outPorts {
		outs = append(outs, out.String())
	}
	return ins, outs, nil
}

func findIn(d drivers.Driver, name string) (drivers.In, error) {
	ins, err := d.Ins()
	if err != nil {
		return nil, err
	}
	for _, in := range ins {
		if matchPort(in.String(), name) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrPortNotFound, name)
}

func findOut(d drivers.Driver, name string) (drivers.Out, error) {
	outs, err := d.Outs()
	if err != nil {
		return nil, err
	}
	for _, out := range outs {
		if matchPort(out.String(), name) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrPortNotFound, name)
}

func matchPort(port, name string) bool {
	return strings.Contains(strings.ToLower(port), strings.ToLower(strings.TrimSpace(name)))
}
