// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"go.bug.st/serial"

	"github.com/Thermoquad/speedlink/internal/log"
	"github.com/Thermoquad/speedlink/pkg/errors"
	"github.com/Thermoquad/speedlink/pkg/speed"
)

// ParseNMEA extracts ground speed in km/h from an RMC or VTG sentence. The
// bool is false for other sentences and for RMC sentences without a valid fix.
func ParseNMEA(line string) (float64, bool, error) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "$") {
		return 0, false, nmeaErr("sentence does not start with '$'", line)
	}

	body := s[1:]
	if i := strings.IndexByte(body, '*'); i >= 0 {
		if err := verifyNMEAChecksum(body[:i], body[i+1:]); err != nil {
			return 0, false, err
		}
		body = body[:i]
	}

	fields := strings.Split(body, ",")
	if len(fields[0]) != 5 {
		return 0, false, nmeaErr("invalid sentence address", line)
	}

	switch fields[0][2:] {
	case "RMC":
		// $xxRMC,time,status,lat,N,lon,E,knots,course,date,...
		if len(fields) < 8 {
			return 0, false, nmeaErr("RMC sentence too short", line)
		}
		if fields[2] != "A" {
			return 0, false, nil
		}
		knots, ok, err := parseNMEAFloat(fields[7])
		if !ok || err != nil {
			return 0, false, err
		}
		return speed.KnotsToKmh(knots), true, nil

	case "VTG":
		// $xxVTG,courseT,T,courseM,M,knots,N,kmh,K,mode
		if len(fields) < 8 {
			return 0, false, nmeaErr("VTG sentence too short", line)
		}
		if v, ok, err := parseNMEAFloat(fields[7]); ok || err != nil {
			return v, ok, err
		}
		knots, ok, err := parseNMEAFloat(fields[5])
		if !ok || err != nil {
			return 0, false, err
		}
		return speed.KnotsToKmh(knots), true, nil
	}

	return 0, false, nil
}

func parseNMEAFloat(field string) (float64, bool, error) {
	if field == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, false, errors.Wrap(errors.DecodeFailure, err, "invalid NMEA speed field %q", field)
	}
	return v, true, nil
}

func verifyNMEAChecksum(payload, tag string) error {
	want, err := strconv.ParseUint(strings.TrimSpace(tag), 16, 8)
	if err != nil {
		return errors.Wrap(errors.DecodeFailure, err, "invalid NMEA checksum %q", tag)
	}
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	if byte(want) != sum {
		return errors.New(errors.DecodeFailure, "NMEA checksum mismatch: expected %02X, got %02X", sum, want)
	}
	return nil
}

func nmeaErr(msg, line string) error {
	return &errors.Error{
		Kind:          errors.DecodeFailure,
		Message:       msg,
		PropertyName:  "sentence",
		PropertyValue: line,
	}
}

// NMEA reads sentences line by line from a GPS receiver.
type NMEA struct {
	r    io.ReadCloser
	name string
	log  log.Logger
}

// NewNMEA reads sentences from r.
func NewNMEA(r io.ReadCloser, name string, logger *slog.Logger) *NMEA {
	return &NMEA{r: r, name: name, log: log.Wrap(logger).With("source", name)}
}

// OpenSerial opens a GPS receiver on a serial port.
func OpenSerial(portName string, baudRate int, logger *slog.Logger) (*NMEA, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return NewNMEA(port, fmt.Sprintf("serial:%s@%d", portName, baudRate), logger), nil
}

// Ports lists the serial ports present on this machine.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// Name describes the input.
func (n *NMEA) Name() string { return n.name }

// Close closes the underlying reader.
func (n *NMEA) Close() error { return n.r.Close() }

// Run scans sentences and forwards every speed reading to sink. It returns
// nil at end of input.
func (n *NMEA) Run(ctx context.Context, sink Sink) error {
	scan := bufio.NewScanner(n.r)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking Scan runs on its own goroutine so ctx cancellation is
	// observed promptly
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return fmt.Errorf("reading %s: %w", n.name, err)

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return fmt.Errorf("reading %s: %w", n.name, err)
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			kmh, ok, err := ParseNMEA(line)
			if err != nil {
				n.log.Err(err)
				continue
			}
			if ok {
				sink(kmh)
			}
		}
	}
}
