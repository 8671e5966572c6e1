// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dglab

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/speedlink/pkg/errors"
)

// Checksum computes the legacy integrity tag: the first byte of the channel
// plus every numeric field, modulo 256. It is a framing tag, not a CRC.
func Checksum(ch Channel, fields ...int) int {
	sum := 0
	if len(ch) > 0 {
		sum += int(ch[0])
	}
	for _, f := range fields {
		sum += f
	}
	sum %= 256
	if sum < 0 {
		sum += 256
	}
	return sum
}

// EncodeLegacyB0 formats B0,<channel>,<intensity>,<checksum>;
func EncodeLegacyB0(ch Channel, intensity int) string {
	return fmt.Sprintf("%s,%s,%d,%d;", PrefixB0, ch, intensity, Checksum(ch, intensity))
}

// EncodeLegacyBF formats BF,<channel>,<frequency>,<intensity>,<checksum>;
func EncodeLegacyBF(ch Channel, frequency, intensity int) string {
	return fmt.Sprintf("%s,%s,%d,%d,%d;", PrefixBF, ch, frequency, intensity, Checksum(ch, frequency, intensity))
}

// LegacyB0 is the legacy intensity command.
type LegacyB0 struct {
	Channel   Channel
	Intensity int
}

// Type returns "B0".
func (LegacyB0) Type() string { return PrefixB0 }

// Marshal returns the ASCII line.
func (c LegacyB0) Marshal() ([]byte, error) {
	if !c.Channel.Valid() {
		return nil, invalidChannel(c.Channel)
	}
	return []byte(EncodeLegacyB0(c.Channel, c.Intensity)), nil
}

// LegacyBF is the legacy pulse command.
type LegacyBF struct {
	Channel   Channel
	Frequency int
	Intensity int
}

// Type returns "BF".
func (LegacyBF) Type() string { return PrefixBF }

// Marshal returns the ASCII line.
func (c LegacyBF) Marshal() ([]byte, error) {
	if !c.Channel.Valid() {
		return nil, invalidChannel(c.Channel)
	}
	return []byte(EncodeLegacyBF(c.Channel, c.Frequency, c.Intensity)), nil
}

// IsLegacy reports whether raw looks like a legacy ASCII command rather than
// a JSON document.
func IsLegacy(raw []byte) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, PrefixB0+Separator) || strings.HasPrefix(s, PrefixBF+Separator)
}

// DecodeLegacy parses a B0 or BF line and verifies its checksum. The result is
// a LegacyB0 or LegacyBF.
func DecodeLegacy(line string) (Command, error) {
	s := strings.TrimSpace(line)
	if !strings.HasSuffix(s, EndMarker) {
		return nil, decodeErr("legacy command missing terminator")
	}
	fields := strings.Split(strings.TrimSuffix(s, EndMarker), Separator)

	var want int
	switch fields[0] {
	case PrefixB0:
		want = 4
	case PrefixBF:
		want = 5
	default:
		return nil, decodeErr(fmt.Sprintf("unknown legacy prefix %q", fields[0]))
	}
	if len(fields) != want {
		return nil, decodeErr(fmt.Sprintf("%s expects %d fields, got %d", fields[0], want, len(fields)))
	}

	ch, ok := ParseChannel(fields[1])
	if !ok {
		return nil, decodeErr(fmt.Sprintf("invalid channel %q", fields[1]))
	}

	nums := make([]int, 0, want-2)
	for _, f := range fields[2:] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrap(errors.DecodeFailure, err, "invalid legacy field %q", f)
		}
		nums = append(nums, n)
	}

	values, got := nums[:len(nums)-1], nums[len(nums)-1]
	if expected := Checksum(ch, values...); expected != got {
		return nil, decodeErr(fmt.Sprintf("checksum mismatch: expected %d, got %d", expected, got))
	}

	if fields[0] == PrefixB0 {
		return LegacyB0{Channel: ch, Intensity: values[0]}, nil
	}
	return LegacyBF{Channel: ch, Frequency: values[0], Intensity: values[1]}, nil
}

func decodeErr(msg string) error {
	return &errors.Error{Kind: errors.DecodeFailure, Message: msg}
}
