package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/itohio/psudlog/pkg/dlog"
)

// parseColumns parses a list of column labels such as "U1,I1,P2".
func parseColumns(s string, numChannels int) (dlog.Selection, error) {
	var sel dlog.Selection

	for _, label := range strings.Split(s, ",") {
		label = strings.ToUpper(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		if len(label) < 2 {
			return dlog.Selection{}, fmt.Errorf("invalid column %q", label)
		}

		var kind dlog.Kind
		switch label[0] {
		case 'U', 'V':
			kind = dlog.KindVoltage
		case 'I':
			kind = dlog.KindCurrent
		case 'P':
			kind = dlog.KindPower
		default:
			return dlog.Selection{}, fmt.Errorf("invalid column %q: unknown quantity", label)
		}

		channel, err := strconv.Atoi(label[1:])
		if err != nil || channel < 1 || channel > numChannels {
			return dlog.Selection{}, fmt.Errorf("invalid column %q: channel must be 1..%d", label, numChannels)
		}
		sel.Set(channel-1, kind, true)
	}

	if !sel.Any() {
		return dlog.Selection{}, fmt.Errorf("no columns selected")
	}
	return sel, nil
}
