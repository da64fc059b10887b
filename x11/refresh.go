package x11

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

const (
	modeFlagInterlace  = 1 << 4
	modeFlagDoubleScan = 1 << 5
)

// refreshRate returns the highest refresh rate among the active CRTCs.
func refreshRate(conn *xgb.Conn, root xproto.Window) (float64, error) {
	if err := randr.Init(conn); err != nil {
		return 0, fmt.Errorf("randr init: %w", err)
	}

	res, err := randr.GetScreenResourcesCurrent(conn, root).Reply()
	if err != nil {
		return 0, fmt.Errorf("randr screen resources: %w", err)
	}

	modes := make(map[uint32]randr.ModeInfo, len(res.Modes))
	for _, m := range res.Modes {
		modes[m.Id] = m
	}

	var best float64
	for _, crtc := range res.Crtcs {
		info, err := randr.GetCrtcInfo(conn, crtc, res.ConfigTimestamp).Reply()
		if err != nil || info == nil || info.Mode == 0 {
			continue
		}
		if m, ok := modes[uint32(info.Mode)]; ok {
			best = max(best, modeRate(m))
		}
	}
	if best <= 0 {
		return 0, errors.New("no active crtc")
	}
	return best, nil
}

// modeRate computes the vertical refresh of a mode line in Hz.
func modeRate(m randr.ModeInfo) float64 {
	if m.Htotal == 0 || m.Vtotal == 0 {
		return 0
	}
	vtotal := float64(m.Vtotal)
	if m.ModeFlags&modeFlagDoubleScan != 0 {
		vtotal *= 2
	}
	if m.ModeFlags&modeFlagInterlace != 0 {
		vtotal /= 2
	}
	return float64(m.DotClock) / (float64(m.Htotal) * vtotal)
}
