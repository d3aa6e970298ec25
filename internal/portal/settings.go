package portal

import (
	"fmt"
	"strings"

	"github.com/annel0/portalnet/internal/chain"
	"github.com/annel0/portalnet/internal/config"
	"github.com/annel0/portalnet/internal/pattern"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/volume"
	"github.com/annel0/portalnet/internal/world/block"
)

// Settings - разобранная секция portal конфигурации
type Settings struct {
	Extractor         *pattern.Extractor
	Policy            volume.Policy
	Gate              Gate
	SafeExtent        chain.Extent
	PostTeleportTicks int
}

// ParseSettings проверяет секцию portal и строит из неё рабочие настройки
func ParseSettings(cfg config.PortalConfig) (Settings, error) {
	policy, err := volume.ParsePolicy(cfg.Transfer, cfg.Players)
	if err != nil {
		return Settings{}, err
	}

	ex := pattern.NewExtractor()
	switch strings.ToLower(cfg.LoadBearing) {
	case "", "opaque":
		ex.LoadBearing = pattern.LoadBearingOpaque
	case "solid_top":
		ex.LoadBearing = pattern.LoadBearingSolidTop
	default:
		return Settings{}, fmt.Errorf("portal: unknown load_bearing %q", cfg.LoadBearing)
	}

	frame, err := parseFrame(cfg.Frame)
	if err != nil {
		return Settings{}, err
	}
	ex.Frame = frame

	if cfg.SafeRadius < 0 {
		return Settings{}, fmt.Errorf("portal: negative safe_radius %d", cfg.SafeRadius)
	}
	safe := chain.SafeExtent
	if cfg.SafeRadius > 0 {
		safe = chain.Extent{
			Mins: vec.Vec3{X: -cfg.SafeRadius, Y: safe.Mins.Y, Z: -cfg.SafeRadius},
			Maxs: vec.Vec3{X: cfg.SafeRadius, Y: safe.Maxs.Y, Z: cfg.SafeRadius},
		}
	}

	if cfg.Proximity.Radius < 0 {
		return Settings{}, fmt.Errorf("portal: negative proximity radius %d", cfg.Proximity.Radius)
	}
	if cfg.PostTeleportTicks < 0 {
		return Settings{}, fmt.Errorf("portal: negative post_teleport_ticks %d", cfg.PostTeleportTicks)
	}

	return Settings{
		Extractor: ex,
		Policy:    policy,
		Gate: Gate{
			Cyclic: cfg.Proximity.Cyclic,
			Remote: cfg.Proximity.Remote,
			Radius: cfg.Proximity.Radius,
		},
		SafeExtent:        safe,
		PostTeleportTicks: cfg.PostTeleportTicks,
	}, nil
}

func parseFrame(cfg config.FrameConfig) (pattern.FramePolicy, error) {
	rings := cfg.Rings
	if rings == 0 {
		rings = 1
	}
	if rings < 1 || rings > 2 {
		return pattern.FramePolicy{}, fmt.Errorf("portal: frame rings must be 1 or 2, got %d", cfg.Rings)
	}

	switch strings.ToLower(cfg.Mode) {
	case "", "none":
		return pattern.FramePolicy{Mode: pattern.FrameNone}, nil
	case "fixed":
		material := block.Type(cfg.Material)
		if _, ok := block.Get(material); !ok || material == block.Air {
			return pattern.FramePolicy{}, fmt.Errorf("portal: unknown frame material %q", cfg.Material)
		}
		return pattern.FramePolicy{Mode: pattern.FrameFixed, Material: material, Rings: rings}, nil
	case "reference":
		return pattern.FramePolicy{Mode: pattern.FrameReference, Rings: rings}, nil
	}
	return pattern.FramePolicy{}, fmt.Errorf("portal: unknown frame mode %q", cfg.Mode)
}
