package slot

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ruminaider/euiccctl/internal/channel"
	"github.com/ruminaider/euiccctl/internal/config"
	"github.com/ruminaider/euiccctl/internal/lpa"
	"go.uber.org/zap"
)

// NewOpener returns a channel opener for the slots in cfg. Memory slots
// keep their simulated card across handles, so a profile switch survives
// the re-acquire that follows it.
func NewOpener(cfg config.Config, log *zap.Logger) channel.Opener {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		mu    sync.Mutex
		cards = make(map[int]*lpa.Memory)
	)
	return func(_ context.Context, id int) (lpa.Client, error) {
		sc, ok := cfg.Slot(id)
		if !ok {
			return nil, fmt.Errorf("%w: slot %d is not configured", channel.ErrUnavailable, id)
		}
		switch sc.Backend {
		case config.BackendMemory:
			mu.Lock()
			defer mu.Unlock()
			card, ok := cards[id]
			if !ok {
				card = lpa.NewMemory(lpa.DemoProfiles()...)
				cards[id] = card
			}
			return card, nil
		case config.BackendLpac:
			if sc.Device != "" {
				if _, err := os.Stat(sc.Device); err != nil {
					return nil, fmt.Errorf("%w: slot %d: device %s: %v", channel.ErrUnavailable, id, sc.Device, err)
				}
			}
			return lpa.NewLpac(cfg.Lpac.Path, sc.LpacEnv(),
				lpa.WithLogger(log.With(zap.Int("slot", id)))), nil
		default:
			return nil, fmt.Errorf("%w: slot %d: unknown backend %q", channel.ErrUnavailable, id, sc.Backend)
		}
	}
}
