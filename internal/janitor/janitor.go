package janitor

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Purger drops expired records and reports how many went.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Run purges on every tick until ctx is done.
func Run(ctx context.Context, p Purger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				log.Errorf("Error [Janitor.PurgeExpired] %s", err)
				continue
			}
			if n > 0 {
				log.Infof("janitor purged %d expired sessions", n)
			}
		}
	}
}
