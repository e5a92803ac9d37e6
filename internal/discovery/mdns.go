// ABOUTME: mDNS discovery of the media controller on the local network
// ABOUTME: Used at startup when no device host is configured
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/harperreed/mms-bridge/internal/logging"
)

// ServiceType is the mDNS service the controller advertises.
const ServiceType = "_autonomic._tcp"

// Controller describes a discovered media controller.
type Controller struct {
	Name string
	Host string
	Port int
}

// queryFn is swapped out by tests.
var queryFn = mdns.Query

// Find queries the local network and returns the first controller that
// answers with an IPv4 address. It keeps retrying until the context is
// canceled.
func Find(ctx context.Context, queryTimeout time.Duration) (*Controller, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("discovery canceled: %w", err)
		}

		if c := queryOnce(queryTimeout); c != nil {
			logging.Info().Str("name", c.Name).Str("host", c.Host).Int("port", c.Port).Msg("discovered controller")
			return c, nil
		}

		logging.Debug().Msg("no controller found, retrying")
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("discovery canceled: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}
}

func queryOnce(timeout time.Duration) *Controller {
	entries := make(chan *mdns.ServiceEntry, 10)
	found := make(chan *Controller, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			if entry.AddrV4 == nil {
				continue
			}
			select {
			case found <- &Controller{Name: entry.Name, Host: entry.AddrV4.String(), Port: entry.Port}:
			default:
			}
		}
	}()

	params := &mdns.QueryParam{
		Service: ServiceType,
		Domain:  "local",
		Timeout: timeout,
		Entries: entries,
	}
	if err := queryFn(params); err != nil {
		logging.Warn().Err(err).Msg("mdns query failed")
	}
	close(entries)
	<-done

	select {
	case c := <-found:
		return c
	default:
		return nil
	}
}
