// Package invalidation defines the catalog refresh message published when
// a service's layers or instances change upstream.
package invalidation

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Event asks every facade to drop its cached catalog of ServiceURL. An
// empty Service means all of wms, wcs and wfs.
type Event struct {
	Version    int       `json:"version"`
	Op         string    `json:"op"`
	ServiceURL string    `json:"service_url"`
	Service    string    `json:"service,omitempty"`
	TS         time.Time `json:"ts"`
	Source     string    `json:"source,omitempty"`
}

var services = []string{"wms", "wcs", "wfs"}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "refresh", "delete":
	default:
		return fmt.Errorf("op must be refresh|delete")
	}
	if strings.TrimSpace(e.ServiceURL) == "" {
		return fmt.Errorf("service_url is required")
	}
	if !strings.HasPrefix(e.ServiceURL, "http://") && !strings.HasPrefix(e.ServiceURL, "https://") {
		return fmt.Errorf("service_url must be an http(s) URL")
	}
	if e.Service != "" && !slices.Contains(services, strings.ToLower(e.Service)) {
		return fmt.Errorf("service must be wms|wcs|wfs")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// Services lists the catalogs the event covers.
func (e Event) Services() []string {
	if e.Service == "" {
		return slices.Clone(services)
	}
	return []string{strings.ToLower(e.Service)}
}
