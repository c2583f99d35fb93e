// Package metrics declares the Prometheus collectors for guest access.
// Collectors register with the default registry on package init and are
// served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LinksIssued counts guest access links created.
	LinksIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptshelf_guest_links_issued_total",
		Help: "Guest access links issued",
	})

	// LinksRevoked counts guest access links revoked.
	LinksRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptshelf_guest_links_revoked_total",
		Help: "Guest access links revoked",
	})

	// Validations counts token validations by result code ("ok", "EXPIRED", ...).
	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptshelf_guest_link_validations_total",
		Help: "Guest token validations by result",
	}, []string{"result"})

	// ValidationDuration times token validations end to end.
	ValidationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptshelf_guest_link_validation_seconds",
		Help:    "Guest token validation latency",
		Buckets: prometheus.DefBuckets,
	})

	// GuestRestores counts load-time restores by source tier.
	GuestRestores = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptshelf_guest_session_restores_total",
		Help: "Guest sessions restored at page load, by source tier",
	}, []string{"source"})

	// GuestClearBlocked counts unforced clears refused because a guest token was live.
	GuestClearBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptshelf_guest_session_clear_blocked_total",
		Help: "Unforced guest session clears refused while a token was resolvable",
	})

	// GateDenials counts guest actions refused by the permission gate.
	GateDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptshelf_guest_gate_denials_total",
		Help: "Guest actions denied by the permission gate",
	}, []string{"action"})

	// ActiveLinks is the number of links currently granting access,
	// refreshed by the link stats worker.
	ActiveLinks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptshelf_guest_links_active",
		Help: "Guest access links currently granting access",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
