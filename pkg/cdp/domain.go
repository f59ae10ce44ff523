package cdp

// RiskTier classifies how invasive an activated domain is. It governs how
// long the domain stays enabled while idle before the sweeper tears it down.
type RiskTier string

const (
	// RiskLow marks inert domains (pure observation, no page side effects).
	RiskLow RiskTier = "low"
	// RiskMedium marks domains that add observable overhead to the page.
	RiskMedium RiskTier = "medium"
	// RiskHigh marks invasive domains (interception, emulation overrides).
	RiskHigh RiskTier = "high"
)

// DomainState is the lifecycle state of a protocol domain. Activation is
// mirrored on every pooled connection; the logical state here is Active only
// when every live connection has the domain enabled.
type DomainState int

const (
	DomainDisabled DomainState = iota
	DomainActivating
	DomainActive
	DomainDeactivating
)

func (s DomainState) String() string {
	switch s {
	case DomainDisabled:
		return "disabled"
	case DomainActivating:
		return "activating"
	case DomainActive:
		return "active"
	case DomainDeactivating:
		return "deactivating"
	default:
		return "unknown"
	}
}

// DefaultRiskTiers maps well-known protocol domains to their tier. Domains
// not listed default to RiskMedium; config may override any entry.
var DefaultRiskTiers = map[string]RiskTier{
	"Console":     RiskLow,
	"Log":         RiskLow,
	"Runtime":     RiskLow,
	"Page":        RiskLow,
	"DOM":         RiskLow,
	"Network":     RiskMedium,
	"Performance": RiskMedium,
	"Security":    RiskMedium,
	"Fetch":       RiskHigh,
	"Emulation":   RiskHigh,
	"Debugger":    RiskHigh,
}

// TierFor returns the risk tier for a domain, with overrides taking
// precedence over the defaults.
func TierFor(domain string, overrides map[string]RiskTier) RiskTier {
	if t, ok := overrides[domain]; ok {
		return t
	}
	if t, ok := DefaultRiskTiers[domain]; ok {
		return t
	}
	return RiskMedium
}
