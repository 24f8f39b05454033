package ratelimit

// TierFunc looks up a hotel's subscription tier ("basic", "standard",
// "premium"). It is backed by the persistence layer and treated here as a
// pure lookup.
type TierFunc func(hotelID string) string

// Resolver selects the rules applying to a request. Resolution order is
// fixed: global default first, then the caller's role rule, then every
// matching endpoint rule, then the hotel's tier rule. All resolved rules are
// evaluated; later rules never override earlier ones.
type Resolver struct {
	rules   *RuleSet
	tierFor TierFunc
}

// NewResolver builds a Resolver. tierFor may be nil, in which case tier
// rules are never applied.
func NewResolver(rules *RuleSet, tierFor TierFunc) *Resolver {
	return &Resolver{rules: rules, tierFor: tierFor}
}

// Resolve returns the ordered list of rules applying to rctx. The global
// rule always applies; zero further matches is not an error.
func (rv *Resolver) Resolve(rctx *RequestContext) []*Rule {
	rules := []*Rule{rv.rules.Global}

	role := rctx.UserRole
	if role == "" {
		role = AnonymousRole
	}
	if rule, ok := rv.rules.Roles[role]; ok {
		rules = append(rules, rule)
	}

	for _, rule := range rv.rules.Endpoints {
		if rule.Matches(rctx.Path, rctx.Method) {
			rules = append(rules, rule)
		}
	}

	if rctx.HotelID != "" && rv.tierFor != nil {
		if rule, ok := rv.rules.Tiers[rv.tierFor(rctx.HotelID)]; ok {
			rules = append(rules, rule)
		}
	}
	return rules
}
