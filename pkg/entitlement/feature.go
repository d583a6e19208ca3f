package entitlement

// Feature identifies a capability or quota dimension a plan may grant.
type Feature string

// Known features. Every constant must be registered in the catalog the
// service is built with; NewService refuses to start otherwise.
const (
	FeatureWorkspaces              Feature = "workspaces"
	FeatureTeamMembers             Feature = "team_members"
	FeatureConnectionsPerWorkspace Feature = "connections_per_workspace"
	FeatureAPIRateLimit            Feature = "api_rate_limit"
	FeatureAPICalls                Feature = "api_calls"
	FeatureExports                 Feature = "exports"
	FeaturePrioritySupport         Feature = "priority_support"
	FeatureCustomBranding          Feature = "custom_branding"
	FeatureSSO                     Feature = "sso"
)

// KnownFeatures returns the closed set of features the application code refers to.
func KnownFeatures() []Feature {
	return []Feature{
		FeatureWorkspaces,
		FeatureTeamMembers,
		FeatureConnectionsPerWorkspace,
		FeatureAPIRateLimit,
		FeatureAPICalls,
		FeatureExports,
		FeaturePrioritySupport,
		FeatureCustomBranding,
		FeatureSSO,
	}
}

// Type tells how a feature value is interpreted.
type Type string

const (
	TypeBoolean Type = "boolean"
	TypeLimit   Type = "limit"
)

// Period is the reset cadence of a feature's usage counter.
type Period string

const (
	PeriodLifetime Period = "lifetime"
	PeriodMonthly  Period = "monthly"
	PeriodYearly   Period = "yearly"
)

// Scope tells whether usage is counted per organization or per workspace.
type Scope string

const (
	ScopeOrganization Scope = "organization"
	ScopeWorkspace    Scope = "workspace"
)

// Definition is the catalog entry of a feature.
type Definition struct {
	Key         Feature `json:"key" yaml:"key"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description"`
	Type        Type    `json:"type" yaml:"type"`
	Period      Period  `json:"period" yaml:"period"`
	Scope       Scope   `json:"scope" yaml:"scope"`
	Category    string  `json:"category,omitempty" yaml:"category"`
	Active      bool    `json:"active" yaml:"active"`
}

// IsBoolean reports whether the feature is a plain on/off flag.
func (d Definition) IsBoolean() bool {
	return d.Type == TypeBoolean
}

// IsWorkspaceScoped reports whether usage is tracked per workspace.
func (d Definition) IsWorkspaceScoped() bool {
	return d.Scope == ScopeWorkspace
}

func (d Definition) validate() error {
	if d.Key == "" {
		return ErrInvalidFeatureDefinition
	}
	switch d.Type {
	case TypeBoolean, TypeLimit:
	default:
		return ErrInvalidFeatureDefinition
	}
	switch d.Period {
	case PeriodLifetime, PeriodMonthly, PeriodYearly:
	default:
		return ErrInvalidFeatureDefinition
	}
	switch d.Scope {
	case ScopeOrganization, ScopeWorkspace:
	default:
		return ErrInvalidFeatureDefinition
	}
	return nil
}
