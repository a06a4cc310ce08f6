// Package catalog holds the per-country income tax rules. Regular countries
// are declared in the embedded countries.yaml; the few whose formulas are
// not bracket tables are written in Go and registered by name.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/iwvelando/tax-atlas/internal/tax"
	"github.com/iwvelando/tax-atlas/pkg/progressive"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed countries.yaml
var countriesYAML []byte

// DefaultNotice is the notice of the rule returned for unknown countries.
const DefaultNotice = "No information"

// Kind selects how a country entry is turned into a rule.
type Kind string

const (
	KindProgressive Kind = "progressive"
	KindZero        Kind = "zero"
	KindNone        Kind = "none"
	KindBranching   Kind = "branching"
	KindSpecial     Kind = "special"
)

var (
	// ErrDuplicateCountry is returned when a country is declared twice.
	ErrDuplicateCountry = errors.New("duplicate country")
	// ErrUnknownKind is returned for an entry with an unsupported kind.
	ErrUnknownKind = errors.New("unknown country kind")
	// ErrInvalidComponent is returned for a component that is neither a
	// bracket table nor a flat rate.
	ErrInvalidComponent = errors.New("invalid component")
	// ErrMissingRule is returned when a special entry has no Go rule.
	ErrMissingRule = errors.New("no rule registered for special country")
)

// Country is the descriptive part of a catalog entry.
type Country struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Currency string `json:"currency,omitempty"`
	Link     string `json:"link,omitempty"`
	Notice   string `json:"notice,omitempty"`
}

// Source returns the link and notice attached to the country's results.
func (c Country) Source() tax.Source {
	return tax.Source{Link: c.Link, Notice: c.Notice}
}

type componentDoc struct {
	Name     string                `yaml:"name"`
	Brackets []progressive.Bracket `yaml:"brackets"`
	Flat     *float64              `yaml:"flat"`
}

type branchesDoc struct {
	Married           []componentDoc `yaml:"married"`
	MarriedOneIncome  []componentDoc `yaml:"marriedOneIncome"`
	MarriedTwoIncomes []componentDoc `yaml:"marriedTwoIncomes"`
	Single            []componentDoc `yaml:"single"`
}

type countryDoc struct {
	Name       string         `yaml:"name"`
	Kind       Kind           `yaml:"kind"`
	Currency   string         `yaml:"currency"`
	Link       string         `yaml:"link"`
	Notice     string         `yaml:"notice"`
	Cap        *float64       `yaml:"cap"`
	Components []componentDoc `yaml:"components"`
	Branches   branchesDoc    `yaml:"branches"`
}

type document struct {
	Countries []countryDoc `yaml:"countries"`
}

// Catalog maps country names to rules. It is read-only once built and safe
// for concurrent use.
type Catalog struct {
	logger     *zap.Logger
	countries  map[string]Country
	rules      map[string]tax.Rule
	components map[string]func(tax.Profile) ([]tax.Component, error)
	names      []string
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog built from the embedded data, logging through
// the global zap logger. It is built on first use.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load(zap.L())
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("catalog: embedded data is invalid: %v", defaultErr))
	}
	return defaultCatalog
}

// Load builds a catalog from the embedded country data.
func Load(logger *zap.Logger) (*Catalog, error) {
	return New(logger, countriesYAML)
}

// New builds a catalog from a YAML document in the countries.yaml layout.
// Every schedule is validated; the first invalid entry fails construction.
func New(logger *zap.Logger, data []byte) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse country catalog: %w", err)
	}

	if dups := lo.FindDuplicatesBy(doc.Countries, func(c countryDoc) string { return c.Name }); len(dups) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCountry, dups[0].Name)
	}

	c := &Catalog{
		logger:     logger,
		countries:  make(map[string]Country, len(doc.Countries)),
		rules:      make(map[string]tax.Rule, len(doc.Countries)),
		components: make(map[string]func(tax.Profile) ([]tax.Component, error)),
	}

	for _, entry := range doc.Countries {
		country, rule, err := c.build(entry)
		if err != nil {
			return nil, fmt.Errorf("country %q: %w", entry.Name, err)
		}
		c.countries[country.Name] = country
		c.rules[country.Name] = rule
	}

	c.names = lo.Keys(c.countries)
	sort.Strings(c.names)

	logger.Debug("country catalog loaded",
		zap.String("op", "catalog.New"),
		zap.Int("countries", len(c.names)),
	)
	return c, nil
}

func (c *Catalog) build(entry countryDoc) (Country, tax.Rule, error) {
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		return Country{}, nil, errors.New("country name is required")
	}
	kind := entry.Kind
	if kind == "" {
		kind = KindProgressive
	}
	country := Country{
		Name:     name,
		Kind:     kind,
		Currency: strings.ToUpper(strings.TrimSpace(entry.Currency)),
		Link:     entry.Link,
		Notice:   entry.Notice,
	}

	var rule tax.Rule
	switch kind {
	case KindProgressive:
		components, err := buildComponents(entry.Components)
		if err != nil {
			return Country{}, nil, err
		}
		if len(components) == 0 {
			return Country{}, nil, fmt.Errorf("%w: progressive country needs at least one component", ErrInvalidComponent)
		}
		rule = tax.Progressive(c.logger, country.Currency, country.Source(), components...)
		c.components[name] = func(tax.Profile) ([]tax.Component, error) { return components, nil }
	case KindZero:
		rule = tax.Zero(country.Source())
	case KindNone:
		notice := country.Notice
		if notice == "" {
			notice = DefaultNotice
		}
		country.Notice = notice
		rule = tax.NoInformationRule(notice)
	case KindBranching:
		branches, err := buildBranches(entry.Branches)
		if err != nil {
			return Country{}, nil, err
		}
		rule = tax.Branching(c.logger, country.Currency, country.Source(), branches)
		c.components[name] = branches.Select
	case KindSpecial:
		factory, ok := specialRules[name]
		if !ok {
			return Country{}, nil, fmt.Errorf("%w: %s", ErrMissingRule, name)
		}
		rule = factory(c.logger, country)
	default:
		return Country{}, nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if entry.Cap != nil {
		if *entry.Cap < 0 || *entry.Cap > 1 {
			return Country{}, nil, fmt.Errorf("cap %v must be within [0, 1]", *entry.Cap)
		}
		rule = tax.Capped(rule, *entry.Cap)
	}
	return country, rule, nil
}

func buildComponents(docs []componentDoc) ([]tax.Component, error) {
	components := make([]tax.Component, 0, len(docs))
	for i, doc := range docs {
		name := doc.Name
		if name == "" {
			name = fmt.Sprintf("component %d", i+1)
		}
		switch {
		case len(doc.Brackets) > 0 && doc.Flat != nil:
			return nil, fmt.Errorf("%w: %s has both brackets and a flat rate", ErrInvalidComponent, name)
		case len(doc.Brackets) > 0:
			schedule, err := progressive.NewSchedule(doc.Brackets...)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			components = append(components, tax.Bracketed(name, schedule))
		case doc.Flat != nil:
			if *doc.Flat < 0 || *doc.Flat > 1 {
				return nil, fmt.Errorf("%w: %s flat rate %v must be within [0, 1]", ErrInvalidComponent, name, *doc.Flat)
			}
			components = append(components, tax.FlatRate(name, *doc.Flat))
		default:
			return nil, fmt.Errorf("%w: %s has neither brackets nor a flat rate", ErrInvalidComponent, name)
		}
	}
	return components, nil
}

func buildBranches(doc branchesDoc) (tax.Branches, error) {
	var (
		branches tax.Branches
		err      error
	)
	if branches.Married, err = buildComponents(doc.Married); err != nil {
		return tax.Branches{}, fmt.Errorf("married: %w", err)
	}
	if branches.MarriedOneIncome, err = buildComponents(doc.MarriedOneIncome); err != nil {
		return tax.Branches{}, fmt.Errorf("marriedOneIncome: %w", err)
	}
	if branches.MarriedTwoIncomes, err = buildComponents(doc.MarriedTwoIncomes); err != nil {
		return tax.Branches{}, fmt.Errorf("marriedTwoIncomes: %w", err)
	}
	if branches.Single, err = buildComponents(doc.Single); err != nil {
		return tax.Branches{}, fmt.Errorf("single: %w", err)
	}

	if len(branches.Single) == 0 {
		return tax.Branches{}, fmt.Errorf("%w: branching country needs a single schedule", ErrInvalidComponent)
	}
	if len(branches.Married) == 0 && (len(branches.MarriedOneIncome) == 0 || len(branches.MarriedTwoIncomes) == 0) {
		return tax.Branches{}, fmt.Errorf("%w: branching country needs a married schedule or both married variants", ErrInvalidComponent)
	}
	return branches, nil
}

// Lookup returns the rule registered for name.
func (c *Catalog) Lookup(name string) (tax.Rule, bool) {
	rule, ok := c.rules[name]
	return rule, ok
}

// Rule returns the rule for name, or the "no information" rule when the
// country is not in the catalog.
func (c *Catalog) Rule(name string) tax.Rule {
	if rule, ok := c.rules[name]; ok {
		return rule
	}
	return tax.NoInformationRule(DefaultNotice)
}

// Country returns the descriptive entry for name.
func (c *Catalog) Country(name string) (Country, bool) {
	country, ok := c.countries[name]
	return country, ok
}

// Names returns the country names in sorted order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Len returns the number of countries.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Currencies returns the sorted set of currency codes the catalog needs
// rates for. Countries taxed in USD are not included.
func (c *Catalog) Currencies() []string {
	codes := lo.FilterMap(lo.Values(c.countries), func(country Country, _ int) (string, bool) {
		return country.Currency, country.Currency != ""
	})
	codes = lo.Uniq(codes)
	sort.Strings(codes)
	return codes
}

// Evaluate runs the rule for name. Unknown countries yield the
// "no information" result.
func (c *Catalog) Evaluate(name string, profile tax.Profile, rates tax.ExchangeRates) (tax.Result, error) {
	return c.Rule(name)(profile, rates)
}

// Explanation is the contribution of one component to a country's tax.
type Explanation struct {
	Component    string              `json:"component"`
	FlatRate     float64             `json:"flatRate,omitempty"`
	MarginalRate float64             `json:"marginalRate"`
	Slices       []progressive.Slice `json:"slices,omitempty"`
	Tax          float64             `json:"tax"`
}

// Explain breaks the tax for name down by component and bracket, in the
// country's currency. It returns nil for countries whose formula is not a
// sum of components, and for a missing exchange rate.
func (c *Catalog) Explain(name string, profile tax.Profile, rates tax.ExchangeRates) ([]Explanation, error) {
	selectComponents, ok := c.components[name]
	if !ok {
		return nil, nil
	}
	components, err := selectComponents(profile)
	if err != nil {
		return nil, err
	}
	local, _, ok := tax.Localize(nil, profile, rates, c.countries[name].Currency)
	if !ok {
		return nil, nil
	}

	explanations := make([]Explanation, 0, len(components))
	for _, component := range components {
		explanation := Explanation{Component: component.Name, Tax: component.Tax(local)}
		if component.Schedule.Len() > 0 {
			explanation.Slices = progressive.Breakdown(component.Schedule, local)
			explanation.MarginalRate = progressive.MarginalRate(component.Schedule, local)
		} else {
			explanation.FlatRate = component.FlatRate
			explanation.MarginalRate = component.FlatRate
		}
		explanations = append(explanations, explanation)
	}
	return explanations, nil
}
