// Package keywords provides the keyword dictionary and factor rate table that
// drive transaction classification, position detection and risk scoring.
// Dictionaries are loaded once from YAML and are read-only afterwards.
package keywords

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exclusion rule names, in their default priority order.
const (
	RuleInternalTransfer  = "internal_transfer"
	RuleLoanProceeds      = "loan_proceeds"
	RuleLenderFunding     = "known_lender_funding"
	RuleLargeRoundFunding = "large_round_financing"
	RuleOwnerDraw         = "owner_draw"
	RuleRevenueExclude    = "revenue_exclude"
)

// DefaultExclusionOrder is the first-match-wins order used when the
// dictionary does not specify one.
var DefaultExclusionOrder = []string{
	RuleInternalTransfer,
	RuleLoanProceeds,
	RuleLenderFunding,
	RuleLargeRoundFunding,
	RuleOwnerDraw,
	RuleRevenueExclude,
}

// DefaultFactorRate applies when neither the lender nor the table default is configured.
const DefaultFactorRate = 1.35

// Lender is one canonical lender and the description fragments that identify it.
type Lender struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// LenderTiers groups known lenders by market tier.
type LenderTiers struct {
	Tier1 []Lender `yaml:"tier_1"`
	Tier2 []Lender `yaml:"tier_2"`
	Tier3 []Lender `yaml:"tier_3"`
	Tier4 []Lender `yaml:"tier_4"`
}

// ExpenseCategory is an ordered expense bucket.
type ExpenseCategory struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// FactorRates is the factor rate table.
type FactorRates struct {
	Default float64            `yaml:"default"`
	Lenders map[string]float64 `yaml:"lenders"`
}

// Config is the YAML layout of a keyword dictionary file.
type Config struct {
	Transfer          []string          `yaml:"transfer"`
	LoanProceeds      []string          `yaml:"loan_proceeds"`
	OwnerDraw         []string          `yaml:"owner_draw"`
	RevenueExclude    []string          `yaml:"revenue_exclude"`
	Financing         []string          `yaml:"financing"`
	NSF               []string          `yaml:"nsf"`
	Cash              []string          `yaml:"cash"`
	Gambling          []string          `yaml:"gambling"`
	RedFlags          []string          `yaml:"red_flags"`
	ExpenseCategories []ExpenseCategory `yaml:"expense_categories"`
	Lenders           LenderTiers       `yaml:"lenders"`
	FactorRates       FactorRates       `yaml:"factor_rates"`
	ExclusionOrder    []string          `yaml:"exclusion_order"`
}

// aliasEntry is one flattened alias -> canonical lender mapping.
type aliasEntry struct {
	alias string
	name  string
	tier  int
}

// Dictionary is the immutable, normalized form of Config.
// A nil *Dictionary is valid and behaves as an empty, permissive dictionary.
type Dictionary struct {
	config         Config
	aliases        []aliasEntry
	aliasesByName  map[string][]string
	tierByName     map[string]int
	factorRates    map[string]float64
	exclusionOrder []string
}

// Load reads a dictionary from a YAML file.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword file: %w", err)
	}
	return Parse(data)
}

// LoadOrEmpty reads a dictionary, falling back to an empty one when the path is
// empty or the file does not exist. Malformed YAML is still an error.
func LoadOrEmpty(path string) (*Dictionary, error) {
	if path == "" {
		return New(Config{}), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(Config{}), nil
	}
	return Load(path)
}

// Parse builds a dictionary from YAML bytes.
func Parse(data []byte) (*Dictionary, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for _, rule := range config.ExclusionOrder {
		if !isKnownRule(rule) {
			return nil, fmt.Errorf("unknown exclusion rule %q", rule)
		}
	}
	return New(config), nil
}

// New normalizes a Config into a Dictionary.
func New(config Config) *Dictionary {
	d := &Dictionary{
		config:        normalizeConfig(config),
		aliasesByName: make(map[string][]string),
		tierByName:    make(map[string]int),
		factorRates:   make(map[string]float64),
	}
	d.buildLenderMaps()

	for name, rate := range config.FactorRates.Lenders {
		d.factorRates[strings.ToUpper(name)] = rate
	}

	d.exclusionOrder = DefaultExclusionOrder
	if len(config.ExclusionOrder) > 0 {
		d.exclusionOrder = append([]string(nil), config.ExclusionOrder...)
	}

	return d
}

// buildLenderMaps flattens the four lender tiers into an alias lookup sorted
// longest alias first so that longer, more specific aliases win.
func (d *Dictionary) buildLenderMaps() {
	tiers := [][]Lender{
		d.config.Lenders.Tier1,
		d.config.Lenders.Tier2,
		d.config.Lenders.Tier3,
		d.config.Lenders.Tier4,
	}

	seen := make(map[string]bool)
	for i, tier := range tiers {
		for _, lender := range tier {
			if _, ok := d.tierByName[lender.Name]; !ok {
				d.tierByName[lender.Name] = i + 1
			}
			// The canonical name is always an alias of itself.
			names := append([]string{strings.ToUpper(lender.Name)}, lender.Aliases...)
			for _, alias := range names {
				if alias == "" || seen[alias] {
					continue
				}
				seen[alias] = true
				d.aliases = append(d.aliases, aliasEntry{alias: alias, name: lender.Name, tier: i + 1})
				d.aliasesByName[lender.Name] = append(d.aliasesByName[lender.Name], alias)
			}
		}
	}

	sort.SliceStable(d.aliases, func(i, j int) bool {
		return len(d.aliases[i].alias) > len(d.aliases[j].alias)
	})
}

// Config returns the normalized configuration the dictionary was built from.
func (d *Dictionary) Config() Config {
	if d == nil {
		return Config{}
	}
	return d.config
}

// MatchLender returns the canonical lender name for a description, using the
// longest alias that appears in it.
func (d *Dictionary) MatchLender(description string) (name, alias string, ok bool) {
	if d == nil {
		return "", "", false
	}
	upper := strings.ToUpper(description)
	for _, entry := range d.aliases {
		if strings.Contains(upper, entry.alias) {
			return entry.name, entry.alias, true
		}
	}
	return "", "", false
}

// DescribesLender reports whether description contains an alias of the named lender.
func (d *Dictionary) DescribesLender(description, name string) bool {
	if d == nil {
		return false
	}
	upper := strings.ToUpper(description)
	for _, alias := range d.aliasesByName[name] {
		if strings.Contains(upper, alias) {
			return true
		}
	}
	return false
}

// LenderTier returns the configured tier (1-4) of a lender, or 0 when unknown.
func (d *Dictionary) LenderTier(name string) int {
	if d == nil {
		return 0
	}
	return d.tierByName[name]
}

// FactorRate returns the factor rate for a lender, falling back to the table
// default and then DefaultFactorRate.
func (d *Dictionary) FactorRate(lender string) float64 {
	if d != nil {
		if rate, ok := d.factorRates[strings.ToUpper(lender)]; ok && rate > 0 {
			return rate
		}
		if d.config.FactorRates.Default > 0 {
			return d.config.FactorRates.Default
		}
	}
	return DefaultFactorRate
}

// ExclusionOrder returns the first-match-wins order of revenue exclusion rules.
func (d *Dictionary) ExclusionOrder() []string {
	if d == nil {
		return DefaultExclusionOrder
	}
	return d.exclusionOrder
}

// Terms returns the normalized term list of a keyword group.
func (d *Dictionary) Terms(group string) []string {
	if d == nil {
		return nil
	}
	switch group {
	case RuleInternalTransfer:
		return d.config.Transfer
	case RuleLoanProceeds:
		return d.config.LoanProceeds
	case RuleOwnerDraw:
		return d.config.OwnerDraw
	case RuleRevenueExclude:
		return d.config.RevenueExclude
	case GroupFinancing:
		return d.config.Financing
	case GroupNSF:
		return d.config.NSF
	case GroupCash:
		return d.config.Cash
	case GroupGambling:
		return d.config.Gambling
	case GroupRedFlags:
		return d.config.RedFlags
	}
	return nil
}

// ExpenseCategories returns the ordered expense buckets.
func (d *Dictionary) ExpenseCategories() []ExpenseCategory {
	if d == nil {
		return nil
	}
	return d.config.ExpenseCategories
}

// Keyword group names that are not exclusion rules.
const (
	GroupFinancing = "financing"
	GroupNSF       = "nsf"
	GroupCash      = "cash"
	GroupGambling  = "gambling"
	GroupRedFlags  = "red_flags"
)

// Match returns the first term of group contained in description.
func (d *Dictionary) Match(group, description string) (string, bool) {
	return FirstMatch(description, d.Terms(group))
}

// FirstMatch returns the first of the normalized terms contained in description.
func FirstMatch(description string, terms []string) (string, bool) {
	if len(terms) == 0 {
		return "", false
	}
	upper := strings.ToUpper(description)
	for _, term := range terms {
		if strings.Contains(upper, term) {
			return term, true
		}
	}
	return "", false
}

func isKnownRule(rule string) bool {
	for _, r := range DefaultExclusionOrder {
		if r == rule {
			return true
		}
	}
	return false
}

// normalizeConfig upper-cases and trims every term so matching is case-insensitive.
func normalizeConfig(c Config) Config {
	c.Transfer = normalizeTerms(c.Transfer)
	c.LoanProceeds = normalizeTerms(c.LoanProceeds)
	c.OwnerDraw = normalizeTerms(c.OwnerDraw)
	c.RevenueExclude = normalizeTerms(c.RevenueExclude)
	c.Financing = normalizeTerms(c.Financing)
	c.NSF = normalizeTerms(c.NSF)
	c.Cash = normalizeTerms(c.Cash)
	c.Gambling = normalizeTerms(c.Gambling)
	c.RedFlags = normalizeTerms(c.RedFlags)

	categories := make([]ExpenseCategory, 0, len(c.ExpenseCategories))
	for _, cat := range c.ExpenseCategories {
		categories = append(categories, ExpenseCategory{Name: cat.Name, Keywords: normalizeTerms(cat.Keywords)})
	}
	c.ExpenseCategories = categories

	c.Lenders = LenderTiers{
		Tier1: normalizeLenders(c.Lenders.Tier1),
		Tier2: normalizeLenders(c.Lenders.Tier2),
		Tier3: normalizeLenders(c.Lenders.Tier3),
		Tier4: normalizeLenders(c.Lenders.Tier4),
	}
	return c
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToUpper(strings.TrimSpace(term))
		if term != "" {
			out = append(out, term)
		}
	}
	return out
}

func normalizeLenders(lenders []Lender) []Lender {
	out := make([]Lender, 0, len(lenders))
	for _, l := range lenders {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			continue
		}
		out = append(out, Lender{Name: name, Aliases: normalizeTerms(l.Aliases)})
	}
	return out
}
