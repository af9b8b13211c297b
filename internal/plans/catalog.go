package plans

import (
	"fmt"
	"math"
	"sort"

	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
)

// FeatureDefinition declares the shape a feature value must have.
type FeatureDefinition struct {
	Key         string      `json:"key"`
	Kind        FeatureKind `json:"kind"`
	Description string      `json:"description"`
	Min         *float64    `json:"min,omitempty"`
	Max         *float64    `json:"max,omitempty"`
	Integer     bool        `json:"integer,omitempty"`
	Options     []string    `json:"options,omitempty"`
}

func bound(v float64) *float64 { return &v }

var catalog = []FeatureDefinition{
	{Key: "custom_domain", Kind: FeatureKindBool, Description: "Serve the storefront from a merchant-owned domain"},
	{Key: "remove_branding", Kind: FeatureKindBool, Description: "Hide platform branding on the storefront"},
	{Key: "fraud_check", Kind: FeatureKindBool, Description: "Screen orders with the fraud-check integration"},
	{Key: "max_products", Kind: FeatureKindNumber, Description: "Catalog size limit", Min: bound(1), Max: bound(1_000_000), Integer: true},
	{Key: "staff_accounts", Kind: FeatureKindNumber, Description: "Staff logins besides the owner", Min: bound(0), Max: bound(100), Integer: true},
	{Key: "storage_gb", Kind: FeatureKindNumber, Description: "Media storage quota in GB", Min: bound(0.5), Max: bound(1000)},
	{Key: "transaction_fee_percent", Kind: FeatureKindNumber, Description: "Platform fee on each order", Min: bound(0), Max: bound(10)},
	{Key: "analytics", Kind: FeatureKindString, Description: "Analytics tier", Options: []string{"none", "basic", "advanced"}},
	{Key: "support_level", Kind: FeatureKindString, Description: "Support channel", Options: []string{"email", "priority", "dedicated"}},
	{Key: "payment_gateways", Kind: FeatureKindStringList, Description: "Enabled payment gateways", Options: []string{"stripe", "paypal", "sslcommerz", "bkash", "cod"}},
	{Key: "themes", Kind: FeatureKindStringList, Description: "Unlocked storefront themes", Options: []string{"classic", "modern", "minimal", "bold"}},
}

var catalogByKey = func() map[string]FeatureDefinition {
	m := make(map[string]FeatureDefinition, len(catalog))
	for _, def := range catalog {
		m[def.Key] = def
	}
	return m
}()

// Catalog returns a copy of the feature definitions in declaration order.
func Catalog() []FeatureDefinition {
	out := make([]FeatureDefinition, len(catalog))
	copy(out, catalog)
	return out
}

// LookupFeature returns the definition for key.
func LookupFeature(key string) (FeatureDefinition, bool) {
	def, ok := catalogByKey[key]
	return def, ok
}

// ValidateFeatureValue checks one value against its catalog definition.
func ValidateFeatureValue(key string, value FeatureValue) error {
	def, ok := catalogByKey[key]
	if !ok {
		return featureError(key, "unknown feature")
	}
	if value.Kind() != def.Kind {
		return featureError(key, fmt.Sprintf("expected %s value, got %s", def.Kind, kindLabel(value.Kind())))
	}

	switch def.Kind {
	case FeatureKindNumber:
		n, _ := value.NumberValue()
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return featureError(key, "must be a finite number")
		}
		if def.Integer && n != math.Trunc(n) {
			return featureError(key, "must be a whole number")
		}
		if def.Min != nil && n < *def.Min {
			return featureError(key, fmt.Sprintf("must be at least %v", *def.Min))
		}
		if def.Max != nil && n > *def.Max {
			return featureError(key, fmt.Sprintf("must be at most %v", *def.Max))
		}
	case FeatureKindString:
		s, _ := value.StringValue()
		if !def.allows(s) {
			return featureError(key, fmt.Sprintf("%q is not an allowed option", s))
		}
	case FeatureKindStringList:
		list, _ := value.ListValue()
		seen := make(map[string]struct{}, len(list))
		for _, item := range list {
			if !def.allows(item) {
				return featureError(key, fmt.Sprintf("%q is not an allowed option", item))
			}
			if _, dup := seen[item]; dup {
				return featureError(key, fmt.Sprintf("%q is listed twice", item))
			}
			seen[item] = struct{}{}
		}
	}
	return nil
}

// ValidateFeatures validates every entry, reporting the first failing key in
// lexical order.
func ValidateFeatures(features FeatureMap) error {
	keys := make([]string, 0, len(features))
	for key := range features {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := ValidateFeatureValue(key, features[key]); err != nil {
			return err
		}
	}
	return nil
}

func (d FeatureDefinition) allows(option string) bool {
	if len(d.Options) == 0 {
		return true
	}
	for _, candidate := range d.Options {
		if candidate == option {
			return true
		}
	}
	return false
}

func kindLabel(kind FeatureKind) string {
	if kind == "" {
		return "empty"
	}
	return string(kind)
}

func featureError(key, reason string) error {
	return pkgerrors.Newf(pkgerrors.CodeValidation, "feature %q: %s", key, reason).
		WithDetails(map[string]any{"feature": key, "reason": reason})
}
