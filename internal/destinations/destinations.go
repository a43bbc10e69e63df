// ABOUTME: Destination browsing: region/type filters, localized fields and seed text
// ABOUTME: Selecting a destination yields the seed message that opens a fresh conversation

package destinations

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/i18n"
)

// All disables a filter dimension.
const All = "all"

// Destination type tags.
const (
	TypeBeach    = "beach"
	TypeMountain = "mountain"
	TypeCity     = "city"
	TypeCulture  = "culture"
	TypeNature   = "nature"
)

// Regions lists the region filter values in display order.
var Regions = []string{All, api.RegionNorth, api.RegionCentral, api.RegionSouth}

// Types lists the type filter values in display order.
var Types = []string{All, TypeBeach, TypeMountain, TypeCity, TypeCulture, TypeNature}

var regionLabels = map[i18n.Lang]map[string]string{
	i18n.Vietnamese: {All: "Tất cả", api.RegionNorth: "Miền Bắc", api.RegionCentral: "Miền Trung", api.RegionSouth: "Miền Nam"},
	i18n.English:    {All: "All", api.RegionNorth: "North", api.RegionCentral: "Central", api.RegionSouth: "South"},
}

var typeLabels = map[i18n.Lang]map[string]string{
	i18n.Vietnamese: {All: "Tất cả", TypeBeach: "Biển", TypeMountain: "Núi", TypeCity: "Thành phố", TypeCulture: "Văn hóa", TypeNature: "Thiên nhiên"},
	i18n.English:    {All: "All", TypeBeach: "Beach", TypeMountain: "Mountain", TypeCity: "City", TypeCulture: "Culture", TypeNature: "Nature"},
}

// RegionLabel returns the display label for a region value.
func RegionLabel(region string, lang i18n.Lang) string {
	if l, ok := regionLabels[lang][region]; ok {
		return l
	}
	return region
}

// TypeLabel returns the display label for a type tag.
func TypeLabel(tag string, lang i18n.Lang) string {
	if l, ok := typeLabels[lang][tag]; ok {
		return l
	}
	return tag
}

// Filter selects destinations by region and type tag. Empty or All matches everything.
type Filter struct {
	Region string
	Type   string
}

// ParseFilter reads "[region] [type]" arguments in any order.
func ParseFilter(args []string) (Filter, error) {
	var f Filter
	for _, arg := range args {
		arg = strings.ToLower(strings.TrimSpace(arg))
		switch {
		case arg == "" || arg == All:
		case slices.Contains(Regions, arg):
			f.Region = arg
		case slices.Contains(Types, arg):
			f.Type = arg
		default:
			return Filter{}, fmt.Errorf("unknown region or type %q", arg)
		}
	}
	return f, nil
}

// Matches reports whether d passes the filter.
func (f Filter) Matches(d api.Destination) bool {
	if f.Region != "" && f.Region != All && d.Region != f.Region {
		return false
	}
	if f.Type != "" && f.Type != All && !slices.Contains(d.Types, f.Type) {
		return false
	}
	return true
}

// Apply returns the destinations that pass the filter, preserving order.
func (f Filter) Apply(list []api.Destination) []api.Destination {
	out := make([]api.Destination, 0, len(list))
	for _, d := range list {
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	return out
}

// Localized is a destination rendered in one language.
type Localized struct {
	ID          string
	Name        string
	Description string
	Highlights  []string
	Region      string
	Types       []string
	ImageURL    string
}

// Localize picks the fields for lang, falling back to the other language when empty.
func Localize(d api.Destination, lang i18n.Lang) Localized {
	name, desc, highlights := d.Name, d.Description, d.Highlights
	if lang == i18n.English {
		name = firstNonEmpty(d.NameEN, d.Name)
		desc = firstNonEmpty(d.DescriptionEN, d.Description)
		if len(d.HighlightsEN) > 0 {
			highlights = d.HighlightsEN
		}
	} else {
		name = firstNonEmpty(d.Name, d.NameEN)
		desc = firstNonEmpty(d.Description, d.DescriptionEN)
		if len(highlights) == 0 {
			highlights = d.HighlightsEN
		}
	}

	types := make([]string, 0, len(d.Types))
	for _, t := range d.Types {
		types = append(types, TypeLabel(t, lang))
	}
	return Localized{
		ID:          d.ID,
		Name:        name,
		Description: desc,
		Highlights:  append([]string(nil), highlights...),
		Region:      RegionLabel(d.Region, lang),
		Types:       types,
		ImageURL:    d.ImageURL,
	}
}

// SeedText is the message that starts a chat about d: its name in lang.
func SeedText(d api.Destination, lang i18n.Lang) string {
	return Localize(d, lang).Name
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Lister fetches destinations from the backend.
type Lister interface {
	ListDestinations(ctx context.Context, filter api.DestinationFilter) ([]api.Destination, error)
}

// Browser lists destinations for the chooser.
type Browser struct {
	lister Lister
	logger *slog.Logger
}

// NewBrowser creates a Browser.
func NewBrowser(lister Lister, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{lister: lister, logger: logger.With("component", "destinations")}
}

// List asks the backend for destinations matching f in lang, then applies f
// locally so an older backend that ignores the query still filters correctly.
func (b *Browser) List(ctx context.Context, f Filter, lang i18n.Lang) ([]api.Destination, error) {
	query := api.DestinationFilter{Language: string(lang)}
	if f.Region != All {
		query.Region = f.Region
	}
	if f.Type != All {
		query.Type = f.Type
	}

	list, err := b.lister.ListDestinations(ctx, query)
	if err != nil {
		b.logger.Warn("failed to list destinations", "error", err)
		return nil, fmt.Errorf("listing destinations: %w", err)
	}
	out := f.Apply(list)
	b.logger.Debug("destinations listed",
		"region", f.Region,
		"type", f.Type,
		"count", len(out))
	return out, nil
}
