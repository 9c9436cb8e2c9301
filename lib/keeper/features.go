package keeper

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dKeeper/lib/fourlw"
)

// Feature is an optional protocol feature that can be switched off.
type Feature string

const (
	// FeatureFilteredList allows listing only persistent or only ephemeral children.
	FeatureFilteredList Feature = "filtered_list"
	// FeatureRemoveRecursive allows deleting a whole subtree with one request.
	FeatureRemoveRecursive Feature = "remove_recursive"
	// FeaturePiggybackWatchEvents delivers watch events with the next response of the session.
	FeaturePiggybackWatchEvents Feature = "piggyback_watch_events"
)

// AllFeatures lists every known feature in display order.
var AllFeatures = []Feature{FeatureFilteredList, FeatureRemoveRecursive, FeaturePiggybackWatchEvents}

// DefaultFeatures is the comma separated list of features enabled by default.
const DefaultFeatures = "filtered_list,remove_recursive,piggyback_watch_events"

// featureSet is the set of enabled features, it is read only after creation
type featureSet map[Feature]bool

// parseFeatures parses a comma separated list of feature names
func parseFeatures(list string) (featureSet, error) {
	set := make(featureSet)
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		known := false
		for _, f := range AllFeatures {
			if string(f) == name {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
		}
		set[Feature(name)] = true
	}
	return set, nil
}

func (s featureSet) enabled(f Feature) bool {
	return s[f]
}

func (s featureSet) list() []fourlw.FeatureFlag {
	flags := make([]fourlw.FeatureFlag, 0, len(AllFeatures))
	for _, f := range AllFeatures {
		flags = append(flags, fourlw.FeatureFlag{Name: string(f), Enabled: s[f]})
	}
	return flags
}
