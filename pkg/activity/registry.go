package activity

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var defaultWeights = map[string]Weights{
	Gaming:    {Signal: 0.8, Latency: 1.0, Bandwidth: 0.7, Jitter: 1.0, PacketLoss: 0.9},
	VideoCall: {Signal: 0.8, Latency: 1.0, Bandwidth: 0.9, Jitter: 1.0, PacketLoss: 0.9},
	Streaming: {Signal: 0.7, Latency: 0.4, Bandwidth: 1.0, Jitter: 0.6, PacketLoss: 0.7},
	General:   {Signal: 0.6, Latency: 0.6, Bandwidth: 0.8, Jitter: 0.5, PacketLoss: 0.6},
	Work:      {Signal: 0.8, Latency: 0.7, Bandwidth: 0.8, Jitter: 0.7, PacketLoss: 0.8},
	IoT:       {Signal: 1.0, Latency: 0.3, Bandwidth: 0.4, Jitter: 0.4, PacketLoss: 0.7},
}

// Registry maps activity keys to profiles. It is never modified after
// construction, so it can be shared between goroutines.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry builds the built-in profiles plus any extra ones. An extra
// profile replaces a built-in one with the same key.
func NewRegistry(extra ...Profile) *Registry {
	r := &Registry{profiles: make(map[string]Profile, len(defaultWeights)+len(extra))}
	for key, w := range defaultWeights {
		r.profiles[key] = mustProfile(key, w)
	}
	for _, p := range extra {
		if p.activity == "" {
			continue
		}
		r.profiles[p.activity] = p
	}
	return r
}

// DefaultRegistry returns a registry with only the built-in profiles
func DefaultRegistry() *Registry {
	return NewRegistry()
}

// Lookup returns the profile for an activity, ignoring case and surrounding
// whitespace. Unknown activities get the general profile.
func (r *Registry) Lookup(activity string) Profile {
	if p, ok := r.profiles[normalize(activity)]; ok {
		return p
	}
	return r.profiles[General]
}

// Supports reports whether the activity has its own profile
func (r *Registry) Supports(activity string) bool {
	_, ok := r.profiles[normalize(activity)]
	return ok
}

// Activities returns all known activity keys, sorted
func (r *Registry) Activities() []string {
	keys := make([]string, 0, len(r.profiles))
	for k := range r.profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Profiles returns all profiles sorted by activity key
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, k := range r.Activities() {
		out = append(out, r.profiles[k])
	}
	return out
}

// profileFile is the on-disk YAML layout:
//
//	profiles:
//	  conference:
//	    signal: 0.8
//	    latency: 1.0
//	    ...
type profileFile struct {
	Profiles map[string]Weights `yaml:"profiles"`
}

// LoadProfiles reads extra profiles from a YAML file
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles parses the YAML profile document. Profiles come back sorted
// by key.
func ParseProfiles(data []byte) ([]Profile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}

	keys := make([]string, 0, len(f.Profiles))
	for k := range f.Profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Profile, 0, len(keys))
	for _, k := range keys {
		p, err := NewProfile(k, f.Profiles[k])
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", k, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func marshalProfile(p Profile) ([]byte, error) {
	return json.Marshal(struct {
		Activity       string  `json:"activity"`
		Weights        Weights `json:"weights"`
		MostImportant  string  `json:"most_important"`
		LeastImportant string  `json:"least_important"`
	}{
		Activity:       p.activity,
		Weights:        p.weights,
		MostImportant:  string(p.MostImportant()),
		LeastImportant: string(p.LeastImportant()),
	})
}
