package personality

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Store persists the persona file: trait values plus the meta sections
// (custom instructions and backstory facts) used to assemble the system
// prompt. The on-disk format is ini with a [personality] section.
type Store struct {
	path string
	v    *viper.Viper
}

// OpenStore reads the persona file at path. If the file does not exist but
// path+".example" does, the example is copied first, mirroring first-boot
// behavior.
func OpenStore(path string) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		example := path + ".example"
		data, err := os.ReadFile(example)
		if err != nil {
			return nil, fmt.Errorf("personality: no persona file at %s and no example: %w", path, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("personality: seed persona file: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("personality: read %s: %w", path, err)
	}

	return &Store{path: path, v: v}, nil
}

// Traits returns the persisted trait values.
func (s *Store) Traits() map[string]int {
	out := make(map[string]int)
	for _, name := range TraitOrder {
		key := "personality." + name
		if s.v.IsSet(key) {
			out[name] = s.v.GetInt(key)
		}
	}
	return out
}

// Instructions returns the custom instructions from the [meta] section.
func (s *Store) Instructions() string {
	return s.v.GetString("meta.instructions")
}

// Backstory returns the [backstory] facts as "- key: value" lines, or a
// stand-in reminding the user to configure one.
func (s *Store) Backstory() string {
	section := s.v.GetStringMapString("backstory")
	if len(section) == 0 {
		return "You are an enigma and nobody knows anything about you because the person " +
			"talking to you hasn't configured your backstory. You might remind them to do " +
			"that."
	}
	lines := make([]string, 0, len(section))
	for _, key := range sortedKeys(section) {
		lines = append(lines, fmt.Sprintf("- %s: %s", key, section[key]))
	}
	return strings.Join(lines, "\n")
}

// SaveTrait writes a single trait value back to the persona file.
func (s *Store) SaveTrait(name string, value int) error {
	s.v.Set("personality."+strings.ToLower(name), value)
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("personality: write %s: %w", s.path, err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
