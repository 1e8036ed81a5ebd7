// internal/config/normalize.go
package config

import "sort"

// DeviceNameMaxChars matches the status block name area.
const DeviceNameMaxChars = 16

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config, rejected []*ConfigurationError) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// DROP REJECTED DEVICES
	// ------------------------------------------------------------

	drop := make(map[int]struct{}, len(rejected))
	for _, r := range rejected {
		drop[r.Index] = struct{}{}
	}

	kept := cfg.Devices[:0:0]
	for i, d := range cfg.Devices {
		if _, bad := drop[i]; bad {
			continue
		}

		// Truncate to the status block name area
		if len(d.Name) > DeviceNameMaxChars {
			d.Name = d.Name[:DeviceNameMaxChars]
		}

		kept = append(kept, d)
	}

	// Round-robin order is ascending address order.
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Address < kept[j].Address
	})

	cfg.Devices = kept
}

// Addresses returns the polled device addresses in visit order.
func (c *Config) Addresses() []uint8 {
	out := make([]uint8, 0, len(c.Devices))
	for _, d := range c.Devices {
		out = append(out, d.Address)
	}
	return out
}

// Disabled returns the devices named by rejected, in configuration order.
// It MUST be called before Normalize, which drops them.
func Disabled(cfg *Config, rejected []*ConfigurationError) []DeviceConfig {
	if cfg == nil {
		return nil
	}

	seen := make(map[int]struct{}, len(rejected))
	var out []DeviceConfig
	for i, d := range cfg.Devices {
		for _, r := range rejected {
			if r.Index != i {
				continue
			}
			if _, dup := seen[i]; !dup {
				seen[i] = struct{}{}
				out = append(out, d)
			}
		}
	}
	return out
}
