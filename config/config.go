// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package config loads topology files describing a set of systems and their
// roles.
//
// A topology may be written as YAML, TOML, or as a native systemArray
// document. For example, in YAML:
//
//	name: cluster
//	systems:
//	  - name: master
//	    ip: 10.0.0.1
//	    port: 37000
//	    roles:
//	      - name: scheduler
//	        sends: [assign, cancel]
//
// and equivalently in the native form:
//
//	<systemArray name="cluster">
//	  <system name="master" ip="10.0.0.1" port="37000">
//	    <role name="scheduler" sendListeners="assign,cancel"/>
//	  </system>
//	</systemArray>
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/creachadair/hive"
	"github.com/creachadair/hive/markup"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a topology file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatXML  Format = "xml"
)

// FormatOf reports the format of a topology file based on the extension of
// its path.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".xml":
		return FormatXML, nil
	default:
		return "", fmt.Errorf("unsupported topology format %q", ext)
	}
}

// A Topology describes a named collection of systems.
type Topology struct {
	Name    string   `yaml:"name,omitempty" toml:"name,omitempty"`
	Systems []System `yaml:"systems" toml:"systems"`
}

// A System describes one peer and the roles it plays.
type System struct {
	Name  string `yaml:"name" toml:"name"`
	IP    string `yaml:"ip,omitempty" toml:"ip,omitempty"`
	Port  int    `yaml:"port" toml:"port"`
	Mode  string `yaml:"mode,omitempty" toml:"mode,omitempty"` // "dial" (default) or "accept"
	Roles []Role `yaml:"roles,omitempty" toml:"roles,omitempty"`
}

// A Role describes one role of a system.
type Role struct {
	Name  string   `yaml:"name" toml:"name"`
	Sends []string `yaml:"sends,omitempty" toml:"sends,omitempty"`
}

// Load reads and validates the topology file at path, whose format is
// chosen by [FormatOf].
func Load(path string) (*Topology, error) {
	f, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load topology: %w", err)
	}
	t, err := Parse(data, f)
	if err != nil {
		return nil, fmt.Errorf("load topology %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a topology from data in the given format.
// Unknown fields are reported as errors.
func Parse(data []byte, f Format) (*Topology, error) {
	t := new(Topology)
	switch f {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(t); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}

	case FormatTOML:
		meta, err := toml.Decode(string(data), t)
		if err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
		if keys := meta.Undecoded(); len(keys) != 0 {
			return nil, fmt.Errorf("parse toml: unknown field %q", keys[0].String())
		}

	case FormatXML:
		n, err := markup.Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		arr := hive.NewSystemArray("")
		if err := arr.Construct(n); err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		t = FromArray(arr)

	default:
		return nil, fmt.Errorf("unsupported topology format %q", f)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// FromArray returns the topology described by arr.
func FromArray(arr *hive.SystemArray) *Topology {
	t := &Topology{Name: arr.Name()}
	for _, s := range arr.Systems() {
		ts := System{Name: s.Name(), IP: s.IP(), Port: s.Port()}
		if m := s.Mode(); m != hive.ModeDial {
			ts.Mode = m.String()
		}
		for _, r := range s.All() {
			ts.Roles = append(ts.Roles, Role{Name: r.Name(), Sends: r.SendListeners()})
		}
		t.Systems = append(t.Systems, ts)
	}
	return t
}

// Validate reports an error if t does not describe a well-formed set of
// systems. All the problems found are reported together.
func (t *Topology) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, s := range t.Systems {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("system %d: missing name", i+1))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("system %d: duplicate name %q", i+1, s.Name))
		}
		seen[s.Name] = true
		if s.Port < 0 || s.Port > 65535 {
			errs = append(errs, fmt.Errorf("system %q: port %d out of range", s.Name, s.Port))
		}
		if _, err := hive.ParseMode(s.Mode); err != nil {
			errs = append(errs, fmt.Errorf("system %q: %w", s.Name, err))
		}

		roles := make(map[string]bool)
		for j, r := range s.Roles {
			if r.Name == "" {
				errs = append(errs, fmt.Errorf("system %q role %d: missing name", s.Name, j+1))
			} else if roles[r.Name] {
				errs = append(errs, fmt.Errorf("system %q: duplicate role %q", s.Name, r.Name))
			}
			roles[r.Name] = true
			for _, name := range r.Sends {
				if err := hive.CheckSendListener(name); err != nil {
					errs = append(errs, fmt.Errorf("system %q role %q: %w", s.Name, r.Name, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Build constructs an unstarted system array from t. The options apply to
// every system, and the mode of each system is set from t.
func (t *Topology) Build(opts ...hive.Option) (*hive.SystemArray, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	arr := hive.NewSystemArray(t.Name, opts...)
	for _, s := range t.Systems {
		mode, _ := hive.ParseMode(s.Mode) // checked by Validate
		sys := hive.NewSystem(s.Name, s.IP, s.Port, append(slices.Clip(opts), hive.WithMode(mode))...)
		for _, r := range s.Roles {
			sys.AddRole(r.Name, r.Sends...)
		}
		if err := arr.Add(sys); err != nil {
			return nil, err
		}
	}
	return arr, nil
}

// Encode renders t in the given format.
func (t *Topology) Encode(f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		return yaml.Marshal(t)

	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(t); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case FormatXML:
		arr, err := t.Build()
		if err != nil {
			return nil, err
		}
		return []byte(arr.String() + "\n"), nil

	default:
		return nil, fmt.Errorf("unsupported topology format %q", f)
	}
}
